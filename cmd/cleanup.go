package cmd

import (
	"fmt"
	"time"

	"benirage/config"
	"benirage/core/cleanup"
	"benirage/db"
	"benirage/logger"
	"benirage/repository"

	"github.com/spf13/cobra"
)

var (
	cleanupDryRun    bool
	cleanupRetention time.Duration
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete orphaned story media once",
	Long: `Delete media objects under stories/ that no story references and that are older
than the retention window. Uploads of drafts open in a running server are protected
by the retention window only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		initLogger(cfg)
		defer logger.Sync()

		retention := cfg.CleanupRetention
		if cmd.Flags().Changed("retention") {
			retention = cleanupRetention
		}

		ctx := cmd.Context()
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		gdb, err := db.ConnectGormDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close(gdb)

		sweeper, err := cleanup.NewSweeper(store, repository.NewGormStoryRepository(gdb), nil,
			cleanup.Options{Retention: retention, DryRun: cleanupDryRun}, logger.L())
		if err != nil {
			return err
		}
		res, err := sweeper.Sweep(ctx)
		if err != nil {
			return err
		}

		verb := "Deleted"
		if res.DryRun {
			verb = "Would delete"
		}
		for _, path := range res.Deleted {
			fmt.Println("  " + path)
		}
		fmt.Printf("%s %d of %d objects (referenced %d, too young %d, failed %d)\n",
			verb, len(res.Deleted), res.Scanned, res.Referenced, res.Young, res.Failed)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "report what would be deleted without deleting")
	cleanupCmd.Flags().DurationVar(&cleanupRetention, "retention", 0, "override CLEANUP_RETENTION")
	rootCmd.AddCommand(cleanupCmd)
}
