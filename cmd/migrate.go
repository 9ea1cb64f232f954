package cmd

import (
	"fmt"

	"benirage/config"
	"benirage/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the stories table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		gdb, err := db.ConnectGormDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close(gdb)

		if err := db.AutoMigrate(gdb); err != nil {
			return err
		}
		fmt.Println("Migration complete.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
