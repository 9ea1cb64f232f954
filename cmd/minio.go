package cmd

import (
	"context"
	"fmt"
	"sort"

	"benirage/config"
	"benirage/core/cleanup"
	"benirage/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
	minioDelete bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Inspect the media bucket",
	Long:  `List objects in the media bucket, print bucket statistics or delete every object under a prefix.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		fmt.Printf("MinIO: %s, bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		store, err := openMinio(cfg)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		switch {
		case minioDelete:
			return deletePrefix(ctx, store, minioPrefix)
		case minioStats:
			return printStats(ctx, store, minioPrefix)
		default:
			return listObjects(ctx, store, minioPrefix)
		}
	},
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", cleanup.MediaPrefix, "object prefix")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "print bucket statistics")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "delete every object under the prefix")
	rootCmd.AddCommand(minioCmd)
}

func listObjects(ctx context.Context, store *storage.MinioStore, prefix string) error {
	objects, err := store.ListObjects(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list objects: %w", err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Path < objects[j].Path })

	fmt.Printf("\n%-60s %12s  %s\n", "PATH", "SIZE", "MODIFIED")
	for _, obj := range objects {
		fmt.Printf("%-60s %12s  %s\n", obj.Path, storage.FormatSize(obj.Size), obj.LastModified.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("\n%d objects\n", len(objects))
	return nil
}

func printStats(ctx context.Context, store *storage.MinioStore, prefix string) error {
	objects, err := store.ListObjects(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list objects: %w", err)
	}
	stats := storage.Summarize(objects)

	fmt.Printf("\nBucket: %s (prefix %q)\n", store.Bucket(), prefix)
	fmt.Printf("Objects:       %d\n", stats.TotalObjects)
	fmt.Printf("Total size:    %s\n", storage.FormatSize(stats.TotalSize))
	if !stats.LastModified.IsZero() {
		fmt.Printf("Last modified: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
	}
	classes := make([]string, 0, len(stats.TypeStats))
	for class := range stats.TypeStats {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		fmt.Printf("  %-6s %d\n", class, stats.TypeStats[class])
	}
	return nil
}

func deletePrefix(ctx context.Context, store *storage.MinioStore, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("delete requires a non-empty --prefix")
	}
	n, err := store.DeletePrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("delete %s: %w", prefix, err)
	}
	fmt.Printf("Deleted %d objects under %s\n", n, prefix)
	return nil
}
