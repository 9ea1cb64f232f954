package cmd

import (
	"fmt"

	"benirage/config"
	"benirage/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Check the Redis connection",
	Long:  `Connect to Redis and run a write, read and delete round trip.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		fmt.Printf("Redis: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		client, err := db.ConnectRedis(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		fmt.Println("Connected.")

		if err := db.CheckRedis(cmd.Context(), client); err != nil {
			return fmt.Errorf("redis round trip failed: %w", err)
		}
		fmt.Println("Round trip OK.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
