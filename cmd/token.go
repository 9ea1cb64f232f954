package cmd

import (
	"errors"
	"fmt"
	"time"

	"benirage/config"
	"benirage/core/auth"

	"github.com/spf13/cobra"
)

var (
	tokenUser     string
	tokenUsername string
	tokenExpiry   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a session token for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET is required")
		}
		token, err := auth.NewTokens(cfg.JWTSecret, tokenExpiry).Issue(auth.Session{UserID: tokenUser, Username: tokenUsername})
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (required)")
	tokenCmd.Flags().StringVar(&tokenUsername, "username", "", "display name")
	tokenCmd.Flags().DurationVar(&tokenExpiry, "ttl", tokenTTL, "token lifetime")
	tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}
