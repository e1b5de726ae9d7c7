package main

import (
	"fmt"

	"github.com/goodtune/talkgate/internal/auth"
	"github.com/goodtune/talkgate/internal/config"
	"github.com/spf13/cobra"
)

var tokenTTL string

var tokenCmd = &cobra.Command{
	Use:     "token USER_ID",
	Short:   "Issue an access token",
	Long:    `Issue a signed access token for a user id, for local testing against the API.`,
	Example: `  talkgate -c config.yaml token user-123`,
	Args:    cobra.ExactArgs(1),
	RunE:    runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenTTL, "ttl", "", "Token lifetime (defaults to auth.token_ttl)")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ttl := parseDuration(cfg.Auth.TokenTTL, auth.DefaultTokenTTL)
	if tokenTTL != "" {
		ttl = parseDuration(tokenTTL, ttl)
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, ttl)
	if err != nil {
		return err
	}

	token, err := tokens.Issue(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
