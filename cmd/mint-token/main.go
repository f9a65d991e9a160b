// Command mint-token signs an identity token for local testing of the
// WebSocket gate and the REST API.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/playmatatu/duel/internal/auth"
	"github.com/playmatatu/duel/internal/config"
)

func newRootCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mint-token",
		Short: "Sign a bearer token for a player identity",
		Long: `mint-token signs an HS256 token with JWT_SECRET and JWT_ISSUER from the
environment (or .env). Pass it as "Authorization: Bearer <token>" or as the
token query parameter when opening /api/v1/ws.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.TokenTTL
			}
			token, err := auth.Mint(cfg.JWTSecret, cfg.JWTIssuer, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "Player identity to put in the token (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default: TOKEN_TTL)")
	cmd.MarkFlagRequired("sub")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
