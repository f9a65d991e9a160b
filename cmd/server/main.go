// Command duel runs the matchmaking and session server.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/playmatatu/duel/internal/config"
	"github.com/playmatatu/duel/internal/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "duel",
		Short: "Real-time rock-paper-scissors matchmaking server",
		Long: `duel pairs players over WebSocket, runs best-of-N rock-paper-scissors
sessions with stakes and ranked bands, and settles results to Postgres.

Running duel without a subcommand is the same as "duel serve".`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newEventsCmd())
	return root
}

// loadConfig reads configuration and initialises logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.LogLevel, cfg.LogPretty)
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
