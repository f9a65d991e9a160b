package main

import (
	"github.com/spf13/cobra"

	"github.com/playmatatu/duel/internal/migrations"
)

func newMigrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}
			return migrations.Run(cfg.DatabaseURL, dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Migrations directory (default: MIGRATIONS_DIR)")
	return cmd
}
