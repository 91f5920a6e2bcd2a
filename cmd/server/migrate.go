package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"punchclock/internal/platform/postgres"
)

func migrateCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := postgres.Open(ctx, postgres.OptionsFrom(cfg.Database))
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.InfoContext(ctx, "schema applied")
			return nil
		},
	}
}

func runMigrations(ctx context.Context, a *app) error {
	if err := postgres.Migrate(ctx, a.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.logger.InfoContext(ctx, "schema applied")
	return nil
}
