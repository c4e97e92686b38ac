package main

import (
	"errors"

	"github.com/spf13/cobra"

	"ezweb/internal/platform/logger"
	"ezweb/internal/platform/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Database.URL == "" {
			return errors.New("migrate: DATABASE_URL is not set")
		}
		log := logger.New(cfg.Log.Level, cfg.Log.Format)

		db, err := postgres.Open(cmd.Context(), cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := postgres.Migrate(cmd.Context(), db, log); err != nil {
			return err
		}
		log.InfoContext(cmd.Context(), "schema up to date")
		return nil
	},
}
