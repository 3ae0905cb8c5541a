package main

import (
	"errors"

	"github.com/spf13/cobra"

	"donorlink/internal/platform/postgres"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database url is required to migrate")
			}
			db, err := postgres.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log.Info("schema applied")
			return nil
		},
	}
}
