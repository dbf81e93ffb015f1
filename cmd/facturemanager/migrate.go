package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ttsites/facturemanager/internal/config"
	"github.com/ttsites/facturemanager/internal/migrate"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	action := func(use, short string, fn func(cmd *cobra.Command, db config.DatabaseConfig) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				if cfg.Database.Driver == "memory" {
					return fmt.Errorf("the memory driver has no schema to migrate")
				}
				return fn(cmd, cfg.Database)
			},
		}
	}

	cmd.AddCommand(
		action("up", "Apply all pending migrations", func(cmd *cobra.Command, db config.DatabaseConfig) error {
			return migrate.Up(cmd.Context(), db.Driver, db.DSN)
		}),
		action("down", "Roll back the latest migration", func(cmd *cobra.Command, db config.DatabaseConfig) error {
			return migrate.Down(cmd.Context(), db.Driver, db.DSN)
		}),
		action("status", "Show migration status", func(cmd *cobra.Command, db config.DatabaseConfig) error {
			if err := migrate.Status(cmd.Context(), db.Driver, db.DSN); err != nil {
				return err
			}
			v, err := migrate.Version(cmd.Context(), db.Driver, db.DSN)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return nil
		}),
	)
	return cmd
}
