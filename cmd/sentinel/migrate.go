package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/sentinel/internal/platform/migrations"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(ctx, func(m *migrations.Migrator) error {
				return m.Up()
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(ctx, func(m *migrations.Migrator) error {
				return m.Up()
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			return withMigrator(ctx, func(m *migrations.Migrator) error {
				return m.Down(steps)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(ctx, func(m *migrations.Migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", v, dirty)
				return nil
			})
		},
	})
	return cmd
}

func withMigrator(ctx *commandContext, fn func(*migrations.Migrator) error) error {
	defer ctx.close()
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	log, err := ctx.logger("migrate")
	if err != nil {
		return err
	}
	m, err := migrations.Open(cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer m.Close()
	if err := fn(m); err != nil {
		return err
	}
	log.Info("migrate finished")
	return nil
}
