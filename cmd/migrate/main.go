// cmd/migrate/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"libracatalog/internal/config"
	"libracatalog/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the libracatalog database schema",
		SilenceUsage: true,
	}
	root.AddCommand(
		migrateCmd("up", "Apply all pending migrations", func(ctx context.Context, m *storage.Migrator, cmd *cobra.Command) error {
			return m.Up(ctx)
		}),
		migrateCmd("down", "Roll back the most recent migration", func(ctx context.Context, m *storage.Migrator, cmd *cobra.Command) error {
			return m.Down(ctx)
		}),
		migrateCmd("status", "Show which migrations are applied", func(ctx context.Context, m *storage.Migrator, cmd *cobra.Command) error {
			return m.Status(ctx)
		}),
		migrateCmd("version", "Print the current schema version", func(ctx context.Context, m *storage.Migrator, cmd *cobra.Command) error {
			v, err := m.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		}),
	)
	return root
}

// migrateCmd opens the configured store, runs fn with a migrator and closes
// both.
func migrateCmd(use, short string, fn func(context.Context, *storage.Migrator, *cobra.Command) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := storage.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			m, err := storage.NewMigrator(db)
			if err != nil {
				return err
			}
			defer m.Close()
			return fn(ctx, m, cmd)
		},
	}
}
