package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"callflow-platform/internal/audit"
	"callflow-platform/internal/calls"
	"callflow-platform/internal/config"
	"callflow-platform/internal/flowstore"
	"callflow-platform/internal/numbers"
	"callflow-platform/pkg/utils"

	"github.com/spf13/cobra"
)

// schema lists the DDL of every Postgres-backed store, in dependency order.
func schema() []string {
	var out []string
	for _, s := range [][]string{numbers.Schema, flowstore.Schema, audit.Schema, calls.Schema} {
		out = append(out, s...)
	}
	return out
}

func openDB(ctx context.Context) (*sql.DB, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if !cfg.HasDatabase() {
		return nil, fmt.Errorf("DB_HOST is not set")
	}
	return utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PoolConfig{MaxOpenConns: 2})
}

func newSchemaCmd() *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create the Postgres tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stmts := schema()
			if printOnly {
				for _, s := range stmts {
					fmt.Fprintf(cmd.OutOrStdout(), "%s;\n\n", s)
				}
				return nil
			}
			ctx := cmd.Context()
			db, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := utils.ApplySchema(ctx, db, stmts...); err != nil {
				return err
			}
			slog.Info("schema applied", "statements", len(stmts))
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d statement(s)\n", len(stmts))
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the DDL instead of applying it")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite stored legacy flow configs into the graph format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer db.Close()

			n, err := flowstore.MigrateLegacy(ctx, db, time.Now(), dryRun)
			if err != nil {
				return err
			}
			slog.Info("legacy flows migrated", "rows", n, "dry_run", dryRun)
			verb := "migrated"
			if dryRun {
				verb = "would migrate"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d flow(s)\n", verb, n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "roll back instead of committing")
	return cmd
}
