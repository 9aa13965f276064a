package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"dompet/internal/config"
	"dompet/internal/storage"
)

func migrateCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQLite schema",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dbPath != "" {
				return nil
			}
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			if cfg.DataBackend != config.BackendSQLite {
				return errors.New("migrations need DATA_BACKEND=sqlite or --db")
			}
			dbPath = cfg.SQLiteDBPath
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default: SQLITE_DB_PATH)")

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.RollbackMigrations(dbPath, steps); err != nil {
				return err
			}
			return printStatus(cmd, dbPath)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := storage.RunMigrations(dbPath); err != nil {
					return err
				}
				return printStatus(cmd, dbPath)
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show the schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return printStatus(cmd, dbPath)
			},
		},
	)
	return cmd
}

func printStatus(cmd *cobra.Command, dbPath string) error {
	st, err := storage.Status(dbPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: version %d", dbPath, st.Version)
	if st.Dirty {
		fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
