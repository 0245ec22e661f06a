// echonetctl inspects and maintains a local echonet database: listing
// registered targets, dumping current state and its audit trail, and
// taking consistent backups.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bbureau12/echonet/internal/repository"
	"github.com/bbureau12/echonet/internal/storage"
)

var dbPath string

func main() {
	root := &cobra.Command{
		Use:           "echonetctl",
		Short:         "Inspect and maintain an echonet database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "echonet.db", "path to the echonet database")

	root.AddCommand(targetsCmd(), stateCmd(), historyCmd(), backupCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func targetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List registered targets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := storage.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			targets, err := repository.NewTargetRepository(db).All(cmd.Context())
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				fmt.Println("no targets registered")
				return nil
			}
			for _, t := range targets {
				fmt.Printf("%-20s %-40s %v\n", t.Name, t.ListenURL(), t.Phrases)
			}
			return nil
		},
	}
}

func stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show current settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := storage.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			settings, err := repository.NewSettingRepository(db).All(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range settings {
				fmt.Printf("%-24s %-12s (updated %s)\n", s.Name, s.Value, s.UpdatedAt)
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var name string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the setting change audit trail, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := storage.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			changes, err := repository.NewSettingRepository(db).History(cmd.Context(), name, clampHistoryLimit(limit))
			if err != nil {
				return err
			}
			for _, c := range changes {
				old := "<unset>"
				if c.OldValue != nil {
					old = *c.OldValue
				}
				fmt.Printf("#%-5d %s  %-24s %s -> %s  [%s] %s\n",
					c.ID, c.ChangedAt, c.Name, old, c.NewValue, c.Source, c.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "filter by setting name")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows (capped at 500)")
	return cmd
}

func clampHistoryLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup <dest>",
		Short: "Write a consistent copy of the database to <dest>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := args[0]
			if _, err := os.Stat(dest); err == nil {
				return fmt.Errorf("refusing to overwrite %s", dest)
			}

			db, err := storage.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if _, err := db.ExecContext(context.Background(), `VACUUM INTO ?`, dest); err != nil {
				return fmt.Errorf("backup to %s: %w", dest, err)
			}
			fmt.Printf("backed up %s -> %s\n", dbPath, dest)
			return nil
		},
	}
}
