package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"geovisor.org/internal/migrate"
	"geovisor.org/ops/migrations"
)

func newMigrateCmd(e env) *cobra.Command {
	var flags dbFlags
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect schema migrations",
		Long: `Manage the database schema embedded in the binary.

Examples:
  # Apply pending migrations and load the reference catalogs
  geovisorctl migrate up
  geovisorctl migrate seed

  # Roll back the latest migration on PostgreSQL
  geovisorctl migrate down --driver postgres --dsn postgres://geo@localhost/geovisor
`,
	}
	flags.register(cmd)

	run := func(action func(cmd *cobra.Command, m *migrate.Manager) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			db, err := e.open(&flags)
			if err != nil {
				return err
			}
			defer db.Close()
			schema, err := migrations.Schema(string(db.Dialect()))
			if err != nil {
				return err
			}
			return action(cmd, migrate.NewManager(db.DB(), db.Dialect(), schema, migrate.WithSeeds(migrations.Seeds())))
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, m *migrate.Manager) error {
				applied, err := m.Up(cmd.Context())
				printNames(cmd, "applied", applied)
				return err
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, m *migrate.Manager) error {
				name, err := m.Down(cmd.Context())
				if errors.Is(err, migrate.ErrNothingApplied) {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", name)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied migrations in order",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, m *migrate.Manager) error {
				history, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				if len(history) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				}
				for _, name := range history {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Load reference catalogs not yet seeded",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, m *migrate.Manager) error {
				applied, err := m.Seed(cmd.Context())
				printNames(cmd, "seeded", applied)
				return err
			}),
		},
	)
	return cmd
}

func printNames(cmd *cobra.Command, verb string, names []string) {
	if len(names) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "nothing %s\n", verb)
		return
	}
	for _, n := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, n)
	}
}
