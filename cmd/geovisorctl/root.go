package main

import (
	"github.com/spf13/cobra"

	"geovisor.org/internal/config"
	"geovisor.org/internal/store"
)

// env holds what subcommands need from the outside world, so tests can
// substitute the database.
type env struct {
	loadDB func() (config.DBConfig, error)
	openDB func(config.DBConfig) (*store.Store, error)
}

func defaultEnv() env {
	return env{loadDB: config.LoadDB, openDB: store.Open}
}

// dbFlags override the configured connection.
type dbFlags struct {
	driver string
	dsn    string
}

func (f *dbFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.driver, "driver", "", "database driver (mysql or postgres); defaults to GEOVISOR_DB_DRIVER")
	cmd.PersistentFlags().StringVar(&f.dsn, "dsn", "", "database DSN; defaults to GEOVISOR_DB_DSN or the DB_* variables")
}

func (e env) open(f *dbFlags) (*store.Store, error) {
	cfg, err := e.loadDB()
	if err != nil {
		return nil, err
	}
	if f.driver != "" {
		cfg.Driver = f.driver
	}
	if f.dsn != "" {
		cfg.DSN = f.dsn
	}
	return e.openDB(cfg)
}

func newRootCmd(e env) *cobra.Command {
	root := &cobra.Command{
		Use:           "geovisorctl",
		Short:         "Maintenance commands for the Geovisor API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(e), newHashPasswordCmd(e))
	return root
}
