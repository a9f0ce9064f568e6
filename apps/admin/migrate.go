package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/trezcool/goose"

	appfs "github.com/elecmate/sitebrief/fs"
	"github.com/elecmate/sitebrief/storage/database"
	sqliterepos "github.com/elecmate/sitebrief/storage/database/sqlite"
)

var (
	gooseRunFunc    = goose.RunFS         // mockable
	sqliteMigrateFn = sqliterepos.Migrate // mockable
)

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS]",
		Short: "Run a goose migration command (up, down, status, up-to VERSION...)",
		Long: `Run a goose migration command against the configured database.

The sqlite engine is migrated from its models and only supports "up".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageErr(cmd)
			}
			return cli.migrate(args)
		},
	}
}

func (cli *commandLine) migrate(args []string) error {
	if cli.conf.Database.Engine == database.EngineSQLite {
		if args[0] != "up" {
			return errors.Errorf("%q: not supported by the sqlite engine", args[0])
		}
		return sqliteMigrateFn(cli.gormDB)
	}
	return gooseRunFunc(args[0], cli.db, appfs.FS, database.MigrationsDir, args[1:]...)
}
