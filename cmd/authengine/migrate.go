package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/MrEthical07/authengine/internal/server"
	"github.com/MrEthical07/authengine/store"
)

func migrateCmd(g *globals) *cli.Command {
	var dsn string
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the SQL schema migrations for the sqlite or postgres backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dsn",
				Usage:       "Override store.dsn",
				Destination: &dsn,
			},
		},
		Action: func(c *cli.Context) error {
			sc := g.cfg.Store
			if sc.Backend != server.BackendSQLite && sc.Backend != server.BackendPostgres {
				return fmt.Errorf("migrate needs a sqlite or postgres backend, configured %q", sc.Backend)
			}
			if c.IsSet("dsn") {
				sc.DSN = dsn
			}
			dialect := server.Dialect(sc.Backend)
			db, err := store.OpenSQL(dialect, sc.DSN)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.Migrate(c.Context, db, dialect); err != nil {
				return err
			}
			g.logger.Info().Str("backend", sc.Backend).Msg("migrations applied")
			return nil
		},
	}
}
