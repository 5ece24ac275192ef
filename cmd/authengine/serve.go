package main

import (
	"github.com/urfave/cli/v2"

	"github.com/MrEthical07/authengine/internal/server"
)

func serveCmd(g *globals) *cli.Command {
	var (
		listen     string
		backend    string
		dsn        string
		redisAddr  string
		allowForce bool
	)
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "listen",
				Aliases:     []string{"l"},
				Usage:       "Address to bind the HTTP listener",
				Destination: &listen,
			},
			&cli.StringFlag{
				Name:        "store",
				Usage:       "Store backend (memory, file, redis, sqlite, postgres, s3)",
				Destination: &backend,
			},
			&cli.StringFlag{
				Name:        "dsn",
				Usage:       "SQL data source name for the sqlite and postgres backends",
				Destination: &dsn,
			},
			&cli.StringFlag{
				Name:        "redis-addr",
				Usage:       "Redis address, or \"embedded\" for an in-process server",
				Destination: &redisAddr,
			},
			&cli.BoolFlag{
				Name:        "allow-force-register",
				Usage:       "Honor the force flag of /user/register (trusted deployments only)",
				Destination: &allowForce,
			},
		},
		Action: func(c *cli.Context) error {
			cfg := g.cfg
			if c.IsSet("listen") {
				cfg.Listen = listen
			}
			if c.IsSet("store") {
				cfg.Store.Backend = backend
			}
			if c.IsSet("dsn") {
				cfg.Store.DSN = dsn
			}
			if c.IsSet("redis-addr") {
				cfg.Redis.Addr = redisAddr
			}
			if c.IsSet("allow-force-register") {
				cfg.HTTP.AllowForceRegister = allowForce
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			app, err := server.Open(c.Context, cfg, nil)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					g.logger.Error().Err(err).Msg("closing resources")
				}
			}()
			return app.Run(c.Context)
		},
	}
}
