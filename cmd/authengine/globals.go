package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/MrEthical07/authengine/internal/logutil"
	"github.com/MrEthical07/authengine/internal/server"
)

// globals are the flags shared by every command.
type globals struct {
	configPath string
	logLevel   string
	pretty     bool

	cfg    *server.Config
	logger zerolog.Logger
}

func (g *globals) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to the YAML configuration file",
			EnvVars:     []string{"AUTHENGINE_CONFIG"},
			Destination: &g.configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (trace, debug, info, warn, error)",
			Destination: &g.logLevel,
		},
		&cli.BoolFlag{
			Name:        "pretty",
			Usage:       "Human friendly console logs",
			Destination: &g.pretty,
		},
	}
}

// setup loads the configuration and installs the process logger on the
// command context.
func (g *globals) setup(c *cli.Context) error {
	cfg, err := server.LoadConfig(g.configPath)
	if err != nil {
		return err
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if c.IsSet("pretty") {
		cfg.Log.Pretty = g.pretty
	}

	logger, err := logutil.New(os.Stderr, cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return err
	}
	g.cfg = cfg
	g.logger = logger
	c.Context = logutil.WithLogger(c.Context, logger)
	return nil
}
