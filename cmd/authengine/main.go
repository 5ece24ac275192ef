// Command authengine serves the authentication engine over HTTP and carries
// the operator tooling around it.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("Application failed")
		cancel()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	g := &globals{}
	return &cli.App{
		Name:  "authengine",
		Usage: "Session based authentication with tiered privileges",
		Flags: g.flags(),
		Before: func(c *cli.Context) error {
			return g.setup(c)
		},
		Commands: []*cli.Command{
			serveCmd(g),
			bootstrapCmd(g),
			migrateCmd(g),
			hashCmd(g),
			loadtestCmd(g),
		},
	}
}
