package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/MrEthical07/authengine"
	"github.com/MrEthical07/authengine/internal/server"
)

// readPassword is a seam for term.ReadPassword.
var readPassword = term.ReadPassword

// isTerminal is a seam for term.IsTerminal.
var isTerminal = term.IsTerminal

func bootstrapCmd(g *globals) *cli.Command {
	var (
		username string
		level    string
	)
	return &cli.Command{
		Name:  "bootstrap",
		Usage: "Create (or replace) an account without authentication and set its level",
		Description: "The password is prompted for when stdin is a terminal and read from the " +
			"first line of stdin otherwise. This is the only trusted use of forced registration.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "username",
				Aliases:     []string{"u"},
				Usage:       "Account to create",
				Required:    true,
				Destination: &username,
			},
			&cli.StringFlag{
				Name:        "level",
				Usage:       "Privilege level: user, admin or root",
				Value:       "root",
				Destination: &level,
			},
		},
		Action: func(c *cli.Context) error {
			lvl, err := authengine.ParsePrivilegeLevel(level)
			if err != nil {
				return err
			}
			plain, err := promptPassword(os.Stdin, c.App.ErrWriter)
			if err != nil {
				return err
			}

			app, err := server.Open(c.Context, g.cfg, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			return bootstrap(c, app.Engine, username, plain, lvl)
		},
	}
}

func bootstrap(c *cli.Context, engine *authengine.Engine, username, plain string, lvl authengine.PrivilegeLevel) error {
	if err := engine.Register(c.Context, "", "", username, plain, true); err != nil {
		return err
	}
	if err := engine.ForceSetPrivilegeLevel(c.Context, username, lvl); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "created %s with level %s\n", username, lvl)
	return nil
}

func promptPassword(in *os.File, prompt io.Writer) (string, error) {
	if isTerminal(int(in.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		raw, err := readPassword(int(in.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return checkPassword(string(raw))
	}
	return readPasswordLine(in)
}

func readPasswordLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", errors.New("missing password from stdin")
	}
	return checkPassword(strings.TrimRight(sc.Text(), "\r"))
}

func checkPassword(plain string) (string, error) {
	if plain == "" {
		return "", errors.New("empty password")
	}
	return plain, nil
}
