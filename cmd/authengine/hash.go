package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/MrEthical07/authengine/password"
)

func hashCmd(g *globals) *cli.Command {
	var salt string
	return &cli.Command{
		Name:  "hash",
		Usage: "Print the argon2id digest of a password read like bootstrap does",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "salt",
				Usage:       "Base64 salt to hash with; a fresh one is generated when empty",
				Destination: &salt,
			},
		},
		Action: func(c *cli.Context) error {
			plain, err := promptPassword(os.Stdin, c.App.ErrWriter)
			if err != nil {
				return err
			}
			p := g.cfg.Engine.Password
			hasher, err := password.NewArgon2(password.Config{
				Memory:      p.Memory,
				Time:        p.Time,
				Parallelism: p.Parallelism,
				SaltLength:  p.SaltLength,
				KeyLength:   p.KeyLength,
			})
			if err != nil {
				return err
			}
			digest, encodedSalt, err := hashWith(hasher, plain, salt)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "salt:   %s\ndigest: %s\n", encodedSalt, digest)
			return nil
		},
	}
}

func hashWith(hasher *password.Argon2, plain, encodedSalt string) (digest, saltOut string, err error) {
	var salt []byte
	if encodedSalt == "" {
		salt, err = hasher.NewSalt()
	} else {
		salt, err = password.DecodeSalt(encodedSalt)
	}
	if err != nil {
		return "", "", err
	}
	digest, err = hasher.Hash(plain, salt)
	if err != nil {
		return "", "", err
	}
	return digest, password.EncodeSalt(salt), nil
}
