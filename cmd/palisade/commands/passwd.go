// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/palisade-systems/palisade/cmd/palisade/cli"
	"github.com/palisade-systems/palisade/lib/challenge"
	"github.com/palisade-systems/palisade/lib/config"
)

// minPasswordBytes is the shortest challenge password passwd will
// install. The challenge is the only thing between a tamper signal
// and destruction, in both directions: too weak invites an attacker
// through, and a password the operator cannot type under pressure
// destroys their own data.
const minPasswordBytes = 8

func passwdCommand() *cli.Command {
	var configPath string
	var passwordFile string
	var outPath string
	return &cli.Command{
		Name:    "passwd",
		Summary: "Set the challenge password",
		Description: `Hash a new challenge password with argon2id and install it at the
configured password-hash path. The gate reads the hash at startup;
restart the gate after changing it.

The password is prompted twice with echo disabled. It is never stored;
only the PHC hash string touches disk.`,
		Usage: "palisade passwd [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("passwd", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "",
				"config file (default $PALISADE_CONFIG, then "+config.DefaultPath+")")
			flagSet.StringVar(&passwordFile, "password-file", "-",
				"password source: file path, or - to prompt")
			flagSet.StringVar(&outPath, "out", "",
				"write the hash here instead of the configured password_hash_path")
			return flagSet
		},
		Run: func(args []string) error {
			hashPath := outPath
			if hashPath == "" {
				cfg, err := loadConfig(configPath)
				if err != nil {
					return err
				}
				hashPath = cfg.Challenge.PasswordHashPath
				if hashPath == "" {
					return fmt.Errorf("challenge.password_hash_path is not configured; use --out")
				}
			}

			password, err := cli.ReadSecret(passwordFile, "New challenge password", true)
			if err != nil {
				return err
			}
			defer password.Close()

			if len(password.Bytes()) < minPasswordBytes {
				return fmt.Errorf("password must be at least %d bytes", minPasswordBytes)
			}

			hash, err := challenge.Hash(password, challenge.DefaultParams)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}
			if err := challenge.SaveHash(hashPath, hash); err != nil {
				return err
			}

			fmt.Printf("challenge password hash installed at %s\n", hashPath)
			fmt.Println("restart palisade-gate to pick up the change")
			return nil
		},
	}
}
