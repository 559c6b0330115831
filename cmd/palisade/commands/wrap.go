// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/palisade-systems/palisade/cmd/palisade/cli"
	"github.com/palisade-systems/palisade/lib/recovery"
)

func wrapCommand() *cli.Command {
	var (
		publicPath string
		keyFile    string
		outPath    string
	)
	return &cli.Command{
		Name:    "wrap",
		Summary: "Wrap a payload key for a recipient",
		Description: `Wrap encrypts a payload key to a recipient's public key bundle using
hybrid X25519 + ML-KEM-1024 encapsulation. The wrapped key is safe to
store on an unencrypted recovery medium: only the matching identity
file can unwrap it.

The key is the hex line produced by 'palisade seal --key-out'. For
multiple custodians, run wrap once per recipient over the same key,
then destroy the hex file.`,
		Usage: "palisade wrap --public BUNDLE --key KEY --out WRAPPED",
		Examples: []cli.Example{
			{
				Description: "wrap a key for a second custodian",
				Command:     "palisade wrap --public custodian2.pub --key payload.key --out custodian2.wrapped",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("wrap", pflag.ContinueOnError)
			flags.StringVar(&publicPath, "public", "", "recipient public key bundle")
			flags.StringVar(&keyFile, "key", "-", "payload key file in hex ('-' prompts or reads stdin)")
			flags.StringVar(&outPath, "out", "", "output path for the wrapped key")
			return flags
		},
		Run: func(args []string) error {
			if publicPath == "" {
				return fmt.Errorf("--public is required")
			}
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}

			recipient, err := recovery.LoadRecipient(publicPath)
			if err != nil {
				return err
			}

			hexText, err := cli.ReadSecret(keyFile, "Payload key (hex)", false)
			if err != nil {
				return err
			}
			defer hexText.Close()

			key, err := decodePayloadKey(hexText)
			if err != nil {
				return err
			}
			defer key.Close()

			wrapped, err := recovery.Wrap(key, recipient)
			if err != nil {
				return err
			}
			if err := recovery.SaveWrappedKey(outPath, wrapped); err != nil {
				return err
			}

			fmt.Printf("payload key wrapped for %s\n", recipient.Fingerprint())
			fmt.Printf("wrapped key: %s\n", outPath)
			return nil
		},
	}
}
