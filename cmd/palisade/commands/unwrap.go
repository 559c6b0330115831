// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/palisade-systems/palisade/cmd/palisade/cli"
	"github.com/palisade-systems/palisade/lib/recovery"
)

func unwrapCommand() *cli.Command {
	var (
		privatePath    string
		passphraseFile string
		publicPath     string
		wrappedPath    string
		payloadPath    string
		outPath        string
	)
	return &cli.Command{
		Name:    "unwrap",
		Summary: "Unwrap a payload key and recover the payload",
		Description: `Unwrap recovers a payload key with the custodian's identity file.
The identity must match the recipient bundle the key was wrapped
for; a mismatch is refused before any cryptography runs, because
ambiguity during recovery means refusal.

Without --payload, the recovered key is written as a hex line (mode
0600). With --payload, the sealed payload is decrypted and the
plaintext written to --out instead.`,
		Usage: "palisade unwrap --private KEY --public BUNDLE --wrapped WRAPPED --out OUT [flags]",
		Examples: []cli.Example{
			{
				Description: "recover a sealed header backup",
				Command:     "palisade unwrap --private recovery.key --public recovery.pub --wrapped recovery.wrapped --payload header.sealed --out header.img",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("unwrap", pflag.ContinueOnError)
			flags.StringVar(&privatePath, "private", "", "identity key file")
			flags.StringVar(&passphraseFile, "passphrase-file", "-", "identity passphrase file ('-' prompts or reads stdin)")
			flags.StringVar(&publicPath, "public", "", "recipient bundle the key was wrapped for")
			flags.StringVar(&wrappedPath, "wrapped", "", "wrapped key file")
			flags.StringVar(&payloadPath, "payload", "", "sealed payload to decrypt with the recovered key")
			flags.StringVar(&outPath, "out", "", "output path for the key or decrypted payload")
			return flags
		},
		Run: func(args []string) error {
			if privatePath == "" {
				return fmt.Errorf("--private is required")
			}
			if publicPath == "" {
				return fmt.Errorf("--public is required")
			}
			if wrappedPath == "" {
				return fmt.Errorf("--wrapped is required")
			}
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}

			passphrase, err := cli.ReadSecret(passphraseFile, "Identity passphrase", false)
			if err != nil {
				return err
			}
			defer passphrase.Close()

			identity, err := recovery.LoadIdentity(privatePath, passphrase)
			if err != nil {
				return err
			}
			defer identity.Close()

			recipient, err := recovery.LoadRecipient(publicPath)
			if err != nil {
				return err
			}
			derived, err := identity.Recipient()
			if err != nil {
				return err
			}
			if derived.Fingerprint() != recipient.Fingerprint() {
				return fmt.Errorf("identity %s does not match recipient %s: wrong key for this medium",
					derived.Fingerprint(), recipient.Fingerprint())
			}

			wrapped, err := recovery.LoadWrappedKey(wrappedPath)
			if err != nil {
				return err
			}
			key, err := recovery.Unwrap(wrapped, identity)
			if err != nil {
				return err
			}
			defer key.Close()

			if payloadPath == "" {
				if err := writePayloadKeyHex(outPath, key); err != nil {
					return err
				}
				fmt.Printf("recovered payload key: %s\n", outPath)
				return nil
			}

			sealed, err := os.ReadFile(payloadPath)
			if err != nil {
				return fmt.Errorf("reading sealed payload: %w", err)
			}
			payload, err := recovery.OpenPayload(sealed, key)
			if err != nil {
				return err
			}
			if err := writeFileAtomic(outPath, payload, 0600); err != nil {
				return err
			}
			fmt.Printf("recovered %d bytes to %s\n", len(payload), outPath)
			return nil
		},
	}
}
