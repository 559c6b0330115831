// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/palisade-systems/palisade/cmd/palisade/cli"
	"github.com/palisade-systems/palisade/lib/recovery"
)

func keygenCommand() *cli.Command {
	var identityPath string
	var recipientPath string
	var passphraseFile string
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate a recovery keypair",
		Description: `Generate a recovery identity: an X25519 key, an ML-KEM-1024 key, and
an ML-DSA-87 signing key, derived from fresh seeds.

The identity file holds the seeds, sealed with age under the given
passphrase; it stays offline with the operator. The recipient file
holds the public halves and travels with the deployment that wraps
payload keys and verifies manifests.`,
		Usage: "palisade keygen --identity K --recipient B [flags]",
		Examples: []cli.Example{
			{
				Description: "Generate a keypair, prompting for the passphrase",
				Command:     "palisade keygen --identity recovery.key --recipient recovery.pub",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flagSet.StringVar(&identityPath, "identity", "", "output path for the sealed private identity")
			flagSet.StringVar(&recipientPath, "recipient", "", "output path for the public recipient")
			flagSet.StringVar(&passphraseFile, "passphrase-file", "-",
				"identity passphrase source: file path, or - to prompt")
			return flagSet
		},
		Run: func(args []string) error {
			if identityPath == "" || recipientPath == "" {
				return fmt.Errorf("--identity and --recipient are both required")
			}

			passphrase, err := cli.ReadSecret(passphraseFile, "Identity passphrase", true)
			if err != nil {
				return err
			}
			defer passphrase.Close()

			identity, err := recovery.GenerateIdentity()
			if err != nil {
				return err
			}
			defer identity.Close()

			recipient, err := identity.Recipient()
			if err != nil {
				return err
			}

			if err := recovery.SaveIdentity(identityPath, identity, passphrase); err != nil {
				return err
			}
			if err := recovery.SaveRecipient(recipientPath, recipient); err != nil {
				return err
			}

			fmt.Printf("identity:    %s\n", identityPath)
			fmt.Printf("recipient:   %s\n", recipientPath)
			fmt.Printf("fingerprint: %s\n", recipient.Fingerprint())
			return nil
		},
	}
}
