// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/palisade-systems/palisade/cmd/palisade/cli"
	"github.com/palisade-systems/palisade/lib/recovery"
)

func bundleCommand() *cli.Command {
	return &cli.Command{
		Name:    "bundle",
		Summary: "Single-file recovery bundles",
		Description: `A bundle packs the sealed payload, wrapped key, manifest and
signature into one file, for media where juggling four artifacts is
error-prone. 'pack' seals and signs in one step; 'unpack' verifies
the signature and digests, then decrypts.

The detached workflow (seal, wrap, sign, verify, unwrap) covers the
multi-custodian cases a single file cannot.`,
		Subcommands: []*cli.Command{
			bundlePackCommand(),
			bundleUnpackCommand(),
		},
	}
}

func bundlePackCommand() *cli.Command {
	var (
		publicPath     string
		identityPath   string
		passphraseFile string
		outPath        string
		compressName   string
	)
	return &cli.Command{
		Name:    "pack",
		Summary: "Pack an image into a signed, sealed bundle",
		Usage:   "palisade bundle pack IMAGE --public BUNDLE --identity KEY --out FILE [flags]",
		Examples: []cli.Example{
			{
				Description: "pack a header backup for the recovery medium",
				Command:     "palisade bundle pack header.img --public recovery.pub --identity recovery.key --out header.bundle --compress zstd",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("pack", pflag.ContinueOnError)
			flags.StringVar(&publicPath, "public", "", "recipient public key bundle")
			flags.StringVar(&identityPath, "identity", "", "identity key file to sign with")
			flags.StringVar(&passphraseFile, "passphrase-file", "-", "identity passphrase file ('-' prompts or reads stdin)")
			flags.StringVar(&outPath, "out", "", "output path for the bundle")
			flags.StringVar(&compressName, "compress", "none", "payload compression: none, lz4 or zstd")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one image path, got %d arguments", len(args))
			}
			if publicPath == "" {
				return fmt.Errorf("--public is required")
			}
			if identityPath == "" {
				return fmt.Errorf("--identity is required")
			}
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}

			compression, err := recovery.ParseCompression(compressName)
			if err != nil {
				return err
			}
			image, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading image: %w", err)
			}
			recipient, err := recovery.LoadRecipient(publicPath)
			if err != nil {
				return err
			}

			passphrase, err := cli.ReadSecret(passphraseFile, "Identity passphrase", false)
			if err != nil {
				return err
			}
			defer passphrase.Close()

			identity, err := recovery.LoadIdentity(identityPath, passphrase)
			if err != nil {
				return err
			}
			defer identity.Close()

			bundle, err := recovery.Pack(image, recipient, identity, compression, time.Now())
			if err != nil {
				return err
			}
			if err := writeFileAtomic(outPath, bundle, 0644); err != nil {
				return err
			}

			fmt.Printf("packed %d bytes into %s (%d bytes)\n", len(image), outPath, len(bundle))
			return nil
		},
	}
}

func bundleUnpackCommand() *cli.Command {
	var (
		privatePath    string
		passphraseFile string
		publicPath     string
		outPath        string
	)
	return &cli.Command{
		Name:    "unpack",
		Summary: "Verify and decrypt a bundle",
		Usage:   "palisade bundle unpack FILE --private KEY --public BUNDLE --out IMAGE [flags]",
		Examples: []cli.Example{
			{
				Description: "restore an image from a bundle",
				Command:     "palisade bundle unpack header.bundle --private recovery.key --public recovery.pub --out header.img",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("unpack", pflag.ContinueOnError)
			flags.StringVar(&privatePath, "private", "", "identity key file")
			flags.StringVar(&passphraseFile, "passphrase-file", "-", "identity passphrase file ('-' prompts or reads stdin)")
			flags.StringVar(&publicPath, "public", "", "signer's public key bundle")
			flags.StringVar(&outPath, "out", "", "output path for the recovered image")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one bundle path, got %d arguments", len(args))
			}
			if privatePath == "" {
				return fmt.Errorf("--private is required")
			}
			if publicPath == "" {
				return fmt.Errorf("--public is required")
			}
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}

			bundle, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading bundle: %w", err)
			}
			verifier, err := recovery.LoadRecipient(publicPath)
			if err != nil {
				return err
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

			image, err := recovery.Unpack(bundle, identity, verifier)
			if err != nil {
				return err
			}
			if err := writeFileAtomic(outPath, image, 0600); err != nil {
				return err
			}

			fmt.Printf("recovered %d bytes to %s\n", len(image), outPath)
			return nil
		},
	}
}
