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

func sealCommand() *cli.Command {
	var (
		inPath       string
		outPath      string
		publicPath   string
		wrappedOut   string
		keyOut       string
		compressName string
	)
	return &cli.Command{
		Name:    "seal",
		Summary: "Encrypt a payload under a fresh key",
		Description: `Seal encrypts a file under a freshly generated payload key with
XChaCha20-Poly1305, optionally compressing it first. The key never
touches the disk in the clear unless you ask for it:

With --public, the key is immediately wrapped for that recipient and
written to --wrapped-out. With --key-out, the raw key is written as a
hex line (mode 0600) so it can be wrapped for several custodians with
'palisade wrap' before being destroyed. Both can be combined.`,
		Usage: "palisade seal --in FILE --out SEALED (--public BUNDLE --wrapped-out WRAPPED | --key-out KEY) [flags]",
		Examples: []cli.Example{
			{
				Description: "seal a header backup for one custodian",
				Command:     "palisade seal --in header.img --out header.sealed --public recovery.pub --wrapped-out recovery.wrapped",
			},
			{
				Description: "seal with a keep-out key for multi-custodian wrapping",
				Command:     "palisade seal --in header.img --out header.sealed --key-out payload.key --compress zstd",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("seal", pflag.ContinueOnError)
			flags.StringVar(&inPath, "in", "", "payload file to seal")
			flags.StringVar(&outPath, "out", "", "output path for the sealed payload")
			flags.StringVar(&publicPath, "public", "", "recipient public key bundle to wrap the key for")
			flags.StringVar(&wrappedOut, "wrapped-out", "", "output path for the wrapped key (with --public)")
			flags.StringVar(&keyOut, "key-out", "", "output path for the raw payload key in hex")
			flags.StringVar(&compressName, "compress", "none", "payload compression: none, lz4 or zstd")
			return flags
		},
		Run: func(args []string) error {
			if inPath == "" {
				return fmt.Errorf("--in is required")
			}
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}
			if publicPath != "" && wrappedOut == "" {
				return fmt.Errorf("--wrapped-out is required with --public")
			}
			if publicPath == "" && keyOut == "" {
				return fmt.Errorf("the key must go somewhere: --public/--wrapped-out to wrap it, or --key-out to keep it")
			}

			compression, err := recovery.ParseCompression(compressName)
			if err != nil {
				return err
			}

			payload, err := os.ReadFile(inPath)
			if err != nil {
				return fmt.Errorf("reading payload: %w", err)
			}

			key, err := recovery.PayloadKey()
			if err != nil {
				return err
			}
			defer key.Close()

			sealed, err := recovery.SealPayload(payload, key, compression)
			if err != nil {
				return err
			}
			if err := writeFileAtomic(outPath, sealed, 0644); err != nil {
				return err
			}
			fmt.Printf("sealed %d bytes to %s (%d bytes)\n", len(payload), outPath, len(sealed))

			if publicPath != "" {
				recipient, err := recovery.LoadRecipient(publicPath)
				if err != nil {
					return err
				}
				wrapped, err := recovery.Wrap(key, recipient)
				if err != nil {
					return err
				}
				if err := recovery.SaveWrappedKey(wrappedOut, wrapped); err != nil {
					return err
				}
				fmt.Printf("payload key wrapped for %s at %s\n", recipient.Fingerprint(), wrappedOut)
			}

			if keyOut != "" {
				if err := writePayloadKeyHex(keyOut, key); err != nil {
					return err
				}
				fmt.Printf("payload key: %s\n", keyOut)
				fmt.Println("wrap it for every custodian, then destroy this file")
			}
			return nil
		},
	}
}
