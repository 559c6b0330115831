// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/palisade-systems/palisade/cmd/palisade/cli"
	"github.com/palisade-systems/palisade/lib/recovery"
)

func verifyCommand() *cli.Command {
	var (
		imagePath    string
		manifestPath string
		sigPath      string
		publicPath   string
		payloadPath  string
	)
	return &cli.Command{
		Name:    "verify",
		Summary: "Verify a recovery image against its signed manifest",
		Description: `Verify checks the manifest signature first, then the image against
the authenticated manifest: nothing about the digests is meaningful
until the manifest itself is proven genuine. With --payload, the
sealed payload is checked against the manifest's bundle digest too.

Exit code 0 means everything matches; 1 means it does not. Scripts
can branch on the exit code alone.`,
		Usage: "palisade verify --image IMAGE --manifest MANIFEST --sig SIG --public BUNDLE [flags]",
		Examples: []cli.Example{
			{
				Description: "verify a recovery medium before trusting it",
				Command:     "palisade verify --image recovery.img --manifest recovery.manifest --sig recovery.sig --public recovery.pub",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flags.StringVar(&imagePath, "image", "", "recovery image to check")
			flags.StringVar(&manifestPath, "manifest", "", "manifest file")
			flags.StringVar(&sigPath, "sig", "", "detached signature file")
			flags.StringVar(&publicPath, "public", "", "signer's public key bundle")
			flags.StringVar(&payloadPath, "payload", "", "sealed payload to check against the manifest")
			return flags
		},
		Run: func(args []string) error {
			if imagePath == "" {
				return fmt.Errorf("--image is required")
			}
			if manifestPath == "" {
				return fmt.Errorf("--manifest is required")
			}
			if sigPath == "" {
				return fmt.Errorf("--sig is required")
			}
			if publicPath == "" {
				return fmt.Errorf("--public is required")
			}

			recipient, err := recovery.LoadRecipient(publicPath)
			if err != nil {
				return err
			}
			manifest, err := recovery.LoadManifest(manifestPath)
			if err != nil {
				return err
			}
			signature, err := recovery.LoadSignature(sigPath)
			if err != nil {
				return err
			}
			image, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("reading image: %w", err)
			}

			verified, err := recovery.VerifyManifest(manifest, signature, recipient)
			if err != nil {
				return err
			}
			if !verified {
				fmt.Println("FAILED: manifest signature does not verify")
				return &cli.ExitError{Code: 1}
			}
			if int64(len(image)) != manifest.ImageSize {
				fmt.Printf("FAILED: image is %d bytes, manifest says %d\n", len(image), manifest.ImageSize)
				return &cli.ExitError{Code: 1}
			}
			if !bytes.Equal(recovery.DigestImage(image), manifest.ImageDigest) {
				fmt.Println("FAILED: image digest does not match manifest")
				return &cli.ExitError{Code: 1}
			}

			if payloadPath != "" {
				sealed, err := os.ReadFile(payloadPath)
				if err != nil {
					return fmt.Errorf("reading sealed payload: %w", err)
				}
				if len(manifest.BundleDigest) == 0 {
					fmt.Println("FAILED: manifest carries no payload digest")
					return &cli.ExitError{Code: 1}
				}
				if !bytes.Equal(recovery.DigestBundle(sealed), manifest.BundleDigest) {
					fmt.Println("FAILED: sealed payload digest does not match manifest")
					return &cli.ExitError{Code: 1}
				}
			}

			fmt.Printf("OK: image matches manifest signed %s (%d bytes, digest %x)\n",
				manifest.CreatedAt.Format(time.RFC3339), manifest.ImageSize, manifest.ImageDigest[:8])
			return nil
		},
	}
}
