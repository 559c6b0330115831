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

func signCommand() *cli.Command {
	var (
		imagePath      string
		identityPath   string
		passphraseFile string
		payloadPath    string
		manifestOut    string
		sigOut         string
	)
	return &cli.Command{
		Name:    "sign",
		Summary: "Sign a recovery image manifest",
		Description: `Sign builds a manifest over a recovery image (its BLAKE3 digest, size
and creation time) and signs it with the identity's ML-DSA-87 key.
With --payload, the manifest also binds the sealed payload that ships
alongside the image, so swapping either file breaks verification.

The manifest and signature are written as separate files for the
recovery medium. Verify them later with 'palisade verify'.`,
		Usage: "palisade sign --image IMAGE --identity KEY --manifest-out MANIFEST --sig-out SIG [flags]",
		Examples: []cli.Example{
			{
				Description: "sign an image and its sealed payload",
				Command:     "palisade sign --image recovery.img --payload header.sealed --identity recovery.key --manifest-out recovery.manifest --sig-out recovery.sig",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("sign", pflag.ContinueOnError)
			flags.StringVar(&imagePath, "image", "", "recovery image to describe")
			flags.StringVar(&identityPath, "identity", "", "identity key file to sign with")
			flags.StringVar(&passphraseFile, "passphrase-file", "-", "identity passphrase file ('-' prompts or reads stdin)")
			flags.StringVar(&payloadPath, "payload", "", "sealed payload to bind into the manifest")
			flags.StringVar(&manifestOut, "manifest-out", "", "output path for the manifest")
			flags.StringVar(&sigOut, "sig-out", "", "output path for the detached signature")
			return flags
		},
		Run: func(args []string) error {
			if imagePath == "" {
				return fmt.Errorf("--image is required")
			}
			if identityPath == "" {
				return fmt.Errorf("--identity is required")
			}
			if manifestOut == "" {
				return fmt.Errorf("--manifest-out is required")
			}
			if sigOut == "" {
				return fmt.Errorf("--sig-out is required")
			}

			image, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("reading image: %w", err)
			}
			var sealed []byte
			if payloadPath != "" {
				sealed, err = os.ReadFile(payloadPath)
				if err != nil {
					return fmt.Errorf("reading sealed payload: %w", err)
				}
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

			manifest := recovery.NewManifest(image, sealed, time.Now())
			signature, err := recovery.SignManifest(manifest, identity)
			if err != nil {
				return err
			}

			if err := recovery.SaveManifest(manifestOut, manifest); err != nil {
				return err
			}
			if err := recovery.SaveSignature(sigOut, signature); err != nil {
				return err
			}

			fmt.Printf("manifest: %s (image %d bytes, digest %x)\n", manifestOut, manifest.ImageSize, manifest.ImageDigest[:8])
			fmt.Printf("signature: %s\n", sigOut)
			return nil
		},
	}
}
