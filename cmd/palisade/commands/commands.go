// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the palisade CLI command tree: gate control
// (status, arm, disarm, respond, audit), provisioning (passwd,
// keygen), and the offline recovery toolchain (wrap, seal, sign,
// verify, unwrap, bundle).
package commands

import (
	"fmt"

	"github.com/palisade-systems/palisade/cmd/palisade/cli"
	"github.com/palisade-systems/palisade/lib/version"
)

// Root builds the complete palisade CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "palisade",
		Description: `Palisade: tamper-responsive storage controller.

Control the arming gate, answer tamper challenges, provision challenge
passwords and recovery keys, and build or decrypt offline recovery
media.`,
		Subcommands: []*cli.Command{
			statusCommand(),
			armCommand(),
			disarmCommand(),
			respondCommand(),
			auditCommand(),
			passwdCommand(),
			keygenCommand(),
			wrapCommand(),
			sealCommand(),
			signCommand(),
			verifyCommand(),
			unwrapCommand(),
			bundleCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("palisade %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Arm the gate before leaving the site",
				Command:     "palisade arm",
			},
			{
				Description: "Answer an active challenge",
				Command:     "palisade respond",
			},
			{
				Description: "Inspect the decision journal",
				Command:     "palisade audit --limit 20",
			},
			{
				Description: "Generate a recovery keypair",
				Command:     "palisade keygen --identity recovery.key --recipient recovery.pub",
			},
			{
				Description: "Build a signed, encrypted recovery bundle",
				Command:     "palisade bundle pack backup.img --public recovery.pub --identity signing.key --out backup.bundle",
			},
			{
				Description: "Verify a recovery image against its manifest",
				Command:     "palisade verify --image backup.img --manifest backup.manifest --sig backup.sig --public signing.pub",
			},
		},
	}
}
