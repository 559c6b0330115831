// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/palisade-systems/palisade/cmd/palisade/cli"
	"github.com/palisade-systems/palisade/lib/config"
	"github.com/palisade-systems/palisade/lib/ipc"
)

// loadConfig resolves the deployment configuration for commands that
// talk to the gate or read its files. CLI commands skip full
// validation: a config with a missing sensor path should not stop
// "palisade status" from answering.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// configFlag builds the standard --config flag set shared by the
// gate-facing commands.
func configFlag(name string, configPath *string) func() *pflag.FlagSet {
	return func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
		flagSet.StringVar(configPath, "config", "",
			"config file (default $PALISADE_CONFIG, then "+config.DefaultPath+")")
		return flagSet
	}
}

// printResponse writes the gate's answer: state, detail, and the
// refusal reason when there is one.
func printResponse(response ipc.Response) {
	fmt.Printf("state: %s\n", response.State)
	if response.Detail != "" {
		fmt.Printf("  %s\n", response.Detail)
	}
	if response.Error != "" {
		fmt.Fprintf(os.Stderr, "refused: %s\n", response.Error)
	}
}

// finishResponse converts a refused response into exit code 1. The
// refusal reason was already printed.
func finishResponse(response ipc.Response) error {
	printResponse(response)
	if !response.OK {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

func statusCommand() *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "status",
		Summary: "Report the gate's arming state",
		Description: `Report the gate's arming state and its current detail: heartbeat age
while armed, remaining attempts and deadline during a challenge,
pending destruction after authorization.`,
		Usage: "palisade status [flags]",
		Flags: configFlag("status", &configPath),
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			response, err := ipc.Call(cfg.Paths.ControlSocket, ipc.Request{Action: ipc.ActionStatus})
			if err != nil {
				return err
			}
			return finishResponse(response)
		},
	}
}

func armCommand() *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "arm",
		Summary: "Arm the gate",
		Description: `Arm the gate. From then on a tamper signal or heartbeat silence opens
a password challenge, and a failed challenge authorizes destruction.

Arm the gate after closing the case, before leaving the machine
unattended.`,
		Usage: "palisade arm [flags]",
		Flags: configFlag("arm", &configPath),
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			response, err := ipc.Call(cfg.Paths.ControlSocket, ipc.Request{Action: ipc.ActionArm})
			if err != nil {
				return err
			}
			return finishResponse(response)
		},
	}
}

func disarmCommand() *cli.Command {
	var configPath string
	var passwordFile string
	return &cli.Command{
		Name:    "disarm",
		Summary: "Disarm the gate",
		Description: `Disarm the gate. While the gate is simply armed no password is needed:
you are at the console of an unopened machine. While a challenge is
active, disarming requires the challenge password; the command prompts
for it and resends the request with disarm intent.`,
		Usage: "palisade disarm [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("disarm", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "",
				"config file (default $PALISADE_CONFIG, then "+config.DefaultPath+")")
			flagSet.StringVar(&passwordFile, "password-file", "-",
				"challenge password source if one is required: file path, or - to prompt")
			return flagSet
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			socket := cfg.Paths.ControlSocket

			response, err := ipc.Call(socket, ipc.Request{Action: ipc.ActionDisarm})
			if err != nil {
				return err
			}
			if !response.OK && strings.Contains(response.Error, "password required") {
				password, err := cli.ReadSecret(passwordFile, "Challenge password", false)
				if err != nil {
					return err
				}
				defer password.Close()

				// String() makes a brief heap copy at the wire
				// boundary; the locked buffer is the primary copy and
				// is zeroed on Close.
				response, err = ipc.Call(socket, ipc.Request{
					Action:   ipc.ActionDisarm,
					Password: password.String(),
				})
				if err != nil {
					return err
				}
			}
			return finishResponse(response)
		},
	}
}

func respondCommand() *cli.Command {
	var configPath string
	var passwordFile string
	return &cli.Command{
		Name:    "respond",
		Summary: "Answer an active challenge",
		Description: `Answer an active challenge with the challenge password. A correct
answer before the deadline returns the gate to armed; each wrong
answer burns one of the limited attempts.

The password is read with echo disabled. Exit code 1 means the answer
was refused; the remaining attempts are printed.`,
		Usage: "palisade respond [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("respond", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "",
				"config file (default $PALISADE_CONFIG, then "+config.DefaultPath+")")
			flagSet.StringVar(&passwordFile, "password-file", "-",
				"challenge password source: file path, or - to prompt")
			return flagSet
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			password, err := cli.ReadSecret(passwordFile, "Challenge password", false)
			if err != nil {
				return err
			}
			defer password.Close()

			response, err := ipc.Call(cfg.Paths.ControlSocket, ipc.Request{
				Action:   ipc.ActionRespond,
				Password: password.String(),
			})
			if err != nil {
				return err
			}
			return finishResponse(response)
		},
	}
}
