// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "palisade",
		Subcommands: []*Command{
			{
				Name: "status",
				Run: func(args []string) error {
					called = "status"
					return nil
				},
			},
			{
				Name: "arm",
				Run: func(args []string) error {
					called = "arm"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"arm"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "arm" {
		t.Errorf("dispatched to %q, want %q", called, "arm")
	}
}

func TestExecuteNestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "palisade",
		Subcommands: []*Command{
			{
				Name: "bundle",
				Subcommands: []*Command{
					{
						Name: "pack",
						Run: func(args []string) error {
							called = "bundle pack"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"bundle", "pack", "image.img"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "bundle pack" {
		t.Errorf("dispatched to %q, want %q", called, "bundle pack")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "image.img" {
		t.Errorf("args = %v, want [image.img]", receivedArgs)
	}
}

func TestExecuteFlagParsing(t *testing.T) {
	var configPath string
	var positional string

	command := &Command{
		Name: "status",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file path")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				positional = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--config", "/tmp/config.yaml", "extra"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if configPath != "/tmp/config.yaml" {
		t.Errorf("configPath = %q, want %q", configPath, "/tmp/config.yaml")
	}
	if positional != "extra" {
		t.Errorf("positional = %q, want %q", positional, "extra")
	}
}

func TestExecuteUnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "unwrap",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("unwrap", pflag.ContinueOnError)
			flagSet.String("private", "", "identity file")
			flagSet.String("public", "", "recipient file")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--privte", "k.age"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	message := err.Error()
	if !strings.Contains(message, "did you mean --private") {
		t.Errorf("error = %q, want suggestion for --private", message)
	}
	if !strings.Contains(message, "--help") {
		t.Errorf("error = %q, should point to --help", message)
	}
}

func TestExecuteUnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "status",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flagSet.String("config", "", "config file path")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
}

func TestExecuteUnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "palisade",
		Subcommands: []*Command{
			{Name: "status"},
			{Name: "respond"},
			{Name: "audit"},
		},
	}

	err := root.Execute([]string{"respnd"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), `did you mean "respond"`) {
		t.Errorf("error = %q, want suggestion for respond", err.Error())
	}
}

func TestExecuteUnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "palisade",
		Subcommands: []*Command{
			{Name: "status"},
			{Name: "audit"},
		},
	}

	err := root.Execute([]string{"zzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant input", err.Error())
	}
}

func TestExecuteHelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "palisade",
				Summary: "tamper-responsive controller",
				Subcommands: []*Command{
					{Name: "status", Summary: "Report the gate state"},
				},
			}

			if err := root.Execute([]string{helpArg}); err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestExecuteNoArgsRequiresSubcommand(t *testing.T) {
	root := &Command{
		Name: "palisade",
		Subcommands: []*Command{
			{Name: "status", Summary: "Report the gate state"},
		},
	}

	err := root.Execute([]string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestPrintHelp(t *testing.T) {
	command := &Command{
		Name:        "palisade",
		Description: "Tamper-responsive storage controller.",
		Subcommands: []*Command{
			{Name: "status", Summary: "Report the gate state"},
			{Name: "respond", Summary: "Answer an active challenge"},
			{Name: "audit", Summary: "List audit journal entries"},
		},
		Examples: []Example{
			{
				Description: "Arm the gate before leaving the site",
				Command:     "palisade arm",
			},
			{
				Description: "Answer a challenge",
				Command:     "palisade respond",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Tamper-responsive storage controller.",
		"Usage:",
		"palisade <command> [flags]",
		"Commands:",
		"status",
		"Report the gate state",
		"Examples:",
		"palisade arm",
		"Run 'palisade <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestPrintHelpWithFlags(t *testing.T) {
	command := &Command{
		Name:    "verify",
		Summary: "Verify a recovery manifest signature",
		Usage:   "palisade verify --image I --manifest M --sig S --public B",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flagSet.String("image", "", "image file to verify")
			flagSet.String("manifest", "", "manifest file")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"palisade verify --image I --manifest M --sig S --public B",
		"Flags:",
		"image",
		"manifest",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestFullName(t *testing.T) {
	root := &Command{Name: "palisade"}
	bundle := &Command{Name: "bundle", parent: root}
	pack := &Command{Name: "pack", parent: bundle}

	if got := root.fullName(); got != "palisade" {
		t.Errorf("root.fullName() = %q, want %q", got, "palisade")
	}
	if got := pack.fullName(); got != "palisade bundle pack" {
		t.Errorf("pack.fullName() = %q, want %q", got, "palisade bundle pack")
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"arm", "", 3},
		{"arm", "arm", 0},
		{"respnd", "respond", 1},
		{"stauts", "status", 2},
		{"keygen", "wrap", 6},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}
