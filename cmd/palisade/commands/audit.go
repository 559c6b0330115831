// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/palisade-systems/palisade/cmd/palisade/cli"
	"github.com/palisade-systems/palisade/lib/audit"
	"github.com/palisade-systems/palisade/lib/clock"
	"github.com/palisade-systems/palisade/lib/config"
)

func auditCommand() *cli.Command {
	var configPath string
	var limit int
	return &cli.Command{
		Name:    "audit",
		Summary: "List audit journal entries",
		Description: `List the gate's decision journal, newest first: state transitions,
challenge attempts, and marker actions. The journal is read directly
from the SQLite database; WAL mode makes the read safe while the gate
is running.`,
		Usage: "palisade audit [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("audit", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "",
				"config file (default $PALISADE_CONFIG, then "+config.DefaultPath+")")
			flagSet.IntVar(&limit, "limit", 50, "maximum number of entries to list")
			return flagSet
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if limit < 1 {
				return fmt.Errorf("--limit must be at least 1")
			}

			journal, err := audit.Open(cfg.Paths.AuditDB, clock.Real(), cli.NewCommandLogger())
			if err != nil {
				return err
			}
			defer journal.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			entries, err := journal.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("journal is empty")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tEVENT\tSTATE\tREASON\tDETAIL")
			for _, entry := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					entry.RecordedAt.UTC().Format("2006-01-02 15:04:05"),
					entry.Event,
					formatStates(entry),
					entry.Reason,
					entry.Detail)
			}
			return tw.Flush()
		},
	}
}

// formatStates renders the transition column: "from -> to" for
// transitions, the bare state for events recorded within one.
func formatStates(entry audit.Entry) string {
	switch {
	case entry.FromState != "" && entry.ToState != "" && entry.FromState != entry.ToState:
		return entry.FromState + " -> " + entry.ToState
	case entry.ToState != "":
		return entry.ToState
	case entry.FromState != "":
		return entry.FromState
	default:
		return ""
	}
}
