// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Palisade-wipe is the one-shot destruction executor. It runs at gate
// activation and at every boot, checks for the wipe authorization
// marker, and without one exits immediately. With one, it runs the
// destruction sequence: suspend the dm-crypt mapping, unmount, close,
// overwrite the LUKS header region with random data, consume the
// marker, and power off.
//
// The process installs no signal handlers. An interrupted run leaves
// the marker in place and the next boot finishes the job.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/palisade-systems/palisade/lib/config"
	"github.com/palisade-systems/palisade/lib/process"
	"github.com/palisade-systems/palisade/lib/version"
	"github.com/palisade-systems/palisade/lib/wipe"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file path (default $PALISADE_CONFIG, then "+config.DefaultPath+")")
	dryRun := flag.Bool("dry-run", false, "print the destruction sequence and exit without touching anything")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("palisade-wipe %s\n", version.Info())
		return nil
	}

	cfg, err := config.Resolve(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	engine := wipe.New(wipe.Plan{
		Device:      cfg.Wipe.Device,
		Mapping:     cfg.Wipe.Mapping,
		MountPoint:  cfg.Wipe.MountPoint,
		HeaderBytes: cfg.Wipe.HeaderBytes,
		ExtraBytes:  cfg.Wipe.ExtraBytes,
		Passes:      cfg.Wipe.Passes,
		MarkerPath:  cfg.Paths.TriggerMarker,
		Poweroff:    cfg.Wipe.Poweroff,
	}, logger)

	if *dryRun {
		fmt.Printf("destruction sequence for %s:\n", cfg.Wipe.Device)
		for _, step := range engine.Describe() {
			fmt.Printf("  %s\n", step)
		}
		return nil
	}

	results, err := engine.Execute(context.Background())
	if err != nil {
		return err
	}
	if results == nil {
		// No marker: routine boot, nothing authorized.
		return nil
	}

	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d steps failed", failed, len(results))
	}

	logger.Info("destruction sequence complete", "steps", len(results))
	return nil
}
