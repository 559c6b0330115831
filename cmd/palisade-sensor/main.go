// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Palisade-sensor is the unprivileged sensor daemon. It samples the
// case-closure and light sensors at the configured cadence and writes
// tamper events and heartbeats to the gate's event pipe.
//
// The daemon is deliberately fragile: an unreadable sensor at startup
// or a persistent pipe delivery failure is fatal. The gate's watchdog
// treats the resulting heartbeat silence as tamper, so a dead sensor
// daemon escalates instead of disappearing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/palisade-systems/palisade/lib/clock"
	"github.com/palisade-systems/palisade/lib/config"
	"github.com/palisade-systems/palisade/lib/ipc"
	"github.com/palisade-systems/palisade/lib/process"
	"github.com/palisade-systems/palisade/lib/sensor"
	"github.com/palisade-systems/palisade/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file path (default $PALISADE_CONFIG, then "+config.DefaultPath+")")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("palisade-sensor %s\n", version.Info())
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hall, err := sensor.New("hall", cfg.Sensors.Hall)
	if err != nil {
		return fmt.Errorf("building hall sensor: %w", err)
	}
	light, err := sensor.New("light", cfg.Sensors.Light)
	if err != nil {
		return fmt.Errorf("building light sensor: %w", err)
	}

	// Opening the write side blocks until the gate has opened the read
	// side, so sensor startup orders itself after gate startup.
	logger.Info("opening event pipe, waiting for gate", "pipe", cfg.Paths.EventPipe)
	writer, err := ipc.OpenPipeWriter(cfg.Paths.EventPipe, clock.Real())
	if err != nil {
		return err
	}
	defer writer.Close()

	poller := sensor.NewPoller(
		[]sensor.Sensor{hall, light},
		writer,
		clock.Real(),
		cfg.Sensors.HeartbeatInterval.Std(),
		logger,
	)

	logger.Info("sensor daemon running",
		"interval", cfg.Sensors.HeartbeatInterval.Std(),
		"hall", cfg.Sensors.Hall.Path,
		"light", cfg.Sensors.Light.Path,
	)

	if err := poller.Run(ctx); err != nil {
		return fmt.Errorf("poller: %w", err)
	}

	logger.Info("shutting down")
	return nil
}
