// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Palisade-gate is the privileged decision process. It owns the arming
// state machine: sensor frames come in on the event pipe, operator
// requests come in on the control socket, and the only things that
// ever come out are audit entries, the persisted state record, and, on
// an unanswered challenge, the wipe authorization marker.
//
// On startup:
//  1. Loads and validates the config and the challenge password hash.
//  2. Creates the runtime directories, the event pipe, and the
//     control socket.
//  3. Opens the audit journal.
//  4. Checks for a leftover wipe marker; if present, starts in
//     WipeAuthorized and re-requests executor activation.
//  5. Runs the event loop until signalled.
//
// The gate refuses to start without a verifiable password hash: a
// challenge that cannot be answered is an unconditional wipe timer.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/palisade-systems/palisade/lib/audit"
	"github.com/palisade-systems/palisade/lib/challenge"
	"github.com/palisade-systems/palisade/lib/clock"
	"github.com/palisade-systems/palisade/lib/config"
	"github.com/palisade-systems/palisade/lib/gate"
	"github.com/palisade-systems/palisade/lib/ipc"
	"github.com/palisade-systems/palisade/lib/process"
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
		fmt.Printf("palisade-gate %s\n", version.Info())
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

	passwordHash, err := challenge.LoadHash(cfg.Challenge.PasswordHashPath)
	if err != nil {
		return fmt.Errorf("loading challenge password hash (run 'palisade passwd'): %w", err)
	}

	if err := cfg.EnsureRuntimeDirs(); err != nil {
		return err
	}
	if err := ipc.EnsurePipe(cfg.Paths.EventPipe); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	journal, err := audit.Open(cfg.Paths.AuditDB, clock.Real(), logger)
	if err != nil {
		return fmt.Errorf("opening audit journal: %w", err)
	}
	defer journal.Close()

	g := gate.New(gate.Options{
		WatchdogTimeout:   cfg.Watchdog.Timeout.Std(),
		TickInterval:      cfg.Watchdog.TickInterval.Std(),
		ChallengeDeadline: cfg.Challenge.Deadline.Std(),
		MaxAttempts:       cfg.Challenge.MaxAttempts,
		PasswordHash:      passwordHash,
		MarkerPath:        cfg.Paths.TriggerMarker,
		StatePath:         cfg.Paths.StateFile,
		Activate:          activateFunc(cfg.Wipe.Command, logger),
		Clock:             clock.Real(),
		Journal:           journal,
		Logger:            logger,
	})
	if err := g.Start(ctx); err != nil {
		return err
	}

	// The read side must be open before the sensor daemon's blocking
	// write-side open can complete.
	pipeReader, err := ipc.OpenPipeReader(cfg.Paths.EventPipe)
	if err != nil {
		return err
	}
	defer pipeReader.Close()

	events := make(chan ipc.Envelope, 16)
	go func() {
		// A decode failure ends the reader; the watchdog notices the
		// resulting silence and escalates on its own schedule.
		if err := ipc.ReadEnvelopes(ctx, pipeReader, events); err != nil && ctx.Err() == nil {
			logger.Error("event pipe reader stopped", "error", err)
		}
	}()

	listener, err := ipc.Listen(cfg.Paths.ControlSocket)
	if err != nil {
		return fmt.Errorf("creating control socket: %w", err)
	}
	defer listener.Close()

	requests := make(chan gate.ControlRequest)
	handler := func(ctx context.Context, request ipc.Request) ipc.Response {
		reply := make(chan ipc.Response, 1)
		select {
		case requests <- gate.ControlRequest{Request: request, Reply: reply}:
		case <-ctx.Done():
			return ipc.Response{OK: false, Error: "gate is shutting down"}
		}
		select {
		case response := <-reply:
			return response
		case <-ctx.Done():
			return ipc.Response{OK: false, Error: "gate is shutting down"}
		}
	}
	go ipc.Serve(ctx, listener, handler, logger)

	logger.Info("gate running",
		"state", g.State(),
		"socket", cfg.Paths.ControlSocket,
		"pipe", cfg.Paths.EventPipe,
		"watchdog_timeout", cfg.Watchdog.Timeout.Std(),
	)

	return g.Run(ctx, events, requests)
}

// activateFunc builds the executor activation callback from the
// configured command line. A nil return (empty command) means the
// deployment relies on an external watcher of the trigger marker.
func activateFunc(command []string, logger *slog.Logger) func(ctx context.Context) error {
	if len(command) == 0 {
		return nil
	}
	return func(ctx context.Context) error {
		// Deliberately not CommandContext: once spawned, the executor
		// must outlive any gate shutdown.
		cmd := exec.Command(command[0], command[1:]...)
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("starting wipe executor: %w", err)
		}
		logger.Info("wipe executor spawned", "pid", cmd.Process.Pid, "command", command[0])
		go func() {
			if err := cmd.Wait(); err != nil {
				logger.Error("wipe executor exited with error", "error", err)
			}
		}()
		return nil
	}
}
