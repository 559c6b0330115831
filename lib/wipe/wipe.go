// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Package wipe implements the destruction sequence: suspend the
// encrypted mapping, unmount and close it, then overwrite the LUKS
// header and key-slot region with random data. Destroying the header
// destroys the only copy of the key material that can ever decrypt
// the bulk data, so a few megabytes of writes make terabytes
// unrecoverable.
//
// The engine runs every step even when earlier steps fail. A wipe
// happens under the worst possible conditions, with an adversary
// physically present, and "cryptsetup was not on PATH" must not save
// the data. The wipe marker is consumed only when every overwrite
// pass completed; otherwise it stays on disk and the next boot
// retries the sequence.
package wipe

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/palisade-systems/palisade/lib/trigger"
)

// chunkSize is the unit of overwrite writes. Each chunk is freshly
// random and synced before the next.
const chunkSize = 1 << 20

// Plan is the resolved destruction plan.
type Plan struct {
	// Device is the block device carrying the LUKS header.
	Device string

	// Mapping is the device-mapper name of the opened volume. Empty
	// skips the suspend and close steps.
	Mapping string

	// MountPoint is where the volume is mounted. Empty skips the
	// unmount step.
	MountPoint string

	// HeaderBytes is the size of the header region overwritten from
	// offset zero.
	HeaderBytes int64

	// ExtraBytes is the size of the spill region overwritten beyond
	// the header.
	ExtraBytes int64

	// Passes is the number of overwrite passes over each region.
	Passes int

	// MarkerPath is the wipe-authorization marker consumed on
	// success.
	MarkerPath string

	// Poweroff powers the machine off after the sequence.
	Poweroff bool
}

// Step is one unit of the destruction sequence.
type Step struct {
	// Name identifies the step in logs and results.
	Name string

	// Run executes the step.
	Run func(ctx context.Context) error

	// required marks the steps whose success is a precondition for
	// consuming the marker: the overwrites. Command steps are not
	// required; a failed unmount does not make the header any less
	// destroyed.
	required bool
}

// StepResult records one executed step.
type StepResult struct {
	Name string
	Err  error
}

// Engine executes a destruction plan.
type Engine struct {
	plan   Plan
	logger *slog.Logger

	run      func(ctx context.Context, name string, args ...string) error
	unmount  func(target string, flags int) error
	sync     func()
	poweroff func() error
}

// New builds an engine over the plan. The process-level effects
// (subprocesses, unmount, sync, poweroff) are wired to the real
// system here.
func New(plan Plan, logger *slog.Logger) *Engine {
	if plan.Passes < 1 {
		plan.Passes = 1
	}
	return &Engine{
		plan:   plan,
		logger: logger,
		run:    runCommand,
		unmount: func(target string, flags int) error {
			return unix.Unmount(target, flags)
		},
		sync: unix.Sync,
		poweroff: func() error {
			return unix.Reboot(unix.LINUX_REBOOT_CMD_POWER_OFF)
		},
	}
}

// Describe returns the step names the plan would execute, in order,
// for dry-run display.
func (e *Engine) Describe() []string {
	var lines []string
	for _, step := range e.steps() {
		lines = append(lines, step.Name)
	}
	lines = append(lines, "delete wipe marker", "sync")
	if e.plan.Poweroff {
		lines = append(lines, "power off")
	}
	return lines
}

// Execute re-checks the marker and runs the destruction sequence.
// An absent marker is a no-op, not an error: activation requests are
// cheap and deliberately over-sent. An unreadable marker path is an
// error; destruction without provable authorization is refused.
//
// Every step is attempted regardless of earlier failures. The
// returned results record each step's outcome.
func (e *Engine) Execute(ctx context.Context) ([]StepResult, error) {
	exists, err := trigger.Exists(e.plan.MarkerPath)
	if err != nil {
		return nil, fmt.Errorf("verifying authorization: %w", err)
	}
	if !exists {
		e.logger.Info("no wipe marker; nothing to do", "path", e.plan.MarkerPath)
		return nil, nil
	}

	// Corrupt marker contents do not revoke the authorization; the
	// file's existence is the authority.
	if marker, err := trigger.Read(e.plan.MarkerPath); err != nil {
		e.logger.Warn("wipe marker unreadable; proceeding on existence alone", "error", err)
	} else {
		e.logger.Info("wipe marker present",
			"reason", marker.Reason, "detail", marker.Detail, "authorized_at", marker.AuthorizedAt)
	}

	steps := e.steps()
	results := make([]StepResult, 0, len(steps))
	destructionComplete := true
	for _, step := range steps {
		e.logger.Info("running wipe step", "step", step.Name)
		err := step.Run(ctx)
		if err != nil {
			e.logger.Error("wipe step failed; continuing", "step", step.Name, "error", err)
			if step.required {
				destructionComplete = false
			}
		}
		results = append(results, StepResult{Name: step.Name, Err: err})
	}

	if destructionComplete {
		if err := trigger.Clear(e.plan.MarkerPath); err != nil {
			e.logger.Error("clearing wipe marker", "error", err)
		} else {
			e.logger.Info("wipe marker consumed")
		}
	} else {
		e.logger.Error("overwrite incomplete; marker left in place for retry at next boot")
	}

	e.sync()

	if e.plan.Poweroff {
		e.logger.Info("powering off")
		if err := e.poweroff(); err != nil {
			e.logger.Error("poweroff failed", "error", err)
		}
	}
	return results, nil
}

// steps builds the ordered destruction sequence for the plan.
func (e *Engine) steps() []Step {
	var steps []Step

	if e.plan.Mapping != "" {
		// Suspend first: luksSuspend flushes the volume master key
		// from kernel memory, so interrupting a later step cannot
		// leave the key recoverable from RAM.
		steps = append(steps, Step{
			Name: "suspend mapping",
			Run: func(ctx context.Context) error {
				return e.run(ctx, "cryptsetup", "luksSuspend", e.plan.Mapping)
			},
		})
	}
	if e.plan.MountPoint != "" {
		steps = append(steps, Step{
			Name: "unmount volume",
			Run: func(ctx context.Context) error {
				return e.unmountVolume()
			},
		})
	}
	if e.plan.Mapping != "" {
		steps = append(steps, Step{
			Name: "close mapping",
			Run: func(ctx context.Context) error {
				return e.run(ctx, "cryptsetup", "close", e.plan.Mapping)
			},
		})
	}

	for pass := 1; pass <= e.plan.Passes; pass++ {
		steps = append(steps, Step{
			Name:     fmt.Sprintf("overwrite header (pass %d of %d)", pass, e.plan.Passes),
			required: true,
			Run: func(ctx context.Context) error {
				return e.overwriteRegion(0, e.plan.HeaderBytes)
			},
		})
		if e.plan.ExtraBytes > 0 {
			steps = append(steps, Step{
				Name:     fmt.Sprintf("overwrite spill region (pass %d of %d)", pass, e.plan.Passes),
				required: true,
				Run: func(ctx context.Context) error {
					return e.overwriteRegion(e.plan.HeaderBytes, e.plan.ExtraBytes)
				},
			})
		}
	}
	return steps
}

// unmountVolume unmounts the mount point, falling back to a lazy
// unmount when the volume is busy. A target that is not mounted at
// all counts as success.
func (e *Engine) unmountVolume() error {
	err := e.unmount(e.plan.MountPoint, 0)
	if err == nil || errors.Is(err, unix.EINVAL) {
		return nil
	}
	e.logger.Warn("unmount failed; retrying lazily", "mount_point", e.plan.MountPoint, "error", err)

	err = e.unmount(e.plan.MountPoint, unix.MNT_DETACH)
	if err == nil || errors.Is(err, unix.EINVAL) {
		return nil
	}
	return fmt.Errorf("unmounting %s lazily: %w", e.plan.MountPoint, err)
}

// overwriteRegion writes fresh random data over [offset,
// offset+length) of the device, syncing after every chunk. A device
// smaller than the region ends the overwrite early without error:
// everything that exists was destroyed.
func (e *Engine) overwriteRegion(offset, length int64) error {
	file, err := os.OpenFile(e.plan.Device, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", e.plan.Device, err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to %d on %s: %w", offset, e.plan.Device, err)
	}

	buffer := make([]byte, chunkSize)
	remaining := length
	for remaining > 0 {
		n := int64(chunkSize)
		if remaining < n {
			n = remaining
		}
		if _, err := io.ReadFull(rand.Reader, buffer[:n]); err != nil {
			return fmt.Errorf("generating random data: %w", err)
		}

		written, err := file.Write(buffer[:n])
		if err != nil {
			if errors.Is(err, syscall.ENOSPC) {
				e.logger.Info("device ends inside overwrite region",
					"device", e.plan.Device, "offset", offset+(length-remaining))
				break
			}
			return fmt.Errorf("writing %s at offset %d: %w", e.plan.Device, offset+(length-remaining), err)
		}
		if err := file.Sync(); err != nil {
			return fmt.Errorf("syncing %s: %w", e.plan.Device, err)
		}
		remaining -= int64(written)
	}
	return nil
}

// runCommand executes a subprocess, capturing stderr for the error
// message.
func runCommand(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	command := exec.CommandContext(ctx, name, args...)
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return fmt.Errorf("%s %s: %w (stderr: %s)",
			name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
