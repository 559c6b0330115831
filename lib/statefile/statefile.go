// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Package statefile persists the gate's last state transition to disk.
//
// The record is informational: authority over destruction lives only
// in the trigger marker. What the record buys is crash-restart
// continuity (a gate that comes back after dying mid-challenge can
// see what it was doing and say so loudly) and a forensic trail of
// the final transition when a machine is recovered after the fact.
//
// The file is written atomically (write to a temporary file, fsync,
// rename, sync the parent directory) so a reader never sees a torn
// record, and a crash between rename and metadata flush cannot leave
// a half-written file in place. Contents are JSON so an operator can
// read them with nothing but cat.
package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record is one persisted state transition.
type Record struct {
	// State is the arming state entered, in its wire spelling
	// ("disarmed", "armed", "challenge_active", "wipe_authorized",
	// "wiped").
	State string `json:"state"`

	// Reason is why the transition happened ("arm command",
	// "tamper:hall", "watchdog", "attempts exhausted", ...).
	Reason string `json:"reason"`

	// UpdatedAt is when the transition happened.
	UpdatedAt time.Time `json:"updated_at"`

	// PID is the gate process that wrote the record. Distinguishes
	// records from a crashed predecessor.
	PID int `json:"pid"`
}

// Write atomically writes the state record. The file is written to a
// temporary path in the same directory, fsynced, and renamed into
// place; readers never observe a partial write. Mode 0600; the parent
// directory must exist.
func Write(path string, record Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state record: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary state file: %w", err)
	}

	// Write, sync, close, in that order. On any failure, remove the
	// temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary state file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary state file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary state file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming state file into place: %w", err)
	}

	// Sync the parent directory so the rename survives power loss
	// before the OS flushes directory metadata.
	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}

	return nil
}

// Read reads and parses a state record. When the file does not exist,
// the returned error wraps os.ErrNotExist (testable with errors.Is).
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	return record, nil
}

// Check reads the state record and reports whether it was written
// within maxAge of now. Returns a zero Record and false when the file
// does not exist or the record is older than maxAge. Any other error
// (permission denied, corrupt JSON) is returned as-is so the caller
// can distinguish "no record" from "record unreadable".
//
// The gate uses this at startup: a fresh record from a crashed
// predecessor in "challenge_active" deserves a loud warning; an
// ancient record from last month is noise.
func Check(path string, maxAge time.Duration) (Record, bool, error) {
	record, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}

	if time.Since(record.UpdatedAt) > maxAge {
		return Record{}, false, nil
	}

	return record, true, nil
}
