// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Package trigger manages the wipe-authorization marker file.
//
// The marker is the single durable authority for destruction: its
// existence on persistent storage, not the gate's in-memory state,
// is what licenses the wipe executor to destroy the data volume.
// The gate creates it exactly once per authorization with O_EXCL;
// a second create finds the file already present and treats that as
// success, so a gate that crashes between creating the marker and
// activating the executor can safely repeat both steps on restart.
//
// The marker's contents are JSON describing why and when the
// authorization happened. They are informational only. The executor
// keys off existence alone, so a marker whose contents were lost to
// a power cut mid-write still authorizes the wipe.
package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Marker records why a wipe was authorized.
type Marker struct {
	// Reason is the transition that authorized destruction
	// ("attempts exhausted", "deadline expired").
	Reason string `json:"reason"`

	// Detail carries the tamper cause that opened the challenge
	// ("tamper:hall", "watchdog"), when known.
	Detail string `json:"detail,omitempty"`

	// AuthorizedAt is when the gate entered WipeAuthorized.
	AuthorizedAt time.Time `json:"authorized_at"`

	// PID is the gate process that created the marker.
	PID int `json:"pid"`
}

// Create creates the marker file with O_EXCL and writes the marker
// contents. Returns created=false with a nil error when the file
// already exists; the prior authorization stands and its contents
// are left untouched.
//
// Any failure other than "already exists" means the authorization
// could not be made durable, and the caller must treat it as fatal.
// A failure after the file came into existence does not remove it:
// removal would revoke an authorization that is already in force.
func Create(path string, marker Marker) (created bool, err error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("creating wipe marker: %w", err)
	}

	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		file.Close()
		return true, fmt.Errorf("marshaling wipe marker: %w", err)
	}
	data = append(data, '\n')

	if _, err := file.Write(data); err != nil {
		file.Close()
		return true, fmt.Errorf("writing wipe marker: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return true, fmt.Errorf("syncing wipe marker: %w", err)
	}
	if err := file.Close(); err != nil {
		return true, fmt.Errorf("closing wipe marker: %w", err)
	}

	// Sync the parent directory so the marker's existence survives
	// power loss before the OS flushes directory metadata.
	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}

	return true, nil
}

// Exists reports whether the marker file is present.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking wipe marker: %w", err)
	}
	return true, nil
}

// Read reads and parses the marker contents. When the file does not
// exist, the returned error wraps os.ErrNotExist. Callers deciding
// whether to wipe must use Exists, not Read: corrupt contents do not
// revoke an authorization.
func Read(path string) (Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Marker{}, err
	}

	var marker Marker
	if err := json.Unmarshal(data, &marker); err != nil {
		return Marker{}, fmt.Errorf("parsing wipe marker %s: %w", path, err)
	}
	return marker, nil
}

// Clear removes the marker file. Removing a marker that does not
// exist is not an error. The executor calls this only after the
// overwrite passes have run; nothing else may clear a marker.
func Clear(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing wipe marker: %w", err)
	}
	return nil
}
