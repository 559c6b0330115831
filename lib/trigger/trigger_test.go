// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package trigger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateWritesMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wipe-authorized")

	marker := Marker{
		Reason:       "attempts exhausted",
		Detail:       "tamper:hall",
		AuthorizedAt: time.Now().Truncate(time.Second),
		PID:          os.Getpid(),
	}
	created, err := Create(path, marker)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created {
		t.Fatal("Create reported created=false for a fresh marker")
	}

	read, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if read.Reason != marker.Reason {
		t.Errorf("Reason = %q, want %q", read.Reason, marker.Reason)
	}
	if read.Detail != marker.Detail {
		t.Errorf("Detail = %q, want %q", read.Detail, marker.Detail)
	}
	if !read.AuthorizedAt.Equal(marker.AuthorizedAt) {
		t.Errorf("AuthorizedAt = %v, want %v", read.AuthorizedAt, marker.AuthorizedAt)
	}
	if read.PID != marker.PID {
		t.Errorf("PID = %d, want %d", read.PID, marker.PID)
	}
}

func TestCreateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wipe-authorized")

	first := Marker{Reason: "attempts exhausted", AuthorizedAt: time.Now(), PID: 100}
	created, err := Create(path, first)
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if !created {
		t.Fatal("first Create reported created=false")
	}

	second := Marker{Reason: "deadline expired", AuthorizedAt: time.Now(), PID: 200}
	created, err = Create(path, second)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if created {
		t.Error("second Create reported created=true, want existing marker honored")
	}

	// The original authorization's contents must survive.
	read, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if read.Reason != "attempts exhausted" {
		t.Errorf("Reason = %q, want original %q", read.Reason, "attempts exhausted")
	}
	if read.PID != 100 {
		t.Errorf("PID = %d, want original 100", read.PID)
	}
}

func TestCreateFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wipe-authorized")

	if _, err := Create(path, Marker{Reason: "attempts exhausted", AuthorizedAt: time.Now()}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if got := info.Mode().Perm(); got != 0600 {
		t.Errorf("file mode = %04o, want 0600", got)
	}
}

func TestCreateParentDirectoryMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "wipe-authorized")

	_, err := Create(path, Marker{Reason: "attempts exhausted", AuthorizedAt: time.Now()})
	if err == nil {
		t.Error("Create into missing directory succeeded, want error")
	}
}

func TestExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wipe-authorized")

	exists, err := Exists(path)
	if err != nil {
		t.Fatalf("Exists before create: %v", err)
	}
	if exists {
		t.Error("Exists = true before create")
	}

	if _, err := Create(path, Marker{Reason: "deadline expired", AuthorizedAt: time.Now()}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	exists, err = Exists(path)
	if err != nil {
		t.Fatalf("Exists after create: %v", err)
	}
	if !exists {
		t.Error("Exists = false after create")
	}
}

func TestReadNonexistent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wipe-authorized")

	_, err := Read(path)
	if err == nil {
		t.Fatal("Read of nonexistent marker succeeded, want error")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want os.ErrNotExist", err)
	}
}

func TestReadCorruptContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wipe-authorized")
	if err := os.WriteFile(path, []byte("{torn"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Read(path)
	if err == nil {
		t.Fatal("Read of corrupt marker succeeded, want error")
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("error %q does not mention path %q", err, path)
	}

	// Corrupt contents must not revoke the authorization.
	exists, err := Exists(path)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Error("Exists = false for a marker with corrupt contents")
	}
}

func TestClearExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wipe-authorized")

	if _, err := Create(path, Marker{Reason: "attempts exhausted", AuthorizedAt: time.Now()}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	exists, err := Exists(path)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("marker still exists after Clear")
	}
}

func TestClearNonexistent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wipe-authorized")

	if err := Clear(path); err != nil {
		t.Errorf("Clear of nonexistent marker: %v", err)
	}
}

func TestClearIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wipe-authorized")

	if _, err := Create(path, Marker{Reason: "deadline expired", AuthorizedAt: time.Now()}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("first Clear: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}
