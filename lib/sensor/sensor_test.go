// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package sensor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/palisade-systems/palisade/lib/config"
)

// writeValueFile creates a sysfs-style value file and returns its path.
func writeValueFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "value")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestGPIOTampered(t *testing.T) {
	path := writeValueFile(t, "1\n")
	s, err := New("hall", config.SensorConfig{Kind: "gpio", Path: path, TamperValue: "1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tampered, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !tampered {
		t.Error("tampered = false for matching GPIO value")
	}
}

func TestGPIOUntampered(t *testing.T) {
	path := writeValueFile(t, "0\n")
	s, err := New("hall", config.SensorConfig{Kind: "gpio", Path: path, TamperValue: "1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tampered, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if tampered {
		t.Error("tampered = true for non-matching GPIO value")
	}
}

func TestGPIOMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value")
	s, err := New("hall", config.SensorConfig{Kind: "gpio", Path: path, TamperValue: "1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := s.Read(); err == nil {
		t.Error("Read of missing value file succeeded, want error")
	}
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		name     string
		reading  string
		tampered bool
	}{
		{"below", "39\n", false},
		{"at threshold", "40\n", true},
		{"above", "400\n", true},
		{"zero", "0\n", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := writeValueFile(t, test.reading)
			s, err := New("light", config.SensorConfig{Kind: "threshold", Path: path, Threshold: 40})
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			tampered, err := s.Read()
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if tampered != test.tampered {
				t.Errorf("tampered = %v for reading %q, want %v", tampered, test.reading, test.tampered)
			}
		})
	}
}

func TestThresholdGarbageReading(t *testing.T) {
	path := writeValueFile(t, "bright\n")
	s, err := New("light", config.SensorConfig{Kind: "threshold", Path: path, Threshold: 40})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := s.Read(); err == nil {
		t.Error("Read of non-integer value succeeded, want error")
	}
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New("hall", config.SensorConfig{Kind: "sonar", Path: "/dev/null"})
	if err == nil {
		t.Error("New with unknown kind succeeded, want error")
	}
}

func TestName(t *testing.T) {
	path := writeValueFile(t, "0")
	s, err := New("hall", config.SensorConfig{Kind: "gpio", Path: path, TamperValue: "1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := s.Name(); got != "hall" {
		t.Errorf("Name() = %q, want %q", got, "hall")
	}
}
