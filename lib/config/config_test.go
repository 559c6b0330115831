// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "palisade.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if got := cfg.Watchdog.Timeout.Std(); got != 15*time.Second {
		t.Errorf("watchdog.timeout = %s, want 15s", got)
	}
	if got := cfg.Challenge.Deadline.Std(); got != 120*time.Second {
		t.Errorf("challenge.deadline = %s, want 120s", got)
	}
	if cfg.Challenge.MaxAttempts != 3 {
		t.Errorf("challenge.max_attempts = %d, want 3", cfg.Challenge.MaxAttempts)
	}
	if got := cfg.Sensors.HeartbeatInterval.Std(); got != 5*time.Second {
		t.Errorf("sensors.heartbeat_interval = %s, want 5s", got)
	}
	if !cfg.Wipe.Poweroff {
		t.Error("wipe.poweroff should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() should validate cleanly: %v", err)
	}
}

func TestLoad_RequiresPalisadeConfig(t *testing.T) {
	origConfig := os.Getenv("PALISADE_CONFIG")
	defer os.Setenv("PALISADE_CONFIG", origConfig)
	os.Unsetenv("PALISADE_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when PALISADE_CONFIG not set, got nil")
	}
	if !strings.Contains(err.Error(), "PALISADE_CONFIG") {
		t.Errorf("error %q should mention PALISADE_CONFIG", err)
	}
}

func TestLoadFile_MergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
watchdog:
  timeout: 30s
challenge:
  max_attempts: 5
paths:
  trigger_marker: /custom/marker
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if got := cfg.Watchdog.Timeout.Std(); got != 30*time.Second {
		t.Errorf("watchdog.timeout = %s, want 30s", got)
	}
	// Unset keys keep their defaults.
	if got := cfg.Watchdog.TickInterval.Std(); got != time.Second {
		t.Errorf("watchdog.tick_interval = %s, want default 1s", got)
	}
	if cfg.Challenge.MaxAttempts != 5 {
		t.Errorf("challenge.max_attempts = %d, want 5", cfg.Challenge.MaxAttempts)
	}
	if cfg.Paths.TriggerMarker != "/custom/marker" {
		t.Errorf("paths.trigger_marker = %q, want /custom/marker", cfg.Paths.TriggerMarker)
	}
	if !cfg.Wipe.Poweroff {
		t.Error("wipe.poweroff should keep its true default when absent")
	}
}

func TestLoadFile_PoweroffExplicitFalse(t *testing.T) {
	path := writeConfig(t, `
wipe:
  poweroff: false
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Wipe.Poweroff {
		t.Error("explicit poweroff: false was not applied")
	}
}

func TestLoadFile_BadDuration(t *testing.T) {
	path := writeConfig(t, `
watchdog:
  timeout: fifteen seconds
`)

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestLoadFile_NotFound(t *testing.T) {
	if _, err := LoadFile("/nonexistent/palisade.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFile_ExpandsVariables(t *testing.T) {
	t.Setenv("PALISADE_TEST_ROOT", "/opt/palisade")
	path := writeConfig(t, `
paths:
  trigger_marker: ${PALISADE_TEST_ROOT}/wipe-authorized
  state_file: ${PALISADE_TEST_UNSET:-/fallback}/state.json
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Paths.TriggerMarker != "/opt/palisade/wipe-authorized" {
		t.Errorf("trigger_marker = %q, want expanded path", cfg.Paths.TriggerMarker)
	}
	if cfg.Paths.StateFile != "/fallback/state.json" {
		t.Errorf("state_file = %q, want default-expanded path", cfg.Paths.StateFile)
	}
}

func TestValidate_WatchdogMustExceedHeartbeat(t *testing.T) {
	cfg := Default()
	cfg.Watchdog.Timeout = Duration(5 * time.Second)
	cfg.Sensors.HeartbeatInterval = Duration(5 * time.Second)

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error when timeout <= heartbeat interval")
	}
	if !strings.Contains(err.Error(), "watchdog.timeout") {
		t.Errorf("error %q should name watchdog.timeout", err)
	}
}

func TestValidate_SensorKinds(t *testing.T) {
	cfg := Default()
	cfg.Sensors.Hall.Kind = "capacitive"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for unknown sensor kind")
	}
	if !strings.Contains(err.Error(), "sensors.hall.kind") {
		t.Errorf("error %q should name sensors.hall.kind", err)
	}
}

func TestValidate_GpioNeedsTamperValue(t *testing.T) {
	cfg := Default()
	cfg.Sensors.Hall.TamperValue = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for gpio sensor without tamper_value")
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Watchdog.Timeout = 0
	cfg.Challenge.MaxAttempts = 0
	cfg.Paths.TriggerMarker = ""
	cfg.Wipe.Passes = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"watchdog.timeout",
		"challenge.max_attempts",
		"paths.trigger_marker",
		"wipe.passes",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %s; got %q", want, err)
		}
	}
}

func TestEnsureRuntimeDirs(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Paths.EventPipe = filepath.Join(root, "run", "events")
	cfg.Paths.ControlSocket = filepath.Join(root, "run", "gate.sock")
	cfg.Paths.TriggerMarker = filepath.Join(root, "lib", "wipe-authorized")
	cfg.Paths.StateFile = filepath.Join(root, "lib", "gate-state.json")
	cfg.Paths.AuditDB = filepath.Join(root, "lib", "audit.db")

	if err := cfg.EnsureRuntimeDirs(); err != nil {
		t.Fatalf("EnsureRuntimeDirs failed: %v", err)
	}
	for _, dir := range []string{
		filepath.Join(root, "run"),
		filepath.Join(root, "lib"),
	} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("%s is not a directory", dir)
		}
	}
}
