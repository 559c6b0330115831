// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML duration
// strings ("15s", "2m"). The watchdog timeout, challenge deadline,
// and sensor cadence are all written this way in the config file.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"15s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the master configuration for a Palisade deployment. One
// file serves all three processes and the CLI.
type Config struct {
	// Watchdog configures the gate's heartbeat watchdog.
	Watchdog WatchdogConfig `yaml:"watchdog"`

	// Challenge configures the password challenge.
	Challenge ChallengeConfig `yaml:"challenge"`

	// Sensors configures the tamper sensors and heartbeat cadence.
	Sensors SensorsConfig `yaml:"sensors"`

	// Paths configures the filesystem rendezvous points between the
	// processes.
	Paths PathsConfig `yaml:"paths"`

	// Wipe configures the destruction plan.
	Wipe WipeConfig `yaml:"wipe"`
}

// WatchdogConfig governs how the gate converts heartbeat silence into
// a tamper response.
type WatchdogConfig struct {
	// Timeout is the maximum heartbeat gap tolerated while Armed.
	// A gap longer than this is treated identically to a tamper
	// event. Must exceed the sensor heartbeat interval.
	Timeout Duration `yaml:"timeout"`

	// TickInterval is the period of the gate's internal timer that
	// checks the watchdog and the challenge deadline.
	TickInterval Duration `yaml:"tick_interval"`
}

// ChallengeConfig governs the password challenge started on a tamper
// signal.
type ChallengeConfig struct {
	// Deadline is how long the operator has to answer the challenge
	// before destruction is authorized.
	Deadline Duration `yaml:"deadline"`

	// MaxAttempts is how many wrong passwords are tolerated before
	// destruction is authorized, deadline notwithstanding.
	MaxAttempts int `yaml:"max_attempts"`

	// PasswordHashPath is the file holding the argon2id PHC string
	// the challenge verifies against. Written by `palisade passwd`.
	PasswordHashPath string `yaml:"password_hash_path"`
}

// SensorsConfig defines the two tamper sensors and their shared
// sampling cadence.
type SensorsConfig struct {
	// HeartbeatInterval is both the sensor sampling period and the
	// heartbeat emission period.
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	// Hall is the case-closure sensor (magnetic/Hall effect).
	Hall SensorConfig `yaml:"hall"`

	// Light is the case-interior light sensor.
	Light SensorConfig `yaml:"light"`
}

// SensorConfig describes one physical sensor exposed as a sysfs
// attribute file.
type SensorConfig struct {
	// Kind selects the read strategy: "gpio" (exact value match) or
	// "threshold" (integer reading at or above Threshold).
	Kind string `yaml:"kind"`

	// Path is the sysfs attribute file to read.
	Path string `yaml:"path"`

	// TamperValue is the trimmed file content that means tampered.
	// Used by kind "gpio". Default "1".
	TamperValue string `yaml:"tamper_value,omitempty"`

	// Threshold is the reading at or above which the sensor reports
	// tampered. Used by kind "threshold".
	Threshold int `yaml:"threshold,omitempty"`
}

// PathsConfig holds the filesystem rendezvous points. The event pipe
// and control socket live on a runtime (tmpfs) directory; the trigger
// marker, state file, and audit journal must live on persistent
// storage so they survive reboot.
type PathsConfig struct {
	// EventPipe is the named pipe carrying sensor frames to the gate.
	EventPipe string `yaml:"event_pipe"`

	// TriggerMarker is the wipe authorization marker. Its existence
	// is the entire authorization protocol.
	TriggerMarker string `yaml:"trigger_marker"`

	// ControlSocket is the gate's operator control socket.
	ControlSocket string `yaml:"control_socket"`

	// StateFile is the gate's persisted state record.
	StateFile string `yaml:"state_file"`

	// AuditDB is the SQLite audit journal.
	AuditDB string `yaml:"audit_db"`
}

// WipeConfig is the destruction plan consumed by palisade-wipe and,
// for executor activation, by the gate.
type WipeConfig struct {
	// Device is the block device whose LUKS header is destroyed.
	Device string `yaml:"device"`

	// Mapping is the dm-crypt mapping name (cryptsetup open name).
	Mapping string `yaml:"mapping"`

	// MountPoint is the filesystem mount to unmount before closing
	// the mapping.
	MountPoint string `yaml:"mount_point"`

	// HeaderBytes is the size of the header/key-slot region to
	// overwrite from offset zero. 16 MiB covers a default LUKS2
	// header with generous margin.
	HeaderBytes int64 `yaml:"header_bytes"`

	// ExtraBytes is an additional region overwritten beyond the
	// header, defense in depth.
	ExtraBytes int64 `yaml:"extra_bytes"`

	// Passes is the number of random overwrite passes per region.
	Passes int `yaml:"passes"`

	// Command is the argv the gate spawns, fire-and-forget, when
	// destruction is authorized. Typically a systemd-run invocation
	// of palisade-wipe. Empty means the deployment relies on an
	// external path watcher on the trigger marker.
	Command []string `yaml:"command"`

	// Poweroff controls whether the executor powers the machine off
	// after the sequence. Disabled only in test rigs.
	Poweroff bool `yaml:"poweroff"`
}

// Default returns the deployment default configuration. The config
// file is still required; these defaults ensure every field has a
// sensible value before the file is merged over them.
func Default() *Config {
	return &Config{
		Watchdog: WatchdogConfig{
			Timeout:      Duration(15 * time.Second),
			TickInterval: Duration(1 * time.Second),
		},
		Challenge: ChallengeConfig{
			Deadline:         Duration(120 * time.Second),
			MaxAttempts:      3,
			PasswordHashPath: "/etc/palisade/challenge.phc",
		},
		Sensors: SensorsConfig{
			HeartbeatInterval: Duration(5 * time.Second),
			Hall: SensorConfig{
				Kind:        "gpio",
				Path:        "/sys/class/gpio/gpio17/value",
				TamperValue: "1",
			},
			Light: SensorConfig{
				Kind:      "threshold",
				Path:      "/sys/bus/iio/devices/iio:device0/in_illuminance_raw",
				Threshold: 40,
			},
		},
		Paths: PathsConfig{
			EventPipe:     "/run/palisade/events",
			TriggerMarker: "/var/lib/palisade/wipe-authorized",
			ControlSocket: "/run/palisade/gate.sock",
			StateFile:     "/var/lib/palisade/gate-state.json",
			AuditDB:       "/var/lib/palisade/audit.db",
		},
		Wipe: WipeConfig{
			Device:      "/dev/disk/by-partlabel/palisade-data",
			Mapping:     "palisade-data",
			MountPoint:  "/data",
			HeaderBytes: 16 * 1024 * 1024,
			ExtraBytes:  16 * 1024 * 1024,
			Passes:      2,
			Poweroff:    true,
		},
	}
}

// DefaultPath is the conventional config file location.
const DefaultPath = "/etc/palisade/config.yaml"

// Load loads configuration from the path in the PALISADE_CONFIG
// environment variable. There is no fallback: if the variable is not
// set, Load fails.
func Load() (*Config, error) {
	path := os.Getenv("PALISADE_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("PALISADE_CONFIG environment variable not set; " +
			"set it to the path of your config.yaml file, or use --config")
	}
	return LoadFile(path)
}

// Resolve loads configuration from, in order of preference: the
// explicit path (a --config flag), the PALISADE_CONFIG environment
// variable, then DefaultPath. Every binary resolves its configuration
// through here so the precedence is uniform.
func Resolve(explicit string) (*Config, error) {
	path := explicit
	if path == "" {
		path = os.Getenv("PALISADE_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merging it
// over Default(). The file is the single source of truth; environment
// variables never override values. The only expansion performed is
// ${VAR} patterns in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Challenge.PasswordHashPath = expandVars(c.Challenge.PasswordHashPath, vars)
	c.Sensors.Hall.Path = expandVars(c.Sensors.Hall.Path, vars)
	c.Sensors.Light.Path = expandVars(c.Sensors.Light.Path, vars)
	c.Paths.EventPipe = expandVars(c.Paths.EventPipe, vars)
	c.Paths.TriggerMarker = expandVars(c.Paths.TriggerMarker, vars)
	c.Paths.ControlSocket = expandVars(c.Paths.ControlSocket, vars)
	c.Paths.StateFile = expandVars(c.Paths.StateFile, vars)
	c.Paths.AuditDB = expandVars(c.Paths.AuditDB, vars)
	c.Wipe.Device = expandVars(c.Wipe.Device, vars)
	c.Wipe.MountPoint = expandVars(c.Wipe.MountPoint, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together so an operator fixes the file in one pass.
func (c *Config) Validate() error {
	var errs []error

	if c.Watchdog.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("watchdog.timeout must be positive"))
	}
	if c.Watchdog.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("watchdog.tick_interval must be positive"))
	}
	if c.Sensors.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("sensors.heartbeat_interval must be positive"))
	}
	if c.Watchdog.Timeout > 0 && c.Sensors.HeartbeatInterval > 0 &&
		c.Watchdog.Timeout.Std() <= c.Sensors.HeartbeatInterval.Std() {
		errs = append(errs, fmt.Errorf(
			"watchdog.timeout (%s) must exceed sensors.heartbeat_interval (%s): "+
				"a healthy sensor would trip the watchdog",
			c.Watchdog.Timeout.Std(), c.Sensors.HeartbeatInterval.Std()))
	}

	if c.Challenge.Deadline <= 0 {
		errs = append(errs, fmt.Errorf("challenge.deadline must be positive"))
	}
	if c.Challenge.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("challenge.max_attempts must be at least 1"))
	}
	if c.Challenge.PasswordHashPath == "" {
		errs = append(errs, fmt.Errorf("challenge.password_hash_path is required"))
	}

	for _, sensor := range []struct {
		name string
		cfg  SensorConfig
	}{
		{name: "sensors.hall", cfg: c.Sensors.Hall},
		{name: "sensors.light", cfg: c.Sensors.Light},
	} {
		switch sensor.cfg.Kind {
		case "gpio":
			if sensor.cfg.TamperValue == "" {
				errs = append(errs, fmt.Errorf("%s.tamper_value is required for kind gpio", sensor.name))
			}
		case "threshold":
			if sensor.cfg.Threshold <= 0 {
				errs = append(errs, fmt.Errorf("%s.threshold must be positive for kind threshold", sensor.name))
			}
		default:
			errs = append(errs, fmt.Errorf("%s.kind must be gpio or threshold, got %q", sensor.name, sensor.cfg.Kind))
		}
		if sensor.cfg.Path == "" {
			errs = append(errs, fmt.Errorf("%s.path is required", sensor.name))
		}
	}

	for _, path := range []struct {
		name  string
		value string
	}{
		{name: "paths.event_pipe", value: c.Paths.EventPipe},
		{name: "paths.trigger_marker", value: c.Paths.TriggerMarker},
		{name: "paths.control_socket", value: c.Paths.ControlSocket},
		{name: "paths.state_file", value: c.Paths.StateFile},
		{name: "paths.audit_db", value: c.Paths.AuditDB},
	} {
		if path.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", path.name))
		}
	}

	if c.Wipe.Device == "" {
		errs = append(errs, fmt.Errorf("wipe.device is required"))
	}
	if c.Wipe.Mapping == "" {
		errs = append(errs, fmt.Errorf("wipe.mapping is required"))
	}
	if c.Wipe.HeaderBytes <= 0 {
		errs = append(errs, fmt.Errorf("wipe.header_bytes must be positive"))
	}
	if c.Wipe.ExtraBytes < 0 {
		errs = append(errs, fmt.Errorf("wipe.extra_bytes must not be negative"))
	}
	if c.Wipe.Passes < 1 {
		errs = append(errs, fmt.Errorf("wipe.passes must be at least 1"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsureRuntimeDirs creates the parent directories of the runtime
// rendezvous paths. The gate calls this at startup; the directories
// under /run are tmpfs and vanish on reboot.
func (c *Config) EnsureRuntimeDirs() error {
	for _, path := range []string{
		c.Paths.EventPipe,
		c.Paths.ControlSocket,
		c.Paths.TriggerMarker,
		c.Paths.StateFile,
		c.Paths.AuditDB,
	} {
		if path == "" {
			continue
		}
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
