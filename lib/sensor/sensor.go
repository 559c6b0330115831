// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Package sensor reads the physical tamper sensors and streams their
// observations to the gate. Two sensor kinds are supported: a GPIO
// value file whose contents signal case closure (Hall-effect switch)
// and an IIO attribute whose integer reading crosses a threshold
// (light inside a closed case). Either sensor observing tamper is
// treated as tamper by the gate; the sensors exist to cover each
// other's blind spots, not to vote.
//
// The [Poller] samples every sensor on a fixed interval, emits an
// ipc.TamperEvent on each transition into the tampered state, and
// closes every cycle with an ipc.Heartbeat regardless of sensor
// state. The heartbeat's absence is itself a signal: the gate's
// watchdog treats prolonged silence while armed exactly like tamper.
package sensor

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/palisade-systems/palisade/lib/config"
)

// Sensor is a single physical tamper sensor.
type Sensor interface {
	// Name identifies the sensor in events and logs ("hall",
	// "light").
	Name() string

	// Read samples the sensor and reports whether it observes a
	// tampered physical state.
	Read() (tampered bool, err error)
}

// New builds a sensor from its configuration. The name becomes the
// source on every event the sensor produces.
func New(name string, cfg config.SensorConfig) (Sensor, error) {
	switch cfg.Kind {
	case "gpio":
		return &gpioSensor{name: name, path: cfg.Path, tamperValue: cfg.TamperValue}, nil
	case "threshold":
		return &thresholdSensor{name: name, path: cfg.Path, threshold: cfg.Threshold}, nil
	default:
		return nil, fmt.Errorf("sensor %s: unknown kind %q", name, cfg.Kind)
	}
}

// gpioSensor reads a sysfs GPIO value file. The sensor is tampered
// when the file's trimmed contents equal the configured value.
type gpioSensor struct {
	name        string
	path        string
	tamperValue string
}

func (s *gpioSensor) Name() string { return s.name }

func (s *gpioSensor) Read() (bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", s.path, err)
	}
	return strings.TrimSpace(string(data)) == s.tamperValue, nil
}

// thresholdSensor reads an integer attribute (an IIO illuminance
// channel in the reference hardware). The sensor is tampered when the
// reading is at or above the configured threshold.
type thresholdSensor struct {
	name      string
	path      string
	threshold int
}

func (s *thresholdSensor) Name() string { return s.name }

func (s *thresholdSensor) Read() (bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", s.path, err)
	}
	reading, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, fmt.Errorf("parsing %s reading: %w", s.path, err)
	}
	return reading >= s.threshold, nil
}
