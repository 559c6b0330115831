// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the Palisade
// processes.
//
// Configuration is loaded from a single file specified by either the
// PALISADE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search, and no live reload: every process
// loads the file once at startup, validates it, and treats it as
// immutable. On an appliance whose failure mode is destroying its own
// storage, a configuration value must mean exactly the same thing to
// every process that reads it.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values.
//
// Key exports:
//
//   - [Config] -- Watchdog, Challenge, Sensors, Paths, Wipe sections
//   - [Default] -- a Config with deployment defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other Palisade packages.
package config
