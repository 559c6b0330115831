// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers shared by the
// Palisade daemons and CLI. It centralizes the one legitimate raw
// stderr pattern that exists outside the structured logger: fatal
// error reporting from main() when run() returns, including the
// fail-loud abort the gate performs when it cannot create the wipe
// trigger marker.
package process
