// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the palisade operator CLI:
// a tree of [Command] values dispatched by positional arguments, with
// pflag flag parsing, structured help, and typo suggestions.
//
// The framework stays deliberately small. Commands are plain structs;
// flags are declared in a closure so each Execute gets a fresh flag
// set; errors flow back to main as ordinary error values, with
// [ExitError] reserved for commands whose non-zero exit is an answer
// rather than a failure (verify on a bad signature, for example).
package cli
