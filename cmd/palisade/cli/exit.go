// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a non-zero exit code without an extra error line.
// A command returning ExitError has already written its own output;
// main exits with the code and prints nothing. Used where non-zero is
// an answer, not a failure: "palisade verify" on a bad signature,
// "palisade respond" on a wrong password.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks for this interface on
// returned errors to distinguish handled non-zero exits from
// unexpected errors.
func (e *ExitError) ExitCode() int {
	return e.Code
}
