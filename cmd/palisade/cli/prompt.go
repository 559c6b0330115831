// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/palisade-systems/palisade/lib/secret"
)

// ReadSecret reads a secret into a locked buffer. A path of "-" with
// a terminal on stdin prompts with echo disabled; "-" with piped
// stdin reads one line without prompting; any other path reads the
// file. The confirm flag prompts twice and requires both entries to
// match; set it when establishing a secret, not when answering with
// one. The caller closes the returned buffer.
func ReadSecret(path, prompt string, confirm bool) (*secret.Buffer, error) {
	stdinFd := int(os.Stdin.Fd())
	if path != "-" || !term.IsTerminal(stdinFd) {
		return secret.ReadFromPath(path)
	}

	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	first, err := term.ReadPassword(stdinFd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading secret: %w", err)
	}
	if len(first) == 0 {
		return nil, fmt.Errorf("secret is empty")
	}
	if !confirm {
		return secret.NewFromBytes(first)
	}

	fmt.Fprintf(os.Stderr, "Confirm %s: ", prompt)
	second, err := term.ReadPassword(stdinFd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		secret.Zero(first)
		return nil, fmt.Errorf("reading confirmation: %w", err)
	}

	equal := bytes.Equal(first, second)
	secret.Zero(second)
	if !equal {
		secret.Zero(first)
		return nil, fmt.Errorf("entries do not match")
	}

	// NewFromBytes zeros first after copying it into locked memory.
	return secret.NewFromBytes(first)
}
