// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
)

// NewFromReader drains r into a protected buffer, reading at most
// limit bytes. It is the bridge from decryption streams (an age
// reader, for example) into locked memory: the plaintext never lands
// in a growable heap slice. Returns an error if r yields no bytes or
// more than limit.
func NewFromReader(r io.Reader, limit int) (*Buffer, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("secret: read limit must be positive, got %d", limit)
	}

	// Read into a protected staging buffer one byte past the limit
	// so oversize input is detected rather than silently truncated.
	staging, err := New(limit + 1)
	if err != nil {
		return nil, err
	}
	defer staging.Close()

	total := 0
	data := staging.Bytes()
	for total < len(data) {
		n, err := r.Read(data[total:])
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("secret: reading: %w", err)
		}
	}

	if total == 0 {
		return nil, fmt.Errorf("secret: source is empty")
	}
	if total > limit {
		return nil, fmt.Errorf("secret: source exceeds %d byte limit", limit)
	}

	return NewFromBytes(data[:total])
}

// ReadFromPath reads a secret from a file path, or from stdin if path
// is "-". The returned buffer is mmap-backed and must be closed by the
// caller. Leading/trailing whitespace is trimmed before storing.
// Returns an error if the source is empty after trimming.
func ReadFromPath(path string) (*Buffer, error) {
	var data []byte

	if path == "-" {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading stdin: %w", err)
			}
			return nil, fmt.Errorf("stdin is empty")
		}
		data = scanner.Bytes()
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		Zero(data)
		return nil, fmt.Errorf("secret is empty")
	}

	// NewFromBytes zeros trimmed; zero the whitespace prefix/suffix
	// bytes of the original backing slice too.
	buffer, err := NewFromBytes(trimmed)
	Zero(data)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}
