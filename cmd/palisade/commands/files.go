// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/palisade-systems/palisade/lib/recovery"
	"github.com/palisade-systems/palisade/lib/secret"
)

// writeFileAtomic writes a command's output file via temp-and-rename
// so an interrupted command never leaves a truncated artifact behind.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating %s: %w", temporaryPath, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing %s: %w", temporaryPath, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing %s: %w", temporaryPath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing %s: %w", temporaryPath, err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s into place: %w", temporaryPath, err)
	}
	return nil
}

// decodePayloadKey converts hex text into a raw payload key in locked
// memory. The caller closes the returned buffer.
func decodePayloadKey(hexText *secret.Buffer) (*secret.Buffer, error) {
	trimmed := bytes.TrimSpace(hexText.Bytes())
	if hex.DecodedLen(len(trimmed)) != recovery.KeySize {
		return nil, fmt.Errorf("payload key must be %d hex characters, got %d", recovery.KeySize*2, len(trimmed))
	}

	key, err := secret.New(recovery.KeySize)
	if err != nil {
		return nil, err
	}
	if _, err := hex.Decode(key.Bytes(), trimmed); err != nil {
		key.Close()
		return nil, fmt.Errorf("parsing payload key hex: %w", err)
	}
	return key, nil
}

// writePayloadKeyHex writes the key as a hex line, mode 0600. The
// transient hex copy is zeroed; the file is the operator's chosen
// exposure.
func writePayloadKeyHex(path string, key *secret.Buffer) error {
	encoded := make([]byte, hex.EncodedLen(len(key.Bytes()))+1)
	hex.Encode(encoded, key.Bytes())
	encoded[len(encoded)-1] = '\n'
	defer secret.Zero(encoded)

	return writeFileAtomic(path, encoded, 0600)
}
