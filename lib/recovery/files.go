// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package recovery

import (
	"fmt"
	"os"

	"github.com/palisade-systems/palisade/lib/codec"
)

// Save/Load helpers for the detached recovery artifacts a recovery
// medium carries alongside the image: the wrapped payload key, the
// manifest, and its signature. All are written atomically; none are
// secret (the wrapped key is exactly the thing that is safe to leave
// on an unencrypted medium).

// SaveWrappedKey writes a wrapped payload key file.
func SaveWrappedKey(path string, wrapped *WrappedKey) error {
	data, err := codec.Marshal(wrapped)
	if err != nil {
		return fmt.Errorf("encoding wrapped key: %w", err)
	}
	return writeFileAtomic(path, data, 0644)
}

// LoadWrappedKey reads a wrapped payload key file. Component sizes
// are checked in Unwrap; here only the structure is.
func LoadWrappedKey(path string) (*WrappedKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wrapped WrappedKey
	if err := codec.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parsing wrapped key %s: %w", path, err)
	}
	if len(wrapped.ClassicalEphemeral) == 0 || len(wrapped.KEMCiphertext) == 0 || len(wrapped.Sealed) == 0 {
		return nil, fmt.Errorf("wrapped key %s is missing components", path)
	}
	return &wrapped, nil
}

// SaveManifest writes a manifest file.
func SaveManifest(path string, manifest Manifest) error {
	data, err := codec.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return writeFileAtomic(path, data, 0644)
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var manifest Manifest
	if err := codec.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if err := manifest.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return manifest, nil
}

// SaveSignature writes a detached manifest signature.
func SaveSignature(path string, signature []byte) error {
	if len(signature) != signScheme.SignatureSize() {
		return fmt.Errorf("signature is %d bytes, want %d", len(signature), signScheme.SignatureSize())
	}
	return writeFileAtomic(path, signature, 0644)
}

// LoadSignature reads a detached manifest signature. The exact size
// check rejects truncated or concatenated files before verification
// sees them.
func LoadSignature(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) != signScheme.SignatureSize() {
		return nil, fmt.Errorf("signature file %s is %d bytes, want %d", path, len(data), signScheme.SignatureSize())
	}
	return data, nil
}
