// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Package challenge implements the password challenge: argon2id
// hashing in PHC string format, constant-time verification, and the
// session bookkeeping for an active challenge window.
//
// The stored hash carries its own parameters, so verification honors
// whatever provisioning chose, within hard sanity bounds. The hash
// file is an input the gate must survive: an attacker who can
// rewrite it should get a refused verification, not a gate pinned at
// 100% CPU on a hostile cost parameter.
package challenge

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/palisade-systems/palisade/lib/secret"
)

// Params are the argon2id cost parameters.
type Params struct {
	// Memory is the memory cost in KiB.
	Memory uint32

	// Time is the iteration count.
	Time uint32

	// Parallelism is the lane count.
	Parallelism uint8
}

// DefaultParams target a small ARM board: hashing takes a noticeable
// fraction of a second without starving the event loop.
var DefaultParams = Params{Memory: 64 * 1024, Time: 3, Parallelism: 1}

// Verification cost bounds. A stored hash whose parameters exceed
// these is rejected rather than computed.
const (
	maxMemoryKiB   = 1 << 20 // 1 GiB
	maxTime        = 16
	maxParallelism = 8
)

const (
	saltLength   = 16
	digestLength = 32
)

// validate rejects zero and over-bound cost parameters.
func (p Params) validate() error {
	if p.Memory == 0 || p.Time == 0 || p.Parallelism == 0 {
		return fmt.Errorf("argon2id parameters m=%d,t=%d,p=%d: none may be zero", p.Memory, p.Time, p.Parallelism)
	}
	if p.Memory > maxMemoryKiB {
		return fmt.Errorf("argon2id memory %d KiB exceeds limit %d", p.Memory, maxMemoryKiB)
	}
	if p.Time > maxTime {
		return fmt.Errorf("argon2id time %d exceeds limit %d", p.Time, maxTime)
	}
	if p.Parallelism > maxParallelism {
		return fmt.Errorf("argon2id parallelism %d exceeds limit %d", p.Parallelism, maxParallelism)
	}
	if p.Memory < 8*uint32(p.Parallelism) {
		return fmt.Errorf("argon2id memory %d KiB is below the minimum %d for %d lanes", p.Memory, 8*uint32(p.Parallelism), p.Parallelism)
	}
	return nil
}

// Hash derives an argon2id digest of the password and serializes it
// in PHC string format:
//
//	$argon2id$v=19$m=65536,t=3,p=1$<salt>$<digest>
//
// Salt and digest are unpadded standard base64. The caller owns the
// password buffer and zeroes it when done.
func Hash(password *secret.Buffer, params Params) (string, error) {
	if err := params.validate(); err != nil {
		return "", err
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	digest := argon2.IDKey(password.Bytes(), salt, params.Time, params.Memory, params.Parallelism, digestLength)
	defer secret.Zero(digest)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Time, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest)), nil
}

// Verify recomputes the argon2id digest of the candidate with the
// stored hash's own parameters and compares digests in constant
// time. Timing is independent of the candidate's content. The caller
// owns the candidate buffer and zeroes it after verification
// regardless of outcome.
func Verify(candidate *secret.Buffer, stored string) (bool, error) {
	params, salt, digest, err := parseHash(stored)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(candidate.Bytes(), salt, params.Time, params.Memory, params.Parallelism, uint32(len(digest)))
	defer secret.Zero(computed)

	return subtle.ConstantTimeCompare(computed, digest) == 1, nil
}

// SaveHash writes the password hash file atomically with mode 0600.
// The hash is validated first; installing a string the gate would
// refuse to load is exactly the failure provisioning exists to
// prevent.
func SaveHash(path, stored string) error {
	if _, _, _, err := parseHash(stored); err != nil {
		return fmt.Errorf("refusing to install hash: %w", err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary hash file: %w", err)
	}
	if _, err := file.WriteString(stored + "\n"); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing password hash: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing password hash: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing password hash: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("installing password hash: %w", err)
	}
	return nil
}

// LoadHash reads the stored password hash from disk and validates
// that it parses. Called at gate startup so a corrupt or hostile hash
// file fails loudly then, not in the middle of a live challenge.
func LoadHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading password hash: %w", err)
	}
	stored := strings.TrimSpace(string(data))
	if _, _, _, err := parseHash(stored); err != nil {
		return "", fmt.Errorf("password hash file %s: %w", path, err)
	}
	return stored, nil
}

// parseHash splits a PHC argon2id string into parameters, salt, and
// digest, enforcing the verification cost bounds.
func parseHash(stored string) (Params, []byte, []byte, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 6 || parts[0] != "" {
		return Params{}, nil, nil, fmt.Errorf("malformed password hash: want 6 $-separated fields, got %d", len(parts))
	}
	if parts[1] != "argon2id" {
		return Params{}, nil, nil, fmt.Errorf("unsupported hash algorithm %q", parts[1])
	}

	versionText, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return Params{}, nil, nil, fmt.Errorf("malformed version field %q", parts[2])
	}
	version, err := strconv.Atoi(versionText)
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("malformed version field %q", parts[2])
	}
	if version != argon2.Version {
		return Params{}, nil, nil, fmt.Errorf("argon2 version %d not supported (want %d)", version, argon2.Version)
	}

	var params Params
	for _, field := range strings.Split(parts[3], ",") {
		key, value, found := strings.Cut(field, "=")
		if !found {
			return Params{}, nil, nil, fmt.Errorf("malformed parameter field %q", field)
		}
		number, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return Params{}, nil, nil, fmt.Errorf("malformed parameter %q: %w", field, err)
		}
		switch key {
		case "m":
			params.Memory = uint32(number)
		case "t":
			params.Time = uint32(number)
		case "p":
			if number > 255 {
				return Params{}, nil, nil, fmt.Errorf("parallelism %d out of range", number)
			}
			params.Parallelism = uint8(number)
		default:
			return Params{}, nil, nil, fmt.Errorf("unknown parameter %q", key)
		}
	}
	if err := params.validate(); err != nil {
		return Params{}, nil, nil, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("decoding salt: %w", err)
	}
	if len(salt) < 8 || len(salt) > 64 {
		return Params{}, nil, nil, fmt.Errorf("salt length %d out of range", len(salt))
	}

	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("decoding digest: %w", err)
	}
	if len(digest) < 16 || len(digest) > 64 {
		return Params{}, nil, nil, fmt.Errorf("digest length %d out of range", len(digest))
	}

	return params, salt, digest, nil
}
