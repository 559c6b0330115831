// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Package recovery implements the cryptography for recovery bundles:
// an off-site, pre-staged copy of the protected data that survives
// the destruction the wipe executor carries out.
//
// A bundle is created before deployment and restored after a unit is
// lost. Between those two moments it may sit in hostile storage for
// years, which is why the key wrap is hybrid: the payload key is
// protected by X25519 and ML-KEM-1024 together, with HKDF-SHA256
// combining both shared secrets. An adversary recording bundles today
// and breaking elliptic curves later still faces the lattice half,
// and vice versa. The payload itself is sealed with XChaCha20-Poly1305
// under a random 32-byte key, optionally compressed first.
//
// Bundle manifests are signed with ML-DSA-87 over the deterministic
// CBOR encoding of the manifest. Restore refuses anything it cannot
// verify: a bad signature, a payload that does not match the signed
// digest, or an image that decrypts to the wrong hash all abort the
// restore. Nothing here is best-effort; ambiguity during recovery
// means refusal.
//
// Private key material never exists on disk unsealed. The keystore
// holds the three seeds (X25519 scalar, ML-KEM seed, ML-DSA seed)
// in a CBOR record encrypted with an age scrypt passphrase, and the
// in-memory [Identity] keeps them in mmap-backed secret buffers.
// Working keys are derived from the seeds on each use and the
// intermediate heap copies are zeroed where the APIs allow it.
package recovery
