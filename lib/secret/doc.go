// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data:
// challenge passwords, recovery private keys, payload keys, and
// operator passphrases.
//
// [Buffer] allocates memory outside the Go heap via
// mmap(MAP_ANONYMOUS), locks it into physical RAM via mlock
// (preventing swap), and marks it excluded from core dumps via
// madvise(MADV_DONTDUMP). On Close, the memory is zeroed, unlocked,
// and unmapped. Because the memory lives outside the Go heap, the
// garbage collector cannot copy or relocate it, so no stray copies of
// key material survive release.
//
// Constructors:
//
//   - [New] allocates a zero-filled buffer of a given size
//   - [NewFromBytes] copies into protected memory and zeros the source
//   - [NewFromReader] drains an io.Reader (such as an age decryption
//     stream) into protected memory, with a size limit
//   - [ReadFromPath] reads a secret from a file, or stdin for "-"
//
// Access via [Buffer.Bytes] (a slice into the mmap region) or
// [Buffer.String] (a heap copy, only for API boundaries that demand a
// string). [Buffer.Equal] compares two buffers in constant time.
// [Buffer.WriteTo] implements io.WriterTo so recovered plaintext can
// reach an output file without heap intermediaries. [Zero] scrubs any
// byte slice in place. After Close, access panics; Close is
// idempotent.
package secret
