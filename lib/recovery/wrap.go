// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package recovery

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/palisade-systems/palisade/lib/secret"
)

// blobVersion is the version byte prepended to every AEAD blob in
// this package. Included in the AAD, so tampering with it causes
// authentication failure.
const blobVersion byte = 0x01

// blobOverhead is the byte overhead per AEAD blob:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const blobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfoWrap is the "info" parameter for the wrap key derivation.
// Changing it invalidates every wrapped key in existence.
var hkdfInfoWrap = []byte("palisade.recovery.wrap.v1")

// BLAKE3 domain keys. The byte values are the ASCII encoding of the
// domain name, zero-padded to 32 bytes: readable in hex dumps without
// sacrificing any cryptographic property.
var (
	wrapDomainKey = [32]byte{
		'p', 'a', 'l', 'i', 's', 'a', 'd', 'e', '.', 'r', 'e', 'c', 'o', 'v', 'e', 'r',
		'y', '.', 'w', 'r', 'a', 'p', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	imageDomainKey = [32]byte{
		'p', 'a', 'l', 'i', 's', 'a', 'd', 'e', '.', 'r', 'e', 'c', 'o', 'v', 'e', 'r',
		'y', '.', 'i', 'm', 'a', 'g', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	bundleDomainKey = [32]byte{
		'p', 'a', 'l', 'i', 's', 'a', 'd', 'e', '.', 'r', 'e', 'c', 'o', 'v', 'e', 'r',
		'y', '.', 'b', 'u', 'n', 'd', 'l', 'e', 0, 0, 0, 0, 0, 0, 0, 0,
	}

	recipientDomainKey = [32]byte{
		'p', 'a', 'l', 'i', 's', 'a', 'd', 'e', '.', 'r', 'e', 'c', 'o', 'v', 'e', 'r',
		'y', '.', 'r', 'e', 'c', 'i', 'p', 'i', 'e', 'n', 't', 0, 0, 0, 0, 0,
	}
)

// WrappedKey is a payload key protected for one recipient by the
// hybrid construction: an ephemeral X25519 exchange and an
// ML-KEM-1024 encapsulation, their shared secrets combined through
// HKDF-SHA256 into the key that seals the payload key.
type WrappedKey struct {
	// ClassicalEphemeral is the ephemeral X25519 public key
	// (32 bytes).
	ClassicalEphemeral []byte `cbor:"classical_eph"`

	// KEMCiphertext is the ML-KEM-1024 ciphertext (1568 bytes).
	KEMCiphertext []byte `cbor:"kem_ct"`

	// Sealed is the AEAD blob holding the payload key:
	// [version][nonce][ciphertext+tag], authenticated against the
	// wrap transcript.
	Sealed []byte `cbor:"sealed"`
}

// Wrap protects a 32-byte payload key for the recipient. Each call
// uses a fresh ephemeral key and encapsulation, so wrapping the same
// key twice produces unrelated ciphertexts.
//
// The payloadKey is borrowed and NOT closed.
func Wrap(payloadKey *secret.Buffer, recipient *Recipient) (*WrappedKey, error) {
	if payloadKey.Len() != KeySize {
		return nil, fmt.Errorf("payload key is %d bytes, want %d", payloadKey.Len(), KeySize)
	}
	if err := recipient.validate(); err != nil {
		return nil, fmt.Errorf("wrapping payload key: %w", err)
	}

	curve := ecdh.X25519()
	remote, err := curve.NewPublicKey(recipient.Classical)
	if err != nil {
		return nil, fmt.Errorf("parsing classical public key: %w", err)
	}
	ephemeral, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ephemeral key: %w", err)
	}
	classicalShared, err := ephemeral.ECDH(remote)
	if err != nil {
		return nil, fmt.Errorf("computing classical shared secret: %w", err)
	}
	defer secret.Zero(classicalShared)

	kemPublic, err := kemScheme.UnmarshalBinaryPublicKey(recipient.KEM)
	if err != nil {
		return nil, fmt.Errorf("parsing KEM public key: %w", err)
	}
	kemCiphertext, kemShared, err := kemScheme.Encapsulate(kemPublic)
	if err != nil {
		return nil, fmt.Errorf("encapsulating: %w", err)
	}
	defer secret.Zero(kemShared)

	wrapKey, err := deriveWrapKey(classicalShared, kemShared)
	if err != nil {
		return nil, err
	}
	defer wrapKey.Close()

	ephemeralPublic := ephemeral.PublicKey().Bytes()
	sealed, err := sealBlob(payloadKey.Bytes(), wrapKey, wrapTranscript(ephemeralPublic, kemCiphertext))
	if err != nil {
		return nil, fmt.Errorf("sealing payload key: %w", err)
	}

	return &WrappedKey{
		ClassicalEphemeral: ephemeralPublic,
		KEMCiphertext:      kemCiphertext,
		Sealed:             sealed,
	}, nil
}

// Unwrap recovers the payload key from a wrapped key. It fails closed
// on any mismatch: a wrong classical key, a wrong KEM key, or a
// tampered ciphertext all surface as the same authentication failure,
// because every input feeds the single AEAD open. The caller must
// close the returned buffer.
func Unwrap(wrapped *WrappedKey, identity *Identity) (*secret.Buffer, error) {
	if len(wrapped.ClassicalEphemeral) != classicalKeySize {
		return nil, fmt.Errorf("ephemeral public key is %d bytes, want %d", len(wrapped.ClassicalEphemeral), classicalKeySize)
	}
	if len(wrapped.KEMCiphertext) != kemScheme.CiphertextSize() {
		return nil, fmt.Errorf("KEM ciphertext is %d bytes, want %d", len(wrapped.KEMCiphertext), kemScheme.CiphertextSize())
	}

	private, err := identity.classicalKey()
	if err != nil {
		return nil, err
	}
	ephemeral, err := ecdh.X25519().NewPublicKey(wrapped.ClassicalEphemeral)
	if err != nil {
		return nil, fmt.Errorf("parsing ephemeral public key: %w", err)
	}
	classicalShared, err := private.ECDH(ephemeral)
	if err != nil {
		return nil, fmt.Errorf("computing classical shared secret: %w", err)
	}
	defer secret.Zero(classicalShared)

	// ML-KEM uses implicit rejection: a wrong key or ciphertext
	// yields a pseudorandom shared secret rather than an error, and
	// the mismatch is caught below by the AEAD.
	kemShared, err := kemScheme.Decapsulate(identity.kemKey(), wrapped.KEMCiphertext)
	if err != nil {
		return nil, fmt.Errorf("decapsulating: %w", err)
	}
	defer secret.Zero(kemShared)

	wrapKey, err := deriveWrapKey(classicalShared, kemShared)
	if err != nil {
		return nil, err
	}
	defer wrapKey.Close()

	payloadKey, err := openBlob(wrapped.Sealed, wrapKey, wrapTranscript(wrapped.ClassicalEphemeral, wrapped.KEMCiphertext))
	if err != nil {
		return nil, fmt.Errorf("unwrapping payload key: %w", err)
	}
	return secret.NewFromBytes(payloadKey)
}

// DigestImage computes the image-domain BLAKE3 digest of a plaintext
// recovery image.
func DigestImage(data []byte) []byte {
	return keyedDigest(imageDomainKey, data)
}

// DigestBundle computes the bundle-domain BLAKE3 digest of a sealed
// payload blob.
func DigestBundle(data []byte) []byte {
	return keyedDigest(bundleDomainKey, data)
}

// deriveWrapKey combines the classical and post-quantum shared
// secrets through HKDF-SHA256. The salt is nil: both inputs are
// already uniformly random, so the extract phase with a zero key is
// appropriate per RFC 5869.
func deriveWrapKey(classicalShared, kemShared []byte) (*secret.Buffer, error) {
	inputKeyMaterial := make([]byte, 0, len(classicalShared)+len(kemShared))
	inputKeyMaterial = append(inputKeyMaterial, classicalShared...)
	inputKeyMaterial = append(inputKeyMaterial, kemShared...)
	defer secret.Zero(inputKeyMaterial)

	reader := hkdf.New(sha256.New, inputKeyMaterial, nil, hkdfInfoWrap)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	// NewFromBytes copies into mmap and zeroes the heap slice.
	return secret.NewFromBytes(derived)
}

// wrapTranscript hashes the public wrap transcript (ephemeral key and
// KEM ciphertext) for use as AAD, binding the sealed payload key to
// exactly this exchange.
func wrapTranscript(ephemeralPublic, kemCiphertext []byte) [32]byte {
	hasher, err := blake3.NewKeyed(wrapDomainKey[:])
	if err != nil {
		panic("recovery: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(ephemeralPublic)
	hasher.Write(kemCiphertext)
	var transcript [32]byte
	copy(transcript[:], hasher.Sum(nil))
	return transcript
}

// sealBlob encrypts plaintext with XChaCha20-Poly1305 into the
// standard blob format:
//
//	[Version: 1 byte] [Nonce: 24 bytes (random)] [Ciphertext+Tag]
//
// The version byte and the transcript hash are the AAD.
func sealBlob(plaintext []byte, key *secret.Buffer, transcript [32]byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	output := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	output[0] = blobVersion
	copy(output[1:], nonce[:])

	return aead.Seal(output, nonce[:], plaintext, blobAAD(blobVersion, transcript)), nil
}

// openBlob decrypts a blob produced by sealBlob.
func openBlob(blob []byte, key *secret.Buffer, transcript [32]byte) ([]byte, error) {
	if len(blob) < blobOverhead {
		return nil, fmt.Errorf("blob is %d bytes, minimum is %d", len(blob), blobOverhead)
	}
	version := blob[0]
	if version != blobVersion {
		return nil, fmt.Errorf("blob version %d is not supported", version)
	}
	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := blob[1+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, blobAAD(version, transcript))
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return plaintext, nil
}

// blobAAD builds the additional authenticated data: version byte
// followed by the transcript hash.
func blobAAD(version byte, transcript [32]byte) []byte {
	aad := make([]byte, 1+len(transcript))
	aad[0] = version
	copy(aad[1:], transcript[:])
	return aad
}

// keyedDigest computes a BLAKE3 keyed hash in the given domain.
func keyedDigest(key [32]byte, data []byte) []byte {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("recovery: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return hasher.Sum(nil)
}
