// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package recovery

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
	"github.com/zeebo/blake3"

	"github.com/palisade-systems/palisade/lib/codec"
	"github.com/palisade-systems/palisade/lib/secret"
)

// KeySize is the size in bytes of all symmetric keys in the bundle
// system: the payload key, the wrap key derived from the hybrid
// shared secrets, and every BLAKE3 domain key.
const KeySize = 32

// classicalKeySize is the X25519 key size, private and public alike.
const classicalKeySize = 32

var (
	kemScheme  = mlkem1024.Scheme()
	signScheme = mldsa87.Scheme()
)

// Identity is the private half of a recovery keyset. It holds only
// the three generation seeds, each in an mmap-backed secret buffer;
// working keys are derived from the seeds on each use. The caller
// must call Close when the identity is no longer needed.
type Identity struct {
	classicalSeed *secret.Buffer // X25519 private scalar, 32 bytes
	kemSeed       *secret.Buffer // ML-KEM-1024 seed, 64 bytes
	signSeed      *secret.Buffer // ML-DSA-87 seed, 32 bytes
}

// Recipient is the public half of a recovery keyset. Safe to copy,
// publish, and store unencrypted.
type Recipient struct {
	// Classical is the X25519 public key (32 bytes).
	Classical []byte `cbor:"classical"`

	// KEM is the ML-KEM-1024 encapsulation key (1568 bytes).
	KEM []byte `cbor:"kem"`

	// Sign is the ML-DSA-87 verification key (2592 bytes).
	Sign []byte `cbor:"sign"`
}

// keystoreRecord is the plaintext layout of the sealed keystore file.
type keystoreRecord struct {
	Version       uint8  `cbor:"version"`
	ClassicalSeed []byte `cbor:"classical_seed"`
	KEMSeed       []byte `cbor:"kem_seed"`
	SignSeed      []byte `cbor:"sign_seed"`
}

const keystoreVersion uint8 = 1

// GenerateIdentity creates a fresh keyset from the system random
// source. The caller must call Close on the result.
func GenerateIdentity() (*Identity, error) {
	classicalSeed, err := randomBuffer(classicalKeySize)
	if err != nil {
		return nil, fmt.Errorf("generating classical seed: %w", err)
	}
	kemSeed, err := randomBuffer(kemScheme.SeedSize())
	if err != nil {
		classicalSeed.Close()
		return nil, fmt.Errorf("generating KEM seed: %w", err)
	}
	signSeed, err := randomBuffer(signScheme.SeedSize())
	if err != nil {
		classicalSeed.Close()
		kemSeed.Close()
		return nil, fmt.Errorf("generating signing seed: %w", err)
	}
	return &Identity{classicalSeed: classicalSeed, kemSeed: kemSeed, signSeed: signSeed}, nil
}

// Close zeroes and releases the seed buffers. Idempotent.
func (id *Identity) Close() error {
	var firstErr error
	for _, buffer := range []*secret.Buffer{id.classicalSeed, id.kemSeed, id.signSeed} {
		if buffer == nil {
			continue
		}
		if err := buffer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Recipient derives the public half of the keyset. Derivation is
// deterministic: the same identity always yields the same recipient.
func (id *Identity) Recipient() (*Recipient, error) {
	classical, err := id.classicalKey()
	if err != nil {
		return nil, err
	}

	kemPublic, _ := kemScheme.DeriveKeyPair(id.kemSeed.Bytes())
	kemBytes, err := kemPublic.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding KEM public key: %w", err)
	}

	signPublic, _ := signScheme.DeriveKey(id.signSeed.Bytes())
	signBytes, err := signPublic.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding signing public key: %w", err)
	}

	return &Recipient{
		Classical: classical.PublicKey().Bytes(),
		KEM:       kemBytes,
		Sign:      signBytes,
	}, nil
}

// classicalKey derives the X25519 private key from the stored scalar.
func (id *Identity) classicalKey() (*ecdh.PrivateKey, error) {
	key, err := ecdh.X25519().NewPrivateKey(id.classicalSeed.Bytes())
	if err != nil {
		return nil, fmt.Errorf("deriving classical key: %w", err)
	}
	return key, nil
}

// kemKey derives the ML-KEM-1024 decapsulation key from the seed.
func (id *Identity) kemKey() kem.PrivateKey {
	_, private := kemScheme.DeriveKeyPair(id.kemSeed.Bytes())
	return private
}

// signKey derives the ML-DSA-87 signing key from the seed.
func (id *Identity) signKey() sign.PrivateKey {
	_, private := signScheme.DeriveKey(id.signSeed.Bytes())
	return private
}

// validate checks the component sizes of a recipient.
func (r *Recipient) validate() error {
	if len(r.Classical) != classicalKeySize {
		return fmt.Errorf("classical public key is %d bytes, want %d", len(r.Classical), classicalKeySize)
	}
	if len(r.KEM) != kemScheme.PublicKeySize() {
		return fmt.Errorf("KEM public key is %d bytes, want %d", len(r.KEM), kemScheme.PublicKeySize())
	}
	if len(r.Sign) != signScheme.PublicKeySize() {
		return fmt.Errorf("signing public key is %d bytes, want %d", len(r.Sign), signScheme.PublicKeySize())
	}
	return nil
}

// Fingerprint returns a short hex digest identifying a recipient,
// for display and cross-checking. Not a security boundary.
func (r *Recipient) Fingerprint() string {
	hasher, err := blake3.NewKeyed(recipientDomainKey[:])
	if err != nil {
		panic("recovery: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(r.Classical)
	hasher.Write(r.KEM)
	hasher.Write(r.Sign)
	return hex.EncodeToString(hasher.Sum(nil)[:8])
}

// SaveRecipient writes the public keyset to path. Recipients are
// public; the file is world-readable.
func SaveRecipient(path string, recipient *Recipient) error {
	if err := recipient.validate(); err != nil {
		return fmt.Errorf("saving recipient: %w", err)
	}
	data, err := codec.Marshal(recipient)
	if err != nil {
		return fmt.Errorf("encoding recipient: %w", err)
	}
	if err := writeFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("writing recipient file: %w", err)
	}
	return nil
}

// LoadRecipient reads a public keyset written by SaveRecipient.
func LoadRecipient(path string) (*Recipient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recipient file: %w", err)
	}
	var recipient Recipient
	if err := codec.Unmarshal(data, &recipient); err != nil {
		return nil, fmt.Errorf("decoding recipient file %s: %w", path, err)
	}
	if err := recipient.validate(); err != nil {
		return nil, fmt.Errorf("recipient file %s: %w", path, err)
	}
	return &recipient, nil
}

// SaveIdentity seals the identity's seeds under the passphrase and
// writes the keystore to path with mode 0600. The passphrase is
// borrowed and NOT closed.
func SaveIdentity(path string, identity *Identity, passphrase *secret.Buffer) error {
	record := keystoreRecord{
		Version:       keystoreVersion,
		ClassicalSeed: identity.classicalSeed.Bytes(),
		KEMSeed:       identity.kemSeed.Bytes(),
		SignSeed:      identity.signSeed.Bytes(),
	}
	plaintext, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding keystore: %w", err)
	}
	defer secret.Zero(plaintext)

	// The passphrase crosses into age as a string at the API
	// boundary. The heap copy is brief and call-scoped.
	recipient, err := age.NewScryptRecipient(passphrase.String())
	if err != nil {
		return fmt.Errorf("building scrypt recipient: %w", err)
	}

	var sealed bytes.Buffer
	writer, err := age.Encrypt(&sealed, recipient)
	if err != nil {
		return fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return fmt.Errorf("sealing keystore: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing keystore seal: %w", err)
	}

	if err := writeFileAtomic(path, sealed.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing keystore: %w", err)
	}
	return nil
}

// LoadIdentity opens a keystore written by SaveIdentity. The
// passphrase is borrowed and NOT closed. The caller must call Close
// on the returned identity.
func LoadIdentity(path string, passphrase *secret.Buffer) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keystore: %w", err)
	}

	ageIdentity, err := age.NewScryptIdentity(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("building scrypt identity: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(data), ageIdentity)
	if err != nil {
		return nil, fmt.Errorf("unsealing keystore %s: %w", path, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("unsealing keystore %s: %w", path, err)
	}
	defer secret.Zero(plaintext)

	var record keystoreRecord
	if err := codec.Unmarshal(plaintext, &record); err != nil {
		return nil, fmt.Errorf("decoding keystore %s: %w", path, err)
	}
	if record.Version != keystoreVersion {
		return nil, fmt.Errorf("keystore %s has version %d, want %d", path, record.Version, keystoreVersion)
	}
	if len(record.ClassicalSeed) != classicalKeySize {
		return nil, fmt.Errorf("keystore %s: classical seed is %d bytes, want %d", path, len(record.ClassicalSeed), classicalKeySize)
	}
	if len(record.KEMSeed) != kemScheme.SeedSize() {
		return nil, fmt.Errorf("keystore %s: KEM seed is %d bytes, want %d", path, len(record.KEMSeed), kemScheme.SeedSize())
	}
	if len(record.SignSeed) != signScheme.SeedSize() {
		return nil, fmt.Errorf("keystore %s: signing seed is %d bytes, want %d", path, len(record.SignSeed), signScheme.SeedSize())
	}

	// NewFromBytes zeroes each source slice; the deferred Zero above
	// clears the rest of the decoded plaintext.
	classicalSeed, err := secret.NewFromBytes(record.ClassicalSeed)
	if err != nil {
		return nil, fmt.Errorf("protecting classical seed: %w", err)
	}
	kemSeed, err := secret.NewFromBytes(record.KEMSeed)
	if err != nil {
		classicalSeed.Close()
		return nil, fmt.Errorf("protecting KEM seed: %w", err)
	}
	signSeed, err := secret.NewFromBytes(record.SignSeed)
	if err != nil {
		classicalSeed.Close()
		kemSeed.Close()
		return nil, fmt.Errorf("protecting signing seed: %w", err)
	}

	return &Identity{classicalSeed: classicalSeed, kemSeed: kemSeed, signSeed: signSeed}, nil
}

// randomBuffer returns a secret buffer of the given size filled from
// the system random source.
func randomBuffer(size int) (*secret.Buffer, error) {
	buffer, err := secret.New(size)
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(rand.Reader, buffer.Bytes()); err != nil {
		buffer.Close()
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return buffer, nil
}

// writeFileAtomic writes data to path via a temporary file and
// rename, so a crash never leaves a partial file at path.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	temporary := path + ".tmp"
	file, err := os.OpenFile(temporary, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporary)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporary)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(temporary)
		return err
	}
	if err := os.Rename(temporary, path); err != nil {
		os.Remove(temporary)
		return err
	}
	return nil
}
