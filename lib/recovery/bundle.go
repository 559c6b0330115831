// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package recovery

import (
	"bytes"
	"fmt"
	"time"

	"github.com/palisade-systems/palisade/lib/codec"
	"github.com/palisade-systems/palisade/lib/secret"
)

// Bundle is the on-disk recovery bundle: a sealed payload, the
// payload key wrapped for the recipient, and a signed manifest tying
// them together.
type Bundle struct {
	Wrapped   WrappedKey `cbor:"wrapped"`
	Payload   []byte     `cbor:"payload"`
	Manifest  Manifest   `cbor:"manifest"`
	Signature []byte     `cbor:"signature"`
}

// Pack assembles a recovery bundle: generate a fresh payload key,
// seal the image under it, wrap the key for the recipient, and sign
// the manifest with the identity's ML-DSA-87 key. The identity is the
// bundle author; the recipient is whoever will restore it. In the
// single-operator deployment they are the two halves of one keyset.
func Pack(image []byte, recipient *Recipient, signer *Identity, compression Compression, now time.Time) ([]byte, error) {
	payloadKey, err := randomBuffer(KeySize)
	if err != nil {
		return nil, fmt.Errorf("generating payload key: %w", err)
	}
	defer payloadKey.Close()

	sealed, err := SealPayload(image, payloadKey, compression)
	if err != nil {
		return nil, fmt.Errorf("sealing image: %w", err)
	}

	wrapped, err := Wrap(payloadKey, recipient)
	if err != nil {
		return nil, fmt.Errorf("wrapping payload key: %w", err)
	}

	manifest := NewManifest(image, sealed, now)
	signature, err := SignManifest(manifest, signer)
	if err != nil {
		return nil, fmt.Errorf("signing manifest: %w", err)
	}

	data, err := codec.Marshal(Bundle{
		Wrapped:   *wrapped,
		Payload:   sealed,
		Manifest:  manifest,
		Signature: signature,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding bundle: %w", err)
	}
	return data, nil
}

// Unpack verifies and opens a recovery bundle, returning the
// plaintext image. Verification is strict and ordered: the manifest
// signature first, then the payload digest against the signed
// manifest, then the key unwrap, and finally the image digest and
// size of the decrypted plaintext. Any mismatch aborts the restore.
func Unpack(data []byte, identity *Identity, verifier *Recipient) ([]byte, error) {
	var bundle Bundle
	if err := codec.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("decoding bundle: %w", err)
	}
	if bundle.Manifest.Version != manifestVersion {
		return nil, fmt.Errorf("bundle manifest version %d is not supported", bundle.Manifest.Version)
	}

	ok, err := VerifyManifest(bundle.Manifest, bundle.Signature, verifier)
	if err != nil {
		return nil, fmt.Errorf("verifying manifest: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("manifest signature verification failed")
	}

	if !bytes.Equal(DigestBundle(bundle.Payload), bundle.Manifest.BundleDigest) {
		return nil, fmt.Errorf("sealed payload does not match signed manifest")
	}

	payloadKey, err := Unwrap(&bundle.Wrapped, identity)
	if err != nil {
		return nil, err
	}
	defer payloadKey.Close()

	image, err := OpenPayload(bundle.Payload, payloadKey)
	if err != nil {
		return nil, err
	}

	if int64(len(image)) != bundle.Manifest.ImageSize {
		return nil, fmt.Errorf("restored image is %d bytes, manifest says %d", len(image), bundle.Manifest.ImageSize)
	}
	if !bytes.Equal(DigestImage(image), bundle.Manifest.ImageDigest) {
		return nil, fmt.Errorf("restored image does not match signed manifest")
	}
	return image, nil
}

// PayloadKey generates a fresh random payload key. Exposed for
// callers that seal and wrap separately instead of using Pack.
func PayloadKey() (*secret.Buffer, error) {
	return randomBuffer(KeySize)
}
