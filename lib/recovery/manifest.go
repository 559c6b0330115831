// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package recovery

import (
	"fmt"
	"time"

	"github.com/cloudflare/circl/sign"

	"github.com/palisade-systems/palisade/lib/codec"
)

// manifestVersion is the manifest format version.
const manifestVersion uint8 = 1

// manifestContext is the ML-DSA-87 domain separation context for
// manifest signatures. A manifest signature can never be replayed as
// any other kind of signature.
const manifestContext = "palisade.recovery.manifest.v1"

// Manifest describes a recovery bundle's contents. The signature
// covers the deterministic CBOR encoding of this struct, so every
// field is tamper-evident.
type Manifest struct {
	Version uint8 `cbor:"version"`

	// ImageDigest is the image-domain BLAKE3 digest of the plaintext
	// recovery image.
	ImageDigest []byte `cbor:"image_digest"`

	// ImageSize is the plaintext image size in bytes.
	ImageSize int64 `cbor:"image_size"`

	// CreatedAt records when the bundle was assembled, at second
	// precision.
	CreatedAt time.Time `cbor:"created_at"`

	// BundleDigest is the bundle-domain BLAKE3 digest of the sealed
	// payload blob, binding the signed manifest to the exact
	// ciphertext it shipped with.
	BundleDigest []byte `cbor:"bundle_digest"`
}

// NewManifest describes an image and the sealed payload it ships
// with. A nil sealed slice leaves BundleDigest empty, for manifests
// over a bare image with no encrypted payload alongside.
func NewManifest(image, sealed []byte, now time.Time) Manifest {
	manifest := Manifest{
		Version:     manifestVersion,
		ImageDigest: DigestImage(image),
		ImageSize:   int64(len(image)),
		CreatedAt:   now.UTC().Truncate(time.Second),
	}
	if sealed != nil {
		manifest.BundleDigest = DigestBundle(sealed)
	}
	return manifest
}

// Validate checks the manifest's format version.
func (m Manifest) Validate() error {
	if m.Version != manifestVersion {
		return fmt.Errorf("manifest version %d is not supported", m.Version)
	}
	return nil
}

// SignManifest signs the manifest's canonical encoding with the
// identity's ML-DSA-87 key.
func SignManifest(manifest Manifest, identity *Identity) ([]byte, error) {
	message, err := codec.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest for signing: %w", err)
	}
	signature := signScheme.Sign(identity.signKey(), message, &sign.SignatureOpts{Context: manifestContext})
	return signature, nil
}

// VerifyManifest checks a manifest signature against the recipient's
// verification key. A false return means the signature does not cover
// this manifest: a flipped bit anywhere in either is enough.
func VerifyManifest(manifest Manifest, signature []byte, recipient *Recipient) (bool, error) {
	message, err := codec.Marshal(manifest)
	if err != nil {
		return false, fmt.Errorf("encoding manifest for verification: %w", err)
	}
	public, err := signScheme.UnmarshalBinaryPublicKey(recipient.Sign)
	if err != nil {
		return false, fmt.Errorf("parsing signing public key: %w", err)
	}
	return signScheme.Verify(public, message, signature, &sign.SignatureOpts{Context: manifestContext}), nil
}
