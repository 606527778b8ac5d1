// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keys holds the Ed25519 identities used for node names,
// section keys and register signatures.
//
// [PublicKey] and [Signature] are fixed-size arrays so they are
// comparable, usable as map keys, and encode as CBOR byte strings.
// A node's name in the XOR space is derived from its public key with
// [PublicKey.Name].
//
// Keypairs are stored as two files in a directory: the 32-byte seed
// (optionally age-encrypted under a passphrase) and the hex public
// key.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/safenet-project/safenet/lib/xorname"
)

// PublicKey is an Ed25519 public key.
type PublicKey [ed25519.PublicKeySize]byte

// Signature is an Ed25519 signature.
type Signature [ed25519.SignatureSize]byte

// Keypair is an Ed25519 signing identity.
type Keypair struct {
	public  PublicKey
	private ed25519.PrivateKey
}

// Generate creates a keypair from the system random source.
func Generate() (*Keypair, error) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating Ed25519 keypair: %w", err)
	}
	return fromPrivate(private), nil
}

// FromSeed rebuilds a keypair from its 32-byte seed.
func FromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return fromPrivate(ed25519.NewKeyFromSeed(seed)), nil
}

func fromPrivate(private ed25519.PrivateKey) *Keypair {
	keypair := &Keypair{private: private}
	copy(keypair.public[:], private.Public().(ed25519.PublicKey))
	return keypair
}

// Public returns the public half of the keypair.
func (k *Keypair) Public() PublicKey { return k.public }

// Name returns the XOR name of the keypair's public key.
func (k *Keypair) Name() xorname.Name { return k.public.Name() }

// Seed returns the 32-byte private seed.
func (k *Keypair) Seed() []byte { return k.private.Seed() }

// Sign signs message.
func (k *Keypair) Sign(message []byte) Signature {
	var signature Signature
	copy(signature[:], ed25519.Sign(k.private, message))
	return signature
}

// Verify reports whether signature is valid for message under k.
func (k PublicKey) Verify(message []byte, signature Signature) bool {
	return ed25519.Verify(k[:], message, signature[:])
}

// Name returns the XOR name derived from the key.
func (k PublicKey) Name() xorname.Name {
	return xorname.FromPublicKey(k[:])
}

// IsZero reports whether k is the zero key.
func (k PublicKey) IsZero() bool { return k == PublicKey{} }

// Hex returns the full hex encoding of the key.
func (k PublicKey) Hex() string { return hex.EncodeToString(k[:]) }

// String returns an abbreviated hex form for logs.
func (k PublicKey) String() string { return hex.EncodeToString(k[:4]) + ".." }

// ParsePublicKey decodes a 64-character hex public key.
func ParsePublicKey(hexString string) (PublicKey, error) {
	var key PublicKey
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return key, fmt.Errorf("parsing public key: %w", err)
	}
	if len(decoded) != len(key) {
		return key, fmt.Errorf("public key is %d bytes, want %d", len(decoded), len(key))
	}
	copy(key[:], decoded)
	return key, nil
}
