// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"github.com/google/renameio"
)

const (
	secretKeyFile = "secret-key"
	publicKeyFile = "public-key"
)

// scryptWorkFactor is the log2 scrypt cost used when encrypting a
// secret key under a passphrase.
var scryptWorkFactor = 18

// Save writes the keypair into dir. The secret key file has 0600
// permissions and holds the raw seed, or an age ciphertext of the
// seed when passphrase is non-empty. The public key file holds the
// hex public key with 0644 permissions.
func Save(dir string, keypair *Keypair, passphrase string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	secret := keypair.Seed()
	if passphrase != "" {
		sealed, err := encryptSeed(secret, passphrase)
		if err != nil {
			return err
		}
		secret = sealed
	}

	if err := renameio.WriteFile(filepath.Join(dir, secretKeyFile), secret, 0600); err != nil {
		return fmt.Errorf("writing secret key: %w", err)
	}
	public := []byte(keypair.Public().Hex() + "\n")
	if err := renameio.WriteFile(filepath.Join(dir, publicKeyFile), public, 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}

// Load reads a keypair saved by Save. An encrypted secret key requires
// the passphrase it was saved with. The public key file must match the
// secret key.
func Load(dir, passphrase string) (*Keypair, error) {
	secret, err := os.ReadFile(filepath.Join(dir, secretKeyFile))
	if err != nil {
		return nil, fmt.Errorf("reading secret key: %w", err)
	}

	if len(secret) != ed25519.SeedSize {
		if passphrase == "" {
			return nil, fmt.Errorf("secret key has %d bytes and no passphrase was given", len(secret))
		}
		secret, err = decryptSeed(secret, passphrase)
		if err != nil {
			return nil, err
		}
	}

	keypair, err := FromSeed(secret)
	if err != nil {
		return nil, err
	}

	publicText, err := os.ReadFile(filepath.Join(dir, publicKeyFile))
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	public, err := ParsePublicKey(strings.TrimSpace(string(publicText)))
	if err != nil {
		return nil, err
	}
	if public != keypair.Public() {
		return nil, fmt.Errorf("public key file %s does not match the secret key", filepath.Join(dir, publicKeyFile))
	}
	return keypair, nil
}

// LoadOrGenerate loads the keypair in dir, or generates and saves a
// new one if none exists. The boolean reports whether a new keypair
// was generated.
func LoadOrGenerate(dir, passphrase string) (*Keypair, bool, error) {
	keypair, err := Load(dir, passphrase)
	if err == nil {
		return keypair, false, nil
	}
	if _, statErr := os.Stat(filepath.Join(dir, secretKeyFile)); !errors.Is(statErr, fs.ErrNotExist) {
		return nil, false, err
	}

	keypair, err = Generate()
	if err != nil {
		return nil, false, err
	}
	if err := Save(dir, keypair, passphrase); err != nil {
		return nil, false, err
	}
	return keypair, true, nil
}

func encryptSeed(seed []byte, passphrase string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating passphrase recipient: %w", err)
	}
	recipient.SetWorkFactor(scryptWorkFactor)

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(seed); err != nil {
		return nil, fmt.Errorf("encrypting secret key: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

func decryptSeed(ciphertext []byte, passphrase string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating passphrase identity: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting secret key: %w", err)
	}
	seed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted secret key: %w", err)
	}
	return seed, nil
}
