// Package keyfile stores the CLI's Ed25519 spool owner key on disk.
//
// A key file holds the base64 raw-url encoded private key seed on a
// single line. The seed is enough to reconstruct the full keypair, so
// nothing else is persisted.
package keyfile

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
)

// ErrExists is returned by Generate when the key file is already
// present. Overwriting a spool owner key would orphan its spools.
var ErrExists = errors.New("keyfile: key file already exists")

// Generate creates a fresh keypair and writes the seed to path with
// owner-only permissions. It refuses to overwrite an existing file.
func Generate(path string) (ed25519.PublicKey, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("keyfile: stat: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keyfile: generate key: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(priv.Seed())
	if err := os.WriteFile(path, []byte(encoded+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("keyfile: write: %w", err)
	}
	return pub, nil
}

// Load reads the seed from path and reconstructs the private key.
func Load(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keyfile: read: %w", err)
	}

	seed, err := base64.RawURLEncoding.DecodeString(string(bytes.TrimSpace(raw)))
	if err != nil {
		return nil, fmt.Errorf("keyfile: decode %s: %w", path, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keyfile: %s: seed must be %d bytes, got %d",
			path, ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
