package snapshot

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	"github.com/yndnr/spoolmesh-go/pkg/crypto/adaptive"
)

// Encryption errors.
var (
	ErrKeyTooShort       = errors.New("snapshot: encryption key too short (minimum 16 bytes)")
	ErrPassphraseTooWeak = errors.New("snapshot: passphrase too weak (minimum 8 characters)")
)

const (
	// KeyLength is the full key length derivation produces and the
	// ciphers expect.
	KeyLength = 32

	// MinKeyLength is the minimum raw key length for encryption.
	MinKeyLength = 16

	// MinPassphraseLength is the minimum passphrase length.
	MinPassphraseLength = 8

	// SaltLength is the fixed salt length used in key derivation.
	SaltLength = 16

	// Argon2id parameters for key derivation from a passphrase.
	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
)

// EncryptionConfig configures snapshot encryption.
type EncryptionConfig struct {
	// Key is the raw encryption key (32 bytes for AES-256). Either
	// Key or Passphrase must be provided for encryption.
	Key []byte

	// Passphrase derives the encryption key via Argon2id. If set,
	// Key is ignored. Stored as bytes so it can be wiped with ZeroKey.
	Passphrase []byte

	// Salt reproduces a previously derived key for decryption. When
	// nil a fresh random salt is generated (encryption path); the
	// caller must persist the returned salt.
	Salt []byte

	// Algorithm is "aes-gcm" (default) or "chacha20-poly1305".
	Algorithm string
}

// ValidateConfig validates the encryption configuration.
func ValidateConfig(cfg EncryptionConfig) error {
	if len(cfg.Passphrase) > 0 {
		if len(cfg.Passphrase) < MinPassphraseLength {
			return ErrPassphraseTooWeak
		}
		return nil
	}
	if len(cfg.Key) > 0 && len(cfg.Key) < MinKeyLength {
		return ErrKeyTooShort
	}
	return nil
}

// NewCipherFromConfig creates a cipher from the encryption
// configuration. For passphrase-based derivation it also returns the
// salt that was used; the caller must persist it to decrypt later.
// A zero config yields a nil cipher (encryption disabled).
func NewCipherFromConfig(cfg EncryptionConfig) (adaptive.Cipher, []byte, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, nil, err
	}

	var key, salt []byte
	switch {
	case len(cfg.Passphrase) > 0:
		derived, err := DeriveKeyFromPassphrase(cfg.Passphrase, cfg.Salt)
		if err != nil {
			return nil, nil, err
		}
		salt, key, err = ExtractKeyFromDerived(derived)
		if err != nil {
			return nil, nil, err
		}
	case len(cfg.Key) > 0:
		key = cfg.Key
	default:
		return nil, nil, nil
	}

	algo := cfg.Algorithm
	if algo == "" {
		algo = string(adaptive.CipherAESGCM)
	}
	c, err := adaptive.NewWithType(key, adaptive.CipherType(algo))
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: %w", err)
	}
	return c, salt, nil
}

// DeriveKeyFromPassphrase derives a 32-byte key from a passphrase
// using Argon2id. If salt is nil a new random salt is generated. The
// result is salt || key.
func DeriveKeyFromPassphrase(passphrase []byte, salt []byte) ([]byte, error) {
	if salt == nil {
		salt = make([]byte, SaltLength)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("snapshot: derive key: %w", err)
		}
	}

	key := argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	result := make([]byte, len(salt)+len(key))
	copy(result, salt)
	copy(result[len(salt):], key)
	return result, nil
}

// ExtractKeyFromDerived splits a derived value back into salt and key.
func ExtractKeyFromDerived(derived []byte) (salt, key []byte, err error) {
	if len(derived) < SaltLength+argon2KeyLen {
		return nil, nil, fmt.Errorf("snapshot: invalid derived key length")
	}
	return derived[:SaltLength], derived[SaltLength:], nil
}

// DeriveSubkey derives a purpose-bound subkey from a master key using
// HKDF-SHA256.
func DeriveSubkey(masterKey []byte, info string, length int) ([]byte, error) {
	if len(masterKey) < MinKeyLength {
		return nil, ErrKeyTooShort
	}

	reader := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	key := make([]byte, length)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("snapshot: derive subkey: %w", err)
	}
	return key, nil
}

// GenerateKey generates a random encryption key of the given length.
func GenerateKey(length int) ([]byte, error) {
	if length < MinKeyLength {
		return nil, ErrKeyTooShort
	}

	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("snapshot: generate key: %w", err)
	}
	return key, nil
}

// ZeroKey zeros key material in place.
func ZeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
