package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherType names an AEAD construction. The type string is persisted in
// snapshot headers so archives decrypt with the algorithm that sealed them,
// independent of the host they are restored on.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// Cipher provides authenticated encryption. Implementations are safe for
// concurrent use.
type Cipher interface {
	// Type returns the construction backing this cipher.
	Type() CipherType

	// Encrypt seals plaintext, binding additionalData into the tag.
	// The nonce is generated per call and prefixed to the ciphertext.
	Encrypt(plaintext, additionalData []byte) ([]byte, error)

	// Decrypt opens ciphertext produced by Encrypt with the same
	// additional data.
	Decrypt(ciphertext, additionalData []byte) ([]byte, error)

	// NonceSize returns the nonce size in bytes.
	NonceSize() int

	// Overhead returns the authentication tag size in bytes.
	Overhead() int
}

// New builds a cipher using the construction best suited to the host:
// AES-GCM where the architecture carries hardware AES support, ChaCha20
// everywhere else.
func New(key []byte) (Cipher, error) {
	return NewWithType(key, preferredType())
}

// NewWithType builds a cipher of an explicit type, as when reopening a
// snapshot whose header records the algorithm.
func NewWithType(key []byte, cipherType CipherType) (Cipher, error) {
	aead, err := newAEAD(key, cipherType)
	if err != nil {
		return nil, err
	}
	return &sealedCipher{kind: cipherType, aead: aead}, nil
}

// preferredType picks AES-GCM on architectures where Go's crypto/aes is
// hardware backed (amd64 AES-NI, arm64 crypto extensions) and ChaCha20
// otherwise, where a software AES would be both slow and timing-unsafe.
func preferredType() CipherType {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return CipherAESGCM
	default:
		return CipherChaCha20
	}
}

func newAEAD(key []byte, cipherType CipherType) (cipher.AEAD, error) {
	switch cipherType {
	case CipherAESGCM:
		switch len(key) {
		case 16, 24, 32:
		default:
			return nil, fmt.Errorf("adaptive: AES-GCM key must be 16, 24, or 32 bytes, got %d", len(key))
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case CipherChaCha20:
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("adaptive: ChaCha20-Poly1305 key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
		}
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("adaptive: unknown cipher type %q", cipherType)
	}
}

// sealedCipher is the single implementation behind Cipher. The AEAD does
// the work; the wrapper owns nonce handling and the wire layout
// (nonce || ciphertext || tag).
type sealedCipher struct {
	kind CipherType
	aead cipher.AEAD
}

func (c *sealedCipher) Type() CipherType { return c.kind }
func (c *sealedCipher) NonceSize() int   { return c.aead.NonceSize() }
func (c *sealedCipher) Overhead() int    { return c.aead.Overhead() }

func (c *sealedCipher) Encrypt(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

func (c *sealedCipher) Decrypt(ciphertext, additionalData []byte) ([]byte, error) {
	if len(ciphertext) < c.aead.NonceSize() {
		return nil, fmt.Errorf("adaptive: ciphertext shorter than %d-byte nonce", c.aead.NonceSize())
	}
	nonce, sealed := ciphertext[:c.aead.NonceSize()], ciphertext[c.aead.NonceSize():]
	return c.aead.Open(nil, nonce, sealed, additionalData)
}
