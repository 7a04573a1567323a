package adaptive

import (
	"bytes"
	"testing"
)

func testKey(n int) []byte {
	key := make([]byte, n)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestNew(t *testing.T) {
	c, err := New(testKey(32))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.Type() != CipherAESGCM && c.Type() != CipherChaCha20 {
		t.Errorf("New() type = %s, want a known construction", c.Type())
	}
}

func TestNewWithType(t *testing.T) {
	tests := []struct {
		name       string
		key        []byte
		cipherType CipherType
		wantErr    bool
	}{
		{"aes-128", testKey(16), CipherAESGCM, false},
		{"aes-192", testKey(24), CipherAESGCM, false},
		{"aes-256", testKey(32), CipherAESGCM, false},
		{"aes bad key", testKey(31), CipherAESGCM, true},
		{"chacha20", testKey(32), CipherChaCha20, false},
		{"chacha20 short key", testKey(16), CipherChaCha20, true},
		{"unknown type", testKey(32), CipherType("rot13"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewWithType(tt.key, tt.cipherType)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewWithType() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewWithType() error = %v", err)
			}
			if c.Type() != tt.cipherType {
				t.Errorf("Type() = %s, want %s", c.Type(), tt.cipherType)
			}
		})
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	for _, cipherType := range []CipherType{CipherAESGCM, CipherChaCha20} {
		t.Run(string(cipherType), func(t *testing.T) {
			c, err := NewWithType(testKey(32), cipherType)
			if err != nil {
				t.Fatalf("NewWithType() error = %v", err)
			}

			tests := []struct {
				name      string
				plaintext []byte
				aad       []byte
			}{
				{"empty", nil, nil},
				{"simple", []byte("hello spool"), nil},
				{"with aad", []byte("archive body"), []byte("SPMSNAP1")},
				{"large", bytes.Repeat([]byte("A"), 4096), nil},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					sealed, err := c.Encrypt(tt.plaintext, tt.aad)
					if err != nil {
						t.Fatalf("Encrypt() error = %v", err)
					}
					if want := len(tt.plaintext) + c.NonceSize() + c.Overhead(); len(sealed) < want {
						t.Errorf("Encrypt() length = %d, want >= %d", len(sealed), want)
					}
					opened, err := c.Decrypt(sealed, tt.aad)
					if err != nil {
						t.Fatalf("Decrypt() error = %v", err)
					}
					if !bytes.Equal(opened, tt.plaintext) {
						t.Errorf("Decrypt() = %q, want %q", opened, tt.plaintext)
					}
				})
			}
		})
	}
}

func TestCipher_RejectsTampering(t *testing.T) {
	for _, cipherType := range []CipherType{CipherAESGCM, CipherChaCha20} {
		t.Run(string(cipherType), func(t *testing.T) {
			c, err := NewWithType(testKey(32), cipherType)
			if err != nil {
				t.Fatalf("NewWithType() error = %v", err)
			}
			sealed, err := c.Encrypt([]byte("payload"), []byte("header"))
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}

			flipped := append([]byte(nil), sealed...)
			flipped[len(flipped)-1] ^= 0x01
			if _, err := c.Decrypt(flipped, []byte("header")); err == nil {
				t.Error("Decrypt() accepted a flipped tag bit")
			}

			if _, err := c.Decrypt(sealed, []byte("other header")); err == nil {
				t.Error("Decrypt() accepted mismatched additional data")
			}

			if _, err := c.Decrypt(sealed[:c.NonceSize()-1], []byte("header")); err == nil {
				t.Error("Decrypt() accepted truncated ciphertext")
			}
		})
	}
}
