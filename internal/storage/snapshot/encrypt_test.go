package snapshot

import (
	"bytes"
	"errors"
	"testing"
)

func TestNewCipherFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      EncryptionConfig
		wantErr  error
		wantNil  bool
		wantSalt bool
	}{
		{"disabled", EncryptionConfig{}, nil, true, false},
		{"raw key", EncryptionConfig{Key: bytes.Repeat([]byte{1}, 32)}, nil, false, false},
		{"short key", EncryptionConfig{Key: []byte("short")}, ErrKeyTooShort, false, false},
		{"passphrase", EncryptionConfig{Passphrase: []byte("correct horse battery")}, nil, false, true},
		{"weak passphrase", EncryptionConfig{Passphrase: []byte("hunter2")}, ErrPassphraseTooWeak, false, false},
		{"chacha20", EncryptionConfig{Key: bytes.Repeat([]byte{2}, 32), Algorithm: "chacha20-poly1305"}, nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cipher, salt, err := NewCipherFromConfig(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewCipherFromConfig() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewCipherFromConfig() error = %v", err)
			}
			if (cipher == nil) != tt.wantNil {
				t.Errorf("NewCipherFromConfig() cipher nil = %v, want %v", cipher == nil, tt.wantNil)
			}
			if (len(salt) > 0) != tt.wantSalt {
				t.Errorf("NewCipherFromConfig() salt len = %d, want salt: %v", len(salt), tt.wantSalt)
			}
		})
	}
}

func TestPassphraseDerivation_Roundtrip(t *testing.T) {
	passphrase := []byte("correct horse battery staple")

	cipher, salt, err := NewCipherFromConfig(EncryptionConfig{Passphrase: passphrase})
	if err != nil {
		t.Fatalf("NewCipherFromConfig() error = %v", err)
	}

	plaintext := []byte("snapshot payload")
	ciphertext, err := cipher.Encrypt(plaintext, nil)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	// The same passphrase plus the persisted salt reproduces the key.
	cipher2, _, err := NewCipherFromConfig(EncryptionConfig{Passphrase: passphrase, Salt: salt})
	if err != nil {
		t.Fatalf("NewCipherFromConfig() with salt error = %v", err)
	}
	decrypted, err := cipher2.Decrypt(ciphertext, nil)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
	}

	// A fresh salt derives a different key.
	cipher3, _, err := NewCipherFromConfig(EncryptionConfig{Passphrase: passphrase})
	if err != nil {
		t.Fatalf("NewCipherFromConfig() fresh salt error = %v", err)
	}
	if _, err := cipher3.Decrypt(ciphertext, nil); err == nil {
		t.Error("Decrypt() with fresh salt succeeded, want failure")
	}
}

func TestDeriveSubkey(t *testing.T) {
	master := bytes.Repeat([]byte{7}, 32)

	a, err := DeriveSubkey(master, "snapshot", 32)
	if err != nil {
		t.Fatalf("DeriveSubkey() error = %v", err)
	}
	b, err := DeriveSubkey(master, "snapshot", 32)
	if err != nil {
		t.Fatalf("DeriveSubkey() error = %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("DeriveSubkey() is not deterministic for equal inputs")
	}

	c, err := DeriveSubkey(master, "other-purpose", 32)
	if err != nil {
		t.Fatalf("DeriveSubkey() error = %v", err)
	}
	if bytes.Equal(a, c) {
		t.Error("DeriveSubkey() produced equal keys for different purposes")
	}

	if _, err := DeriveSubkey([]byte("tiny"), "snapshot", 32); !errors.Is(err, ErrKeyTooShort) {
		t.Errorf("DeriveSubkey() error = %v, want ErrKeyTooShort", err)
	}
}

func TestZeroKey(t *testing.T) {
	key := []byte{1, 2, 3, 4}
	ZeroKey(key)
	if !bytes.Equal(key, make([]byte, 4)) {
		t.Errorf("ZeroKey() left %v", key)
	}
}
