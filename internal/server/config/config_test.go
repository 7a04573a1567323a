package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func validConfig(t *testing.T) *ServerConfig {
	t.Helper()
	cfg := Default()
	cfg.Storage.DataDir = t.TempDir()
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.MaxInflight != DefaultMaxInflight {
		t.Errorf("MaxInflight = %d, want %d", cfg.Server.MaxInflight, DefaultMaxInflight)
	}
	if cfg.Storage.MaxPayloadSize != DefaultMaxPayloadSize {
		t.Errorf("MaxPayloadSize = %d, want %d", cfg.Storage.MaxPayloadSize, DefaultMaxPayloadSize)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want info/json", cfg.Log)
	}
	if cfg.Snapshot.Enabled {
		t.Error("snapshots enabled by default, want disabled")
	}
}

func TestVerify_Valid(t *testing.T) {
	cfg := validConfig(t)
	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	// Derived paths are filled in.
	want := filepath.Join(cfg.Storage.DataDir, DefaultSocketName)
	if cfg.Server.SocketPath != want {
		t.Errorf("SocketPath = %q, want %q", cfg.Server.SocketPath, want)
	}
}

func TestVerify_SnapshotDirDerived(t *testing.T) {
	cfg := validConfig(t)
	cfg.Snapshot.Enabled = true
	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	want := filepath.Join(cfg.Storage.DataDir, "snapshots")
	if cfg.Snapshot.Dir != want {
		t.Errorf("Snapshot.Dir = %q, want %q", cfg.Snapshot.Dir, want)
	}
}

func TestVerify_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"missing data dir", func(c *ServerConfig) { c.Storage.DataDir = "" }, "data_dir"},
		{"zero max inflight", func(c *ServerConfig) { c.Server.MaxInflight = 0 }, "max_inflight"},
		{"negative rate limit", func(c *ServerConfig) { c.Server.RateLimit = -1 }, "rate_limit"},
		{"rate without burst", func(c *ServerConfig) { c.Server.RateLimit = 10; c.Server.RateBurst = 0 }, "rate_burst"},
		{"zero payload cap", func(c *ServerConfig) { c.Storage.MaxPayloadSize = 0 }, "max_payload_size"},
		{"zero lock wait", func(c *ServerConfig) { c.Storage.LockWait = 0 }, "lock_wait"},
		{"snapshot zero keep", func(c *ServerConfig) { c.Snapshot.Enabled = true; c.Snapshot.Keep = 0 }, "keep"},
		{"snapshot zero interval", func(c *ServerConfig) { c.Snapshot.Enabled = true; c.Snapshot.Interval = 0 }, "interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := Verify(cfg)
			if err == nil {
				t.Fatal("Verify() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Verify() error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	cfg := Default()
	cfg.Snapshot.EncryptionKey = "super-secret-key-material"

	sanitized := Sanitize(cfg)
	if sanitized.Snapshot.EncryptionKey == cfg.Snapshot.EncryptionKey {
		t.Error("Sanitize() did not mask the encryption key")
	}
	if !strings.Contains(sanitized.Snapshot.EncryptionKey, "*") {
		t.Errorf("Sanitize() key = %q, want masked", sanitized.Snapshot.EncryptionKey)
	}
	// Original untouched.
	if cfg.Snapshot.EncryptionKey != "super-secret-key-material" {
		t.Error("Sanitize() mutated the original config")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ab", "****"},
		{"abcd", "****"},
		{"abcdef", "ab**ef"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
