// Package config defines the server configuration structure.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Verify validates the configuration and materializes required
// directories. Derived values (socket path, snapshot dir) are filled
// in here so the rest of the server never sees an empty path.
func Verify(cfg *ServerConfig) error {
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyServer(&cfg.Server, cfg.Storage.DataDir); err != nil {
		return err
	}
	if err := verifySnapshot(&cfg.Snapshot, cfg.Storage.DataDir); err != nil {
		return err
	}
	return nil
}

func verifyServer(cfg *ServerSection, dataDir string) error {
	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(dataDir, DefaultSocketName)
	}
	if cfg.MaxInflight < 1 {
		return errors.New("server.max_inflight must be at least 1")
	}
	if cfg.RateLimit < 0 {
		return errors.New("server.rate_limit must not be negative")
	}
	if cfg.RateLimit > 0 && cfg.RateBurst < 1 {
		return errors.New("server.rate_burst must be at least 1 when rate limiting is on")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("cannot create data directory: %w", err)
	}
	if cfg.MaxPayloadSize < 1 {
		return errors.New("storage.max_payload_size must be at least 1")
	}
	if cfg.LockWait <= 0 {
		return errors.New("storage.lock_wait must be positive")
	}
	return nil
}

func verifySnapshot(cfg *SnapshotSection, dataDir string) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(dataDir, "snapshots")
	}
	if cfg.Interval <= 0 {
		return errors.New("snapshot.interval must be positive")
	}
	if cfg.Keep < 1 {
		return errors.New("snapshot.keep must be at least 1")
	}
	return nil
}
