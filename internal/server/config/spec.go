// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for spoolmesh-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Storage  StorageSection  `koanf:"storage"`
	Snapshot SnapshotSection `koanf:"snapshot"`
	Metrics  MetricsSection  `koanf:"metrics"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures the plugin socket endpoint.
type ServerSection struct {
	// SocketPath is the unix socket the plugin server listens on. If
	// empty a path is derived inside DataDir.
	SocketPath string `koanf:"socket_path"`

	// MaxInflight caps concurrently handled requests. Requests beyond
	// the cap fail fast with a busy status.
	MaxInflight int `koanf:"max_inflight"`

	// RateLimit is the sustained request rate per second. Zero
	// disables rate limiting.
	RateLimit float64 `koanf:"rate_limit"`

	// RateBurst is the rate limiter burst size.
	RateBurst int `koanf:"rate_burst"`

	// DrainTimeout bounds how long shutdown waits for in-flight
	// requests.
	DrainTimeout time.Duration `koanf:"drain_timeout"`
}

// StorageSection configures the spool store.
type StorageSection struct {
	// DataDir is the root directory for all durable state.
	DataDir string `koanf:"data_dir"`

	// MaxPayloadSize bounds a single appended message in bytes.
	MaxPayloadSize int `koanf:"max_payload_size"`

	// LockWait bounds how long a request waits for a contended spool.
	LockWait time.Duration `koanf:"lock_wait"`

	// GCInterval is the interval between value log GC runs.
	GCInterval time.Duration `koanf:"gc_interval"`

	// CacheSize is the store block cache size in bytes.
	CacheSize int64 `koanf:"cache_size"`
}

// SnapshotSection configures snapshot archives.
type SnapshotSection struct {
	// Enabled turns periodic snapshots on.
	Enabled bool `koanf:"enabled"`

	// Dir is the snapshot directory. Defaults to <data_dir>/snapshots.
	Dir string `koanf:"dir"`

	// Interval is the time between automatic snapshots.
	Interval time.Duration `koanf:"interval"`

	// Keep is how many snapshots the retention policy preserves.
	Keep int `koanf:"keep"`

	// EncryptionKey encrypts snapshot archives when set (hex or raw).
	EncryptionKey string `koanf:"encryption_key"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	// Enabled exposes /metrics on Addr.
	Enabled bool `koanf:"enabled"`

	// Addr is the metrics listen address.
	Addr string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`

	// Dir, when set, writes logs to a file under this directory
	// instead of stderr.
	Dir string `koanf:"dir"`
}
