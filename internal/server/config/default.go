// Package config defines the server configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultSocketName   = "spoolmesh-server.sock"
	DefaultMaxInflight  = 64
	DefaultRateLimit    = 0 // disabled
	DefaultRateBurst    = 128
	DefaultDrainTimeout = 30 * time.Second

	DefaultDataDir        = "/var/lib/spoolmesh-server/data"
	DefaultMaxPayloadSize = 2 << 20
	DefaultLockWait       = 5 * time.Second
	DefaultGCInterval     = 10 * time.Minute
	DefaultCacheSize      = 64 << 20

	DefaultSnapshotInterval = 1 * time.Hour
	DefaultSnapshotKeep     = 5

	DefaultMetricsAddr = "127.0.0.1:5090"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			MaxInflight:  DefaultMaxInflight,
			RateLimit:    DefaultRateLimit,
			RateBurst:    DefaultRateBurst,
			DrainTimeout: DefaultDrainTimeout,
		},
		Storage: StorageSection{
			DataDir:        DefaultDataDir,
			MaxPayloadSize: DefaultMaxPayloadSize,
			LockWait:       DefaultLockWait,
			GCInterval:     DefaultGCInterval,
			CacheSize:      DefaultCacheSize,
		},
		Snapshot: SnapshotSection{
			Enabled:  false,
			Interval: DefaultSnapshotInterval,
			Keep:     DefaultSnapshotKeep,
		},
		Metrics: MetricsSection{
			Enabled: false,
			Addr:    DefaultMetricsAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
