package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/yndnr/spoolmesh-go/internal/core/service"
	"github.com/yndnr/spoolmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/spoolmesh-go/internal/infra/confloader"
	"github.com/yndnr/spoolmesh-go/internal/infra/shutdown"
	"github.com/yndnr/spoolmesh-go/internal/server/config"
	"github.com/yndnr/spoolmesh-go/internal/server/pluginserver"
	"github.com/yndnr/spoolmesh-go/internal/storage"
	"github.com/yndnr/spoolmesh-go/internal/storage/snapshot"
	"github.com/yndnr/spoolmesh-go/internal/telemetry/logger"
	"github.com/yndnr/spoolmesh-go/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile    = flag.String("config", "", "Path to configuration file")
		dataDir       = flag.String("data_dir", "", "Override the data directory")
		logDir        = flag.String("log_dir", "", "Override the log directory")
		restoreFile   = flag.String("restore", "", "Restore the store from a snapshot archive before serving")
		listSnapshots = flag.Bool("list_snapshots", false, "List snapshot archives and exit")
		showVersion   = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("spoolmesh-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile, *dataDir, *logDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if *listSnapshots {
		return printSnapshots(cfg)
	}

	log, slogLogger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	info := buildinfo.Get()
	log.Info("starting spoolmesh-server",
		"version", info.Version,
		"commit", info.Commit,
		"data_dir", cfg.Storage.DataDir)
	log.Debug("effective configuration", "config", fmt.Sprintf("%+v", config.Sanitize(cfg)))

	metrics := metric.NewRegistry()

	store, err := initStorage(cfg, slogLogger, metrics)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	if *restoreFile != "" {
		if err := restoreSnapshot(cfg, store, *restoreFile, log); err != nil {
			store.Close()
			return fmt.Errorf("restore snapshot: %w", err)
		}
	}

	svc := service.NewSpoolService(store,
		service.WithMaxPayloadSize(cfg.Storage.MaxPayloadSize),
		service.WithLockWait(cfg.Storage.LockWait),
		service.WithLogger(slogLogger),
	)

	handler := pluginserver.NewHandler(svc, metrics, cfg.Storage.MaxPayloadSize)
	server := pluginserver.New(cfg.Server, handler, log, metrics)

	shutdownHandler := shutdown.NewHandler(cfg.Server.DrainTimeout)

	// Shutdown hooks run in reverse order of startup.
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down plugin server")
		return server.Shutdown(ctx)
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("closing store")
		return store.Close()
	})

	if cfg.Snapshot.Enabled {
		stopSnapshots, err := startSnapshotLoop(cfg, store, log)
		if err != nil {
			return fmt.Errorf("init snapshots: %w", err)
		}
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			stopSnapshots()
			return nil
		})
	}

	if cfg.Metrics.Enabled {
		metricsSrv := startMetricsServer(cfg.Metrics.Addr, metrics, log)
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			return metricsSrv.Shutdown(ctx)
		})
	}

	if *configFile != "" {
		watcher, err := watchConfig(*configFile, slogLogger, log)
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			return watcher.Stop()
		})
	}

	go func() {
		if err := server.ListenAndServe(); err != nil {
			log.Error("plugin server error", "error", err)
		}
	}()

	// The handshake line is the only thing ever written to stdout.
	// The host reads it to locate the socket.
	if err := awaitSocket(server.SocketPath(), 5*time.Second); err != nil {
		return err
	}
	fmt.Println(server.HandshakeLine())

	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from file and environment, then
// applies command line overrides.
func loadConfig(configFile, dataDir, logDir string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}

	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if logDir != "" {
		cfg.Log.Dir = logDir
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger initializes the structured logger. Output goes to a log
// file when a log directory is configured, otherwise stderr; stdout
// is reserved for the handshake line.
func initLogger(cfg *config.ServerConfig) (logger.Logger, *slog.Logger, error) {
	output := os.Stderr
	if cfg.Log.Dir != "" {
		if err := os.MkdirAll(cfg.Log.Dir, 0700); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(cfg.Log.Dir, "spoolmesh-server.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		output = f
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: output,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.SetDefault(log)

	return log, slog.Default(), nil
}

// initStorage opens the badger-backed spool store.
func initStorage(cfg *config.ServerConfig, log *slog.Logger, metrics *metric.Registry) (*storage.BadgerStore, error) {
	storageCfg := storage.DefaultConfig(cfg.Storage.DataDir)
	if cfg.Storage.GCInterval > 0 {
		storageCfg.GCInterval = cfg.Storage.GCInterval
	}
	if cfg.Storage.CacheSize > 0 {
		storageCfg.CacheSize = cfg.Storage.CacheSize
	}

	store, err := storage.Open(storageCfg, log)
	if err != nil {
		return nil, err
	}
	return store.RegisterMetrics(metrics.Prometheus()), nil
}

// watchConfig reloads the log level when the configuration file
// changes. Other settings need a restart.
func watchConfig(configFile string, slogLogger *slog.Logger, log logger.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(slogLogger))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(configFile); err != nil {
		watcher.Stop()
		return nil, err
	}

	watcher.OnChange(func(path string) {
		reloaded := config.Default()
		if err := confloader.NewLoader(confloader.WithConfigFile(configFile)).Load(reloaded); err != nil {
			log.Error("config reload failed", "error", err)
			return
		}
		if reloaded.Log.Level != logger.GetLevel() {
			log.Info("log level changed", "level", reloaded.Log.Level)
			logger.SetLevel(reloaded.Log.Level)
		}
	})
	watcher.StartAsync()
	return watcher, nil
}

// startSnapshotLoop takes periodic snapshots of the store until the
// returned stop function is called.
func startSnapshotLoop(cfg *config.ServerConfig, store *storage.BadgerStore, log logger.Logger) (func(), error) {
	mgr, err := newSnapshotManager(cfg)
	if err != nil {
		return nil, err
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(cfg.Snapshot.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := takeSnapshot(mgr, store); err != nil {
					log.Error("snapshot failed", "error", err)
					continue
				}
				if err := mgr.Prune(); err != nil {
					log.Error("snapshot prune failed", "error", err)
				}
			case <-stopCh:
				return
			}
		}
	}()

	return func() {
		close(stopCh)
		<-doneCh
	}, nil
}

// newSnapshotManager builds the snapshot manager, including the
// archive cipher when an encryption key is configured. The key must
// be 32 bytes hex encoded.
func newSnapshotManager(cfg *config.ServerConfig) (*snapshot.Manager, error) {
	snapCfg := snapshot.Config{
		Dir:            cfg.Snapshot.Dir,
		RetentionCount: cfg.Snapshot.Keep,
	}

	if cfg.Snapshot.EncryptionKey != "" {
		key, err := hex.DecodeString(cfg.Snapshot.EncryptionKey)
		if err != nil || len(key) != snapshot.KeyLength {
			return nil, fmt.Errorf("snapshot encryption key must be %d hex-encoded bytes", snapshot.KeyLength)
		}
		cipher, _, err := snapshot.NewCipherFromConfig(snapshot.EncryptionConfig{Key: key})
		if err != nil {
			return nil, err
		}
		snapCfg.Cipher = cipher
	}

	return snapshot.NewManager(snapCfg)
}

// restoreSnapshot loads a snapshot archive into the store. Badger
// applies the backup stream on top of whatever the data directory
// holds, so operators restore into a fresh directory.
func restoreSnapshot(cfg *config.ServerConfig, store *storage.BadgerStore, path string, log logger.Logger) error {
	mgr, err := newSnapshotManager(cfg)
	if err != nil {
		return err
	}
	data, info, err := mgr.LoadFile(path)
	if err != nil {
		return err
	}
	if err := store.Load(bytes.NewReader(data)); err != nil {
		return err
	}
	log.Info("restored store from snapshot",
		"snapshot", info.ID,
		"spools", info.SpoolCount,
		"store_version", info.StoreVersion)
	return nil
}

// printSnapshots writes the snapshot inventory to stdout.
func printSnapshots(cfg *config.ServerConfig) error {
	mgr, err := newSnapshotManager(cfg)
	if err != nil {
		return err
	}
	infos, err := mgr.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no snapshots")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%s\t%d bytes\t%s\n", info.ID, info.Size, info.Path)
	}
	return nil
}

// takeSnapshot streams a full store backup into a snapshot archive.
func takeSnapshot(mgr *snapshot.Manager, store *storage.BadgerStore) error {
	var buf bytes.Buffer
	version, err := store.Backup(&buf, 0)
	if err != nil {
		return err
	}

	count, err := store.CountSpools(context.Background())
	if err != nil {
		return err
	}

	_, err = mgr.Create(buf.Bytes(), count, version)
	return err
}

// startMetricsServer exposes /metrics on a loopback TCP listener.
func startMetricsServer(addr string, metrics *metric.Registry, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()
	return srv
}

// awaitSocket waits for the plugin socket to appear before the
// handshake line is printed.
func awaitSocket(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if info, err := os.Stat(path); err == nil && info.Mode()&os.ModeSocket != 0 {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("socket %s did not appear within %s", path, timeout)
}
