// Package storage provides durable spool storage for spoolmesh.
package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/spoolmesh-go/internal/core/domain"
)

// Key space layout. Metadata and entries share one database so a purge
// can remove a spool and all of its messages in a single transaction.
const (
	metaKeyPrefix  = 'm'
	entryKeyPrefix = 'e'
)

// Config configures the Badger-backed spool store.
type Config struct {
	// Dir is the storage directory.
	Dir string

	// InMemory runs Badger without files. Tests only.
	InMemory bool

	// GCInterval is the interval between value log GC runs.
	GCInterval time.Duration

	// GCThreshold is the discard ratio that triggers a value log
	// rewrite (0.0-1.0).
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	ValueLogFileSize int64
}

// DefaultConfig returns the default store configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		GCInterval:       10 * time.Minute,
		GCThreshold:      0.5,
		CacheSize:        64 << 20,
		ValueLogFileSize: 256 << 20,
	}
}

// spoolRecord is the on-disk metadata encoding. Field numbers are part
// of the storage format; never renumber.
type spoolRecord struct {
	OwnerKey     []byte `cbor:"1,keyasint"`
	NextSequence uint64 `cbor:"2,keyasint"`
	CreatedAt    int64  `cbor:"3,keyasint"`
}

var recordEnc cbor.EncMode

func init() {
	var err error
	recordEnc, err = cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("storage: cbor enc mode: %v", err))
	}
}

// BadgerStore is the durable spool repository.
//
// Writes go through Badger transactions with SyncWrites enabled, so a
// successful commit is fsynced before it is acknowledged and either all
// of a transaction's keys are visible after a crash or none are.
type BadgerStore struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger

	lastGCTime atomic.Int64

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsSpoolCount   prometheus.Gauge

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// Open opens (or creates) the spool database under cfg.Dir.
func Open(cfg Config, logger *slog.Logger) (*BadgerStore, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("storage: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.InMemory = cfg.InMemory
	// Durability contract: a successful mutation is synced before ack.
	opts.SyncWrites = !cfg.InMemory
	opts.Logger = &badgerLogger{logger: logger}
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}

	store := &BadgerStore{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go store.gcLoop()

	logger.Info("spool store opened",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"gc_interval", cfg.GCInterval)

	return store, nil
}

// Get retrieves spool metadata by identifier.
func (s *BadgerStore) Get(ctx context.Context, id domain.ID) (*domain.Spool, error) {
	var spool *domain.Spool
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, metaKey(id))
		if err != nil {
			return err
		}
		spool = recordToSpool(id, rec)
		return nil
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	return spool, nil
}

// PutNew atomically creates an empty spool record. It fails with
// ErrSpoolExists when the identifier is already taken; the caller
// regenerates and retries.
func (s *BadgerStore) PutNew(ctx context.Context, spool *domain.Spool) error {
	if err := spool.Validate(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		key := metaKey(spool.ID)
		if _, err := txn.Get(key); err == nil {
			return domain.ErrSpoolExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		value, err := recordEnc.Marshal(spoolToRecord(spool))
		if err != nil {
			return err
		}
		return txn.Set(key, value)
	})
	return s.mapError(err)
}

// AppendEntry atomically appends one entry and advances the spool's
// sequence counter, but only when the stored counter equals
// expectedSeq. Returns the committed sequence.
func (s *BadgerStore) AppendEntry(ctx context.Context, id domain.ID, expectedSeq uint64, payload []byte) (uint64, error) {
	var committed uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		key := metaKey(id)
		rec, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		if rec.NextSequence != expectedSeq {
			return domain.ErrSequenceConflict.WithDetails(
				fmt.Sprintf("stored %d, expected %d", rec.NextSequence, expectedSeq))
		}
		if rec.NextSequence > domain.MaxSequence {
			return domain.ErrSequenceExhausted
		}

		if err := txn.Set(entryKey(id, rec.NextSequence), payload); err != nil {
			return err
		}
		committed = rec.NextSequence
		rec.NextSequence++

		value, err := recordEnc.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(key, value)
	})
	if err != nil {
		return 0, s.mapError(err)
	}
	return committed, nil
}

// ReadEntry returns the payload stored at seq within the spool.
func (s *BadgerStore) ReadEntry(ctx context.Context, id domain.ID, seq uint64) ([]byte, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		// Distinguish a missing spool from a missing message.
		if _, err := getRecord(txn, metaKey(id)); err != nil {
			return err
		}
		item, err := txn.Get(entryKey(id, seq))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrMessageNotFound
			}
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	return payload, nil
}

// Delete atomically removes the spool record and every entry. After a
// successful return no trace of the identifier remains.
func (s *BadgerStore) Delete(ctx context.Context, id domain.ID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key := metaKey(id)
		if _, err := getRecord(txn, key); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = entryPrefix(id)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
	return s.mapError(err)
}

// CountSpools returns the number of spools currently stored.
func (s *BadgerStore) CountSpools(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{metaKeyPrefix}
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, s.mapError(err)
	}
	return count, nil
}

// Backup streams a consistent backup of the whole database to w.
// Returns a version cookie that can be passed as since on the next
// backup for an incremental stream.
func (s *BadgerStore) Backup(w io.Writer, since uint64) (uint64, error) {
	version, err := s.db.Backup(w, since)
	if err != nil {
		return 0, domain.ErrStorageUnavailable.WithCause(err)
	}
	return version, nil
}

// Load restores a backup stream into the database. The database must
// be freshly opened; existing keys are overwritten.
func (s *BadgerStore) Load(r io.Reader) error {
	if err := s.db.Load(r, 256); err != nil {
		return domain.ErrStorageUnavailable.WithCause(err)
	}
	return nil
}

// GC runs value log garbage collection until no further rewrite is
// possible.
func (s *BadgerStore) GC(ctx context.Context) error {
	start := time.Now()
	for {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return domain.ErrStorageUnavailable.WithCause(err)
		}
	}
	s.lastGCTime.Store(time.Now().UnixMilli())
	s.logger.Debug("value log gc completed", "elapsed", time.Since(start))
	return nil
}

// Close stops the GC loop and closes the database. Safe to call more
// than once.
func (s *BadgerStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh

		if cerr := s.db.Close(); cerr != nil {
			err = fmt.Errorf("storage: close db: %w", cerr)
			return
		}
		s.logger.Info("spool store closed")
	})
	return err
}

// RegisterMetrics registers store gauges with the given registry.
// Call once during startup; returns the store for chaining.
func (s *BadgerStore) RegisterMetrics(registry *prometheus.Registry) *BadgerStore {
	s.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "spoolmesh",
		Subsystem: "store",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	s.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "spoolmesh",
		Subsystem: "store",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	s.metricsSpoolCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "spoolmesh",
		Subsystem: "store",
		Name:      "spools",
		Help:      "Number of spools currently stored",
	})
	registry.MustRegister(s.metricsLSMSize, s.metricsValueLogSize, s.metricsSpoolCount)

	go s.metricsLoop()
	return s
}

func (s *BadgerStore) metricsLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			lsm, vlog := s.db.Size()
			s.metricsLSMSize.Set(float64(lsm))
			s.metricsValueLogSize.Set(float64(vlog))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if n, err := s.CountSpools(ctx); err == nil {
				s.metricsSpoolCount.Set(float64(n))
			}
			cancel()
		case <-s.stopCh:
			return
		}
	}
}

func (s *BadgerStore) gcLoop() {
	defer close(s.doneCh)

	interval := s.cfg.GCInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if err := s.GC(ctx); err != nil {
				s.logger.Error("auto gc failed", "error", err)
			}
			cancel()
		case <-s.stopCh:
			return
		}
	}
}

// mapError normalizes engine errors into the domain taxonomy. Domain
// errors pass through unchanged; anything else is a storage failure,
// fatal for the request but never for the process.
func (s *BadgerStore) mapError(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsDomainError(err, "") {
		return err
	}
	return domain.ErrStorageUnavailable.WithCause(err)
}

func getRecord(txn *badger.Txn, key []byte) (*spoolRecord, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrSpoolNotFound
		}
		return nil, err
	}
	var rec spoolRecord
	if err := item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, &rec)
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

func recordToSpool(id domain.ID, rec *spoolRecord) *domain.Spool {
	return &domain.Spool{
		ID:           id,
		OwnerKey:     rec.OwnerKey,
		NextSequence: rec.NextSequence,
		CreatedAt:    rec.CreatedAt,
	}
}

func spoolToRecord(spool *domain.Spool) *spoolRecord {
	return &spoolRecord{
		OwnerKey:     spool.OwnerKey,
		NextSequence: spool.NextSequence,
		CreatedAt:    spool.CreatedAt,
	}
}

func metaKey(id domain.ID) []byte {
	key := make([]byte, 1+domain.IDSize)
	key[0] = metaKeyPrefix
	copy(key[1:], id[:])
	return key
}

func entryKey(id domain.ID, seq uint64) []byte {
	key := make([]byte, 1+domain.IDSize+8)
	key[0] = entryKeyPrefix
	copy(key[1:], id[:])
	binary.BigEndian.PutUint64(key[1+domain.IDSize:], seq)
	return key
}

func entryPrefix(id domain.ID) []byte {
	prefix := make([]byte, 1+domain.IDSize)
	prefix[0] = entryKeyPrefix
	copy(prefix[1:], id[:])
	return prefix
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
