// Package keylock provides per-key locks with bounded acquisition.
package keylock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/spoolmesh-go/pkg/cmap"
)

// ErrAcquireTimeout is returned when a lock cannot be taken within the
// caller's wait budget.
var ErrAcquireTimeout = errors.New("keylock: acquire timed out")

// DefaultRetryInterval is the poll interval between lock attempts.
const DefaultRetryInterval = 2 * time.Millisecond

// Table is a set of named read/write locks, created on first use and
// discarded when no goroutine holds or awaits them.
type Table struct {
	entries *cmap.Map[string, *lockEntry]
	retry   time.Duration
}

// lockEntry refs counts holders plus waiters; refs is mutated only
// under the owning cmap shard lock, which makes ref/unref atomic with
// entry creation and removal. writers counts writers waiting to
// acquire; while it is nonzero new readers back off, so a sustained
// stream of readers cannot starve a writer.
type lockEntry struct {
	mu      sync.RWMutex
	refs    int
	writers atomic.Int32
}

// Option configures the Table.
type Option func(*Table)

// WithRetryInterval sets the poll interval between lock attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(t *Table) {
		if d > 0 {
			t.retry = d
		}
	}
}

// New creates an empty lock table.
func New(opts ...Option) *Table {
	t := &Table{
		entries: cmap.New[string, *lockEntry](),
		retry:   DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Lock takes the exclusive lock for key, blocking until acquired or
// ctx is done. The returned release function must be called exactly
// once. On failure the error is ErrAcquireTimeout (wrapping the ctx
// cause is left to the caller). A waiting writer holds off new readers
// until it gets the lock.
func (t *Table) Lock(ctx context.Context, key string) (func(), error) {
	return t.acquire(ctx, key, true,
		func(e *lockEntry) bool { return e.mu.TryLock() },
		func(e *lockEntry) { e.mu.Unlock() })
}

// RLock takes the shared lock for key. Multiple readers may hold it
// concurrently; it excludes writers and yields to waiting ones.
func (t *Table) RLock(ctx context.Context, key string) (func(), error) {
	return t.acquire(ctx, key, false,
		func(e *lockEntry) bool {
			if e.writers.Load() > 0 {
				return false
			}
			return e.mu.TryRLock()
		},
		func(e *lockEntry) { e.mu.RUnlock() })
}

// Held reports whether any goroutine currently holds or awaits the
// lock for key. Intended for tests and introspection.
func (t *Table) Held(key string) bool {
	return t.entries.Has(key)
}

// Size returns the number of live lock entries.
func (t *Table) Size() int {
	return t.entries.Count()
}

func (t *Table) acquire(ctx context.Context, key string, writer bool, try func(*lockEntry) bool, unlock func(*lockEntry)) (func(), error) {
	e := t.ref(key)

	if writer {
		e.writers.Add(1)
		defer e.writers.Add(-1)
	}

	if try(e) {
		return t.releaseFunc(key, e, unlock), nil
	}

	ticker := time.NewTicker(t.retry)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.unref(key)
			return nil, ErrAcquireTimeout
		case <-ticker.C:
			if try(e) {
				return t.releaseFunc(key, e, unlock), nil
			}
		}
	}
}

func (t *Table) releaseFunc(key string, e *lockEntry, unlock func(*lockEntry)) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			unlock(e)
			t.unref(key)
		})
	}
}

// ref pins the entry for key, creating it on first use. The returned
// entry cannot be removed from the table until a matching unref.
func (t *Table) ref(key string) *lockEntry {
	var e *lockEntry
	t.entries.Compute(key, func(v *lockEntry, exists bool) (*lockEntry, bool) {
		if !exists {
			v = &lockEntry{}
		}
		v.refs++
		e = v
		return v, true
	})
	return e
}

// unref drops one reference; the entry is removed when nobody holds or
// awaits the lock anymore.
func (t *Table) unref(key string) {
	t.entries.Compute(key, func(v *lockEntry, exists bool) (*lockEntry, bool) {
		if !exists {
			return nil, false
		}
		v.refs--
		return v, v.refs > 0
	})
}
