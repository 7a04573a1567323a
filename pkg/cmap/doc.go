// Package cmap provides a concurrent-safe sharded map.
//
// The map spreads keys across a power-of-two number of shards, each
// guarded by its own RWMutex, so operations on unrelated keys do not
// contend. It backs the per-spool lock table, where independence
// between spool identifiers is a correctness requirement, not just a
// throughput optimization.
//
// All operations are thread-safe. Read operations (Get, Has) take the
// shard read lock; write operations (Set, Delete, Compute) take the
// shard write lock.
package cmap
