// Package storage provides durable spool storage for spoolmesh.
//
// The store owns all bytes on disk: one metadata record per spool plus
// one record per entry, both inside a single Badger database opened
// with synchronous writes. Every successful create, append, and purge
// is committed and synced before the call returns, so the visible
// state after a restart reflects exactly the last acknowledged
// operation per spool.
//
// Appends carry the caller's expected sequence and are rejected with a
// conflict when the stored counter has moved: an independent guard
// underneath the service layer's per-spool locking.
package storage
