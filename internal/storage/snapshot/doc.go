// Package snapshot manages offline snapshot archives of the spool
// store.
//
// A snapshot file wraps a store backup stream in a small framed
// format: magic bytes, a JSON header, the (optionally encrypted)
// backup data, and a SHA-256 checksum trailer. Files are written to a
// temp path and renamed into place so a crash mid-write never leaves
// a half-valid snapshot. Load walks snapshots newest-first and skips
// corrupted files.
package snapshot
