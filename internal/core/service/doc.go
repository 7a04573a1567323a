// Package service provides the spool manager for spoolmesh.
//
// SpoolService orchestrates create, append, read, and purge against the
// spool repository. It owns per-spool serialization (append and purge
// run under an exclusive per-spool lock, read under a shared one) and
// the ownership checks that gate every mutating command.
package service
