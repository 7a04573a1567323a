// Package main provides the entry point for spoolmesh-cli.
//
// The CLI provides command-line access to a running spoolmesh-server:
//
//   - Key management (keygen)
//   - Spool operations (create, append, read, purge)
//   - Service parameters (params)
//
// Usage:
//
//	spoolmesh-cli [command] [flags]
//	spoolmesh-cli keygen
//	spoolmesh-cli --socket /run/spoolmesh.sock create
//	spoolmesh-cli --socket /run/spoolmesh.sock append --sequence 1 --message hello SPOOL_ID
//
// Mutating commands are signed with the owner key from the key file
// (--key, default spool-owner.key). Reads need only the spool id.
package main
