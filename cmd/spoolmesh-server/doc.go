// Package main provides the entry point for spoolmesh-server.
//
// The server is the spool storage service. It speaks the plugin
// protocol over a unix domain socket:
//
//   - POST /request carries CBOR spool commands (create, append,
//     retrieve, purge)
//   - GET /parameters advertises service parameters to the host
//
// On startup the server prints a single handshake line to stdout so
// the supervising host process can discover the socket. All logging
// goes to stderr or a log file, never stdout.
//
// Usage:
//
//	spoolmesh-server [flags]
//	spoolmesh-server -config /path/to/config.yaml
//	spoolmesh-server -data_dir /var/lib/spoolmesh -log_dir /var/log/spoolmesh
package main
