// Package logger provides structured logging for spoolmesh.
//
// This package wraps log/slog for structured logging:
//
//   - logger.go: logger configuration and initialization
//   - context.go: context-aware logging with request IDs
//   - redact.go: sensitive data redaction
//
// Features:
//
//   - JSON and text output formats
//   - Dynamic log level filtering
//   - Automatic masking of message payloads and key material
//   - Context propagation for per-request logging
package logger
