// Package domain defines the core domain models for spoolmesh.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - Spool: append-only, owner-authenticated message queue metadata
//   - Entry: one immutable message at a sequence position
//   - ID: the fixed-width random spool identifier
//   - Errors: domain-specific error definitions
//
// Payload bytes are opaque to the domain; any encryption is the
// caller's responsibility.
package domain
