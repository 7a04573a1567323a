// Package adaptive provides authenticated encryption with automatic
// algorithm selection, used to seal spool snapshot archives at rest.
//
// A single Cipher interface wraps two AEAD constructions:
//
//   - AES-256-GCM: preferred when hardware AES support is available
//   - ChaCha20-Poly1305: fallback for systems without AES-NI
//
// The chosen algorithm travels with each archive (CipherType is recorded
// in the snapshot header), so an archive sealed on one host opens on any
// other. All cipher operations are safe for concurrent use.
package adaptive
