// Package spoolproto defines the wire protocol between the spoolmesh
// service, its host plugin transport, and clients.
//
// All messages are CBOR encoded. The package owns a single canonical
// encoder/decoder pair so that every byte sequence a client signs can be
// reproduced verbatim by the server; callers must not construct their own
// cbor modes for these types.
//
// The protocol consists of two layers:
//
//   - PluginRequest/PluginResponse: the envelope the host delivers over
//     the unix socket (POST /request, POST /parameters).
//   - Request/Response: the spool command carried in the envelope payload
//     (create, purge, append, retrieve).
//
// Append and purge commands are authorized by an Ed25519 signature over
// the canonical signing bytes (see SigningBytes); create is signed with
// the key being registered, proving possession of the private half.
package spoolproto
