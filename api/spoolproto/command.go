// Package spoolproto defines the spoolmesh wire protocol.
package spoolproto

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire size constants. Any published client must agree on these.
const (
	// SpoolIDSize is the width of a spool identifier in bytes.
	SpoolIDSize = 12

	// SignatureSize is the size of an Ed25519 signature.
	SignatureSize = ed25519.SignatureSize

	// PublicKeySize is the size of an Ed25519 public key.
	PublicKeySize = ed25519.PublicKeySize
)

// Command identifies a spool operation on the wire.
type Command uint8

// Spool commands.
const (
	CmdCreateSpool Command = iota
	CmdPurgeSpool
	CmdAppendMessage
	CmdRetrieveMessage
)

// String returns the command name for logs and error messages.
func (c Command) String() string {
	switch c {
	case CmdCreateSpool:
		return "create_spool"
	case CmdPurgeSpool:
		return "purge_spool"
	case CmdAppendMessage:
		return "append_message"
	case CmdRetrieveMessage:
		return "retrieve_message"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	return c <= CmdRetrieveMessage
}

// Request is a spool command carried in a plugin envelope payload.
type Request struct {
	// Command selects the operation.
	Command Command `cbor:"1,keyasint"`

	// SpoolID addresses an existing spool. Empty for create.
	SpoolID []byte `cbor:"2,keyasint,omitempty"`

	// Signature authorizes create, append, and purge. It covers the
	// canonical signing bytes for the command (see SigningBytes).
	Signature []byte `cbor:"3,keyasint,omitempty"`

	// PublicKey is the owner key being registered. Create only.
	PublicKey []byte `cbor:"4,keyasint,omitempty"`

	// Sequence is the expected next sequence for append, or the
	// position to fetch for retrieve.
	Sequence uint64 `cbor:"5,keyasint,omitempty"`

	// Payload is the message body for append. Opaque bytes.
	Payload []byte `cbor:"6,keyasint,omitempty"`
}

// Response is the result of a spool command.
type Response struct {
	// SpoolID echoes the spool the command acted on. For create it
	// carries the newly assigned identifier.
	SpoolID []byte `cbor:"1,keyasint,omitempty"`

	// Sequence is the committed sequence for append, or the requested
	// position for retrieve.
	Sequence uint64 `cbor:"2,keyasint,omitempty"`

	// Payload is the message body for retrieve.
	Payload []byte `cbor:"3,keyasint,omitempty"`

	// Status is StatusOK on success, otherwise a stable error code.
	Status string `cbor:"4,keyasint"`
}

// StatusOK marks a successful response. Any other status is an error
// code as defined by the service's error taxonomy.
const StatusOK = "OK"

// Ok reports whether the response carries a success status.
func (r *Response) Ok() bool {
	return r.Status == StatusOK
}

// Validation errors for inbound requests.
var (
	ErrBadCommand   = errors.New("spoolproto: unknown command")
	ErrBadSpoolID   = errors.New("spoolproto: spool id must be 12 bytes")
	ErrBadSignature = errors.New("spoolproto: signature must be 64 bytes")
	ErrBadPublicKey = errors.New("spoolproto: public key must be 32 bytes")
)

// ValidateShape checks field lengths against the wire constants. It does
// not verify signatures; that requires the spool's registered owner key.
func (r *Request) ValidateShape() error {
	if !r.Command.Valid() {
		return ErrBadCommand
	}
	if r.Command == CmdCreateSpool {
		if len(r.PublicKey) != PublicKeySize {
			return ErrBadPublicKey
		}
	} else if len(r.SpoolID) != SpoolIDSize {
		return ErrBadSpoolID
	}
	switch r.Command {
	case CmdCreateSpool, CmdPurgeSpool, CmdAppendMessage:
		if len(r.Signature) != SignatureSize {
			return ErrBadSignature
		}
	}
	return nil
}

// SigningBytes returns the canonical byte encoding a request signature
// covers. The expected sequence is bound into append signatures so a
// captured request cannot be replayed once the spool has advanced.
//
//	create:   command || owner public key
//	purge:    command || spool id
//	append:   command || spool id || be64(expected sequence) || payload
//
// Retrieve is unauthenticated and has no signing bytes.
func (r *Request) SigningBytes() []byte {
	switch r.Command {
	case CmdCreateSpool:
		b := make([]byte, 0, 1+len(r.PublicKey))
		b = append(b, byte(r.Command))
		return append(b, r.PublicKey...)
	case CmdPurgeSpool:
		b := make([]byte, 0, 1+len(r.SpoolID))
		b = append(b, byte(r.Command))
		return append(b, r.SpoolID...)
	case CmdAppendMessage:
		b := make([]byte, 0, 1+len(r.SpoolID)+8+len(r.Payload))
		b = append(b, byte(r.Command))
		b = append(b, r.SpoolID...)
		b = binary.BigEndian.AppendUint64(b, r.Sequence)
		return append(b, r.Payload...)
	default:
		return nil
	}
}

// Sign fills in the request signature using the owner's private key.
// The request fields covered by the signature must be final.
func (r *Request) Sign(priv ed25519.PrivateKey) {
	r.Signature = ed25519.Sign(priv, r.SigningBytes())
}

// VerifySignature recomputes the canonical signing bytes and checks the
// request signature against the given owner key. Pure; no side effects.
func (r *Request) VerifySignature(owner ed25519.PublicKey) bool {
	if len(owner) != PublicKeySize || len(r.Signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(owner, r.SigningBytes(), r.Signature)
}
