// Package domain defines the core domain models for spoolmesh.
package domain

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"math"
	"time"

	"github.com/yndnr/spoolmesh-go/api/spoolproto"
)

// Spool constraints.
const (
	// IDSize is the spool identifier width in bytes. Identifiers are
	// drawn from the full 96-bit space and never reused.
	IDSize = spoolproto.SpoolIDSize

	// FirstSequence is the sequence assigned to the first entry.
	FirstSequence uint64 = 1

	// MaxSequence is the highest assignable sequence. The wire encodes
	// sequences as 32-bit positions; the counter refuses to wrap.
	MaxSequence uint64 = math.MaxUint32
)

// ID is a fixed-width random spool identifier.
type ID [IDSize]byte

// NewID generates a fresh random spool identifier.
func NewID() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return ID{}, ErrInternalServer.WithCause(err)
	}
	return id, nil
}

// IDFromBytes converts a wire-format identifier to an ID.
func IDFromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != IDSize {
		return ID{}, ErrBadRequest.WithDetails("spool id must be 12 bytes")
	}
	copy(id[:], b)
	return id, nil
}

// ParseID decodes the textual form produced by String.
func ParseID(s string) (ID, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return ID{}, ErrBadRequest.WithDetails("malformed spool id").WithCause(err)
	}
	return IDFromBytes(b)
}

// String returns the identifier in base64 raw-url form, the encoding
// used in logs, on-disk keys, and the CLI.
func (id ID) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// Bytes returns the wire-format identifier.
func (id ID) Bytes() []byte {
	b := make([]byte, IDSize)
	copy(b, id[:])
	return b
}

// Spool is the metadata record of one append-only message spool.
//
// Entries are stored separately, keyed by sequence; the record tracks
// only the owner binding and the next sequence to assign.
type Spool struct {
	// ID is the unique identifier, immutable for the spool's lifetime.
	ID ID `json:"id"`

	// OwnerKey is the Ed25519 public key bound at creation; immutable.
	// Only requests signed by the matching private key may append to
	// or purge the spool.
	OwnerKey []byte `json:"owner_key"`

	// NextSequence is the sequence the next successful append will
	// receive. Starts at FirstSequence and advances exactly once per
	// committed append.
	NextSequence uint64 `json:"next_sequence"`

	// CreatedAt is the creation timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`
}

// NewSpool creates a Spool bound to the given owner key with a freshly
// generated identifier.
func NewSpool(ownerKey ed25519.PublicKey) (*Spool, error) {
	if len(ownerKey) != ed25519.PublicKeySize {
		return nil, ErrBadRequest.WithDetails("owner key must be 32 bytes")
	}
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	key := make([]byte, len(ownerKey))
	copy(key, ownerKey)
	return &Spool{
		ID:           id,
		OwnerKey:     key,
		NextSequence: FirstSequence,
		CreatedAt:    time.Now().UnixMilli(),
	}, nil
}

// Validate checks structural invariants of the record.
func (s *Spool) Validate() error {
	if len(s.OwnerKey) != ed25519.PublicKeySize {
		return ErrBadRequest.WithDetails("owner key must be 32 bytes")
	}
	if s.NextSequence < FirstSequence {
		return ErrBadRequest.WithDetails("next_sequence must be at least 1")
	}
	return nil
}

// Clone returns a deep copy, preventing callers from mutating stored
// state through shared slices.
func (s *Spool) Clone() *Spool {
	clone := *s
	clone.OwnerKey = make([]byte, len(s.OwnerKey))
	copy(clone.OwnerKey, s.OwnerKey)
	return &clone
}

// HighestSequence returns the last committed sequence, or 0 when the
// spool is empty.
func (s *Spool) HighestSequence() uint64 {
	return s.NextSequence - 1
}

// Entry is one immutable message stored at a sequence position.
type Entry struct {
	// Sequence is the 1-based, gapless position within the spool.
	Sequence uint64 `json:"sequence"`

	// Payload is the opaque message body.
	Payload []byte `json:"payload"`
}
