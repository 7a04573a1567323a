// Package spoolproto defines the spoolmesh wire protocol.
package spoolproto

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// PluginRequest is the envelope the host transport delivers to the
// service over the unix socket. Payload carries a CBOR Request.
type PluginRequest struct {
	// ID correlates the request with the host's delivery attempt.
	ID uint64 `cbor:"ID"`

	// Payload is the CBOR-encoded spool Request.
	Payload []byte `cbor:"Payload"`

	// HasSURB indicates the sender supplied a reply block. Commands
	// that produce a response require one.
	HasSURB bool `cbor:"HasSURB"`
}

// PluginResponse is the envelope returned to the host transport.
// Payload carries a CBOR Response.
type PluginResponse struct {
	Payload []byte `cbor:"Payload"`
}

// Parameters is the service parameter map returned from /parameters.
type Parameters map[string]string

// encMode and decMode are the single canonical CBOR configuration for
// the protocol. Canonical map ordering keeps encodings deterministic;
// the decoder caps nested depth and rejects unknown field duplication.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("spoolproto: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		MaxNestedLevels: 8,
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("spoolproto: cbor dec mode: %v", err))
	}
}

// Marshal encodes a protocol message with the canonical encoder.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes a protocol message with the canonical decoder.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
