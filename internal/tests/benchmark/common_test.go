package benchmark

import (
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"log/slog"
	"testing"

	"github.com/yndnr/spoolmesh-go/api/spoolproto"
	"github.com/yndnr/spoolmesh-go/internal/core/domain"
	"github.com/yndnr/spoolmesh-go/internal/core/service"
	"github.com/yndnr/spoolmesh-go/internal/storage"
)

// PayloadSizes covers the range from a control message to a full mix
// packet payload.
var PayloadSizes = []int{64, 1024, 16 << 10, 64 << 10}

// benchLogger discards everything; log cost is not what is measured.
func benchLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openBenchStore opens a badger store in a temp dir.
func openBenchStore(b *testing.B) *storage.BadgerStore {
	b.Helper()
	store, err := storage.Open(storage.DefaultConfig(b.TempDir()), benchLogger())
	if err != nil {
		b.Fatalf("storage.Open() error = %v", err)
	}
	b.Cleanup(func() { store.Close() })
	return store
}

// benchOwner is a keypair plus signing helpers for building spool
// commands the way a client would.
type benchOwner struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newBenchOwner(b *testing.B) *benchOwner {
	b.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		b.Fatalf("GenerateKey() error = %v", err)
	}
	return &benchOwner{pub: pub, priv: priv}
}

func (o *benchOwner) createRequest() *service.CreateSpoolRequest {
	req := &spoolproto.Request{Command: spoolproto.CmdCreateSpool, PublicKey: o.pub}
	req.Sign(o.priv)
	return &service.CreateSpoolRequest{OwnerKey: o.pub, Signature: req.Signature}
}

func (o *benchOwner) appendRequest(spoolID domain.ID, seq uint64, payload []byte) *service.AppendMessageRequest {
	req := &spoolproto.Request{
		Command:  spoolproto.CmdAppendMessage,
		SpoolID:  spoolID[:],
		Sequence: seq,
		Payload:  payload,
	}
	req.Sign(o.priv)
	return &service.AppendMessageRequest{
		SpoolID:   spoolID,
		Sequence:  seq,
		Payload:   payload,
		Signature: req.Signature,
	}
}

// randomPayload returns size bytes of random data.
func randomPayload(b *testing.B, size int) []byte {
	b.Helper()
	payload := make([]byte, size)
	if _, err := rand.Read(payload); err != nil {
		b.Fatalf("rand.Read() error = %v", err)
	}
	return payload
}
