package command

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/spoolmesh-go/api/spoolproto"
	"github.com/yndnr/spoolmesh-go/internal/core/domain"
)

func TestApp_Structure(t *testing.T) {
	app := App()
	if app.Name != "spoolmesh-cli" {
		t.Errorf("app name = %q", app.Name)
	}

	want := []string{"keygen", "create", "append", "read", "purge", "params"}
	for _, name := range want {
		found := false
		for _, cmd := range app.Commands {
			if cmd.Name == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestAppendCommand_RequiresSequence(t *testing.T) {
	cmd := AppendCommand()
	for _, f := range cmd.Flags {
		if u, ok := f.(*cli.Uint64Flag); ok && u.Name == "sequence" {
			if !u.Required {
				t.Error("sequence flag is not required")
			}
			return
		}
	}
	t.Fatal("sequence flag not found")
}

// stubServer runs a scripted plugin endpoint on a unix socket. Each
// received command is recorded and answered with the next queued
// response.
type stubServer struct {
	t        *testing.T
	path     string
	requests []*spoolproto.Request
	queue    []*spoolproto.Response
}

func newStubServer(t *testing.T, responses ...*spoolproto.Response) *stubServer {
	t.Helper()

	s := &stubServer{
		t:     t,
		path:  filepath.Join(t.TempDir(), "stub.sock"),
		queue: responses,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/request", s.serveRequest)
	mux.HandleFunc("/parameters", func(w http.ResponseWriter, r *http.Request) {
		out, _ := spoolproto.Marshal(spoolproto.Parameters{"maxMessageSize": "2097152"})
		w.Write(out)
	})

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	srv := &http.Server{Handler: mux}
	go srv.Serve(listener)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return s
}

func (s *stubServer) serveRequest(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	var envelope spoolproto.PluginRequest
	if err := spoolproto.Unmarshal(body, &envelope); err != nil {
		s.t.Errorf("stub: decode envelope: %v", err)
		return
	}
	var req spoolproto.Request
	if err := spoolproto.Unmarshal(envelope.Payload, &req); err != nil {
		s.t.Errorf("stub: decode request: %v", err)
		return
	}
	s.requests = append(s.requests, &req)

	if len(s.queue) == 0 {
		s.t.Error("stub: no queued response")
		return
	}
	resp := s.queue[0]
	s.queue = s.queue[1:]

	payload, _ := spoolproto.Marshal(resp)
	out, _ := spoolproto.Marshal(&spoolproto.PluginResponse{Payload: payload})
	w.Write(out)
}

// runApp runs the CLI with stdout captured.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	app := App()
	app.Writer = &buf
	app.ErrWriter = io.Discard
	// Keep exit-coded errors as return values instead of os.Exit.
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"spoolmesh-cli"}, args...))
	return buf.String(), err
}

func TestKeygenThenCreate(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "owner.key")

	out, err := runApp(t, "--key", keyPath, "--output", "json", "keygen")
	if err != nil {
		t.Fatalf("keygen error = %v", err)
	}
	var keygenOut struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.Unmarshal([]byte(out), &keygenOut); err != nil {
		t.Fatalf("keygen output %q: %v", out, err)
	}
	if keygenOut.PublicKey == "" {
		t.Fatal("keygen printed no public key")
	}

	wantID := domain.ID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	stub := newStubServer(t, &spoolproto.Response{
		Status:  spoolproto.StatusOK,
		SpoolID: wantID[:],
	})

	out, err = runApp(t, "--key", keyPath, "--socket", stub.path, "--output", "json", "create")
	if err != nil {
		t.Fatalf("create error = %v", err)
	}
	var createOut struct {
		SpoolID string `json:"spool_id"`
	}
	if err := json.Unmarshal([]byte(out), &createOut); err != nil {
		t.Fatalf("create output %q: %v", out, err)
	}
	if createOut.SpoolID != wantID.String() {
		t.Errorf("create spool id = %q, want %q", createOut.SpoolID, wantID.String())
	}

	// The create command must carry a signature the announced owner
	// key verifies.
	if len(stub.requests) != 1 {
		t.Fatalf("stub saw %d requests", len(stub.requests))
	}
	sent := stub.requests[0]
	if sent.Command != spoolproto.CmdCreateSpool {
		t.Errorf("command = %v, want create", sent.Command)
	}
	if !sent.VerifySignature(ed25519.PublicKey(sent.PublicKey)) {
		t.Error("create request signature does not verify")
	}
}

func TestAppendAndRead(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "owner.key")
	if _, err := runApp(t, "--key", keyPath, "keygen"); err != nil {
		t.Fatalf("keygen error = %v", err)
	}

	id := domain.ID{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9}
	stub := newStubServer(t,
		&spoolproto.Response{Status: spoolproto.StatusOK, SpoolID: id[:], Sequence: 1},
		&spoolproto.Response{Status: spoolproto.StatusOK, SpoolID: id[:], Sequence: 1, Payload: []byte("hello")},
	)

	if _, err := runApp(t, "--key", keyPath, "--socket", stub.path,
		"append", "--sequence", "1", "--message", "hello", id.String()); err != nil {
		t.Fatalf("append error = %v", err)
	}

	out, err := runApp(t, "--key", keyPath, "--socket", stub.path,
		"read", "--sequence", "1", "--raw", id.String())
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	if out != "hello" {
		t.Errorf("read --raw output = %q, want hello", out)
	}

	appendReq := stub.requests[0]
	if appendReq.Command != spoolproto.CmdAppendMessage {
		t.Errorf("first command = %v, want append", appendReq.Command)
	}
	if appendReq.Sequence != 1 || string(appendReq.Payload) != "hello" {
		t.Errorf("append request = seq %d payload %q", appendReq.Sequence, appendReq.Payload)
	}
	readReq := stub.requests[1]
	if len(readReq.Signature) != 0 {
		t.Error("read request carries a signature, reads are unauthenticated")
	}
}

func TestPurge_ServerRejection(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "owner.key")
	if _, err := runApp(t, "--key", keyPath, "keygen"); err != nil {
		t.Fatalf("keygen error = %v", err)
	}

	id := domain.ID{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	stub := newStubServer(t, &spoolproto.Response{Status: "SM-AUTH-4010"})

	_, err := runApp(t, "--key", keyPath, "--socket", stub.path, "purge", id.String())
	if err == nil {
		t.Fatal("purge error = nil, want rejection")
	}
	if !strings.Contains(err.Error(), "SM-AUTH-4010") {
		t.Errorf("purge error = %v, want status code in message", err)
	}
}

func TestParams(t *testing.T) {
	stub := newStubServer(t)

	out, err := runApp(t, "--socket", stub.path, "--output", "json", "params")
	if err != nil {
		t.Fatalf("params error = %v", err)
	}
	var params map[string]string
	if err := json.Unmarshal([]byte(out), &params); err != nil {
		t.Fatalf("params output %q: %v", out, err)
	}
	if params["maxMessageSize"] != "2097152" {
		t.Errorf("maxMessageSize = %q", params["maxMessageSize"])
	}
}

func TestSpoolIDArg_Invalid(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "owner.key")
	if _, err := runApp(t, "--key", keyPath, "keygen"); err != nil {
		t.Fatalf("keygen error = %v", err)
	}

	if _, err := runApp(t, "--key", keyPath, "--socket", "/nowhere.sock",
		"read", "--sequence", "1", "not-a-spool-id!"); err == nil {
		t.Fatal("read with bad spool id succeeded")
	}
}
