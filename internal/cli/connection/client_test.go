package connection

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/spoolmesh-go/api/spoolproto"
)

// startSocketServer serves the given handler on a unix socket and
// returns the socket path.
func startSocketServer(t *testing.T, handler http.Handler) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sock")
	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}

	srv := &http.Server{Handler: handler}
	go srv.Serve(listener)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return path
}

func TestClient_Do(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/request", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		var envelope spoolproto.PluginRequest
		if err := spoolproto.Unmarshal(body, &envelope); err != nil {
			t.Errorf("server: decode envelope: %v", err)
		}
		var req spoolproto.Request
		if err := spoolproto.Unmarshal(envelope.Payload, &req); err != nil {
			t.Errorf("server: decode request: %v", err)
		}
		if req.Command != spoolproto.CmdRetrieveMessage {
			t.Errorf("server: command = %v, want retrieve", req.Command)
		}

		payload, _ := spoolproto.Marshal(&spoolproto.Response{
			Status:   spoolproto.StatusOK,
			Sequence: req.Sequence,
			Payload:  []byte("stored message"),
		})
		out, _ := spoolproto.Marshal(&spoolproto.PluginResponse{Payload: payload})
		w.Write(out)
	})

	client := NewClient(startSocketServer(t, mux))
	resp, err := client.Do(context.Background(), &spoolproto.Request{
		Command:  spoolproto.CmdRetrieveMessage,
		SpoolID:  make([]byte, spoolproto.SpoolIDSize),
		Sequence: 7,
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !resp.Ok() {
		t.Errorf("response status = %q", resp.Status)
	}
	if resp.Sequence != 7 {
		t.Errorf("response sequence = %d, want 7", resp.Sequence)
	}
	if string(resp.Payload) != "stored message" {
		t.Errorf("response payload = %q", resp.Payload)
	}
}

func TestClient_Parameters(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/parameters", func(w http.ResponseWriter, r *http.Request) {
		out, _ := spoolproto.Marshal(spoolproto.Parameters{"maxMessageSize": "1024"})
		w.Write(out)
	})

	client := NewClient(startSocketServer(t, mux))
	params, err := client.Parameters(context.Background())
	if err != nil {
		t.Fatalf("Parameters() error = %v", err)
	}
	if params["maxMessageSize"] != "1024" {
		t.Errorf("maxMessageSize = %q, want 1024", params["maxMessageSize"])
	}
}

func TestClient_ServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/request", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	client := NewClient(startSocketServer(t, mux))
	_, err := client.Do(context.Background(), &spoolproto.Request{
		Command: spoolproto.CmdCreateSpool,
	})
	if err == nil {
		t.Fatal("Do() error = nil, want server status error")
	}
}

func TestClient_NoServer(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "absent.sock"))
	if _, err := client.Do(context.Background(), &spoolproto.Request{Command: spoolproto.CmdCreateSpool}); err == nil {
		t.Fatal("Do() error = nil, want dial failure")
	}
}
