package pluginserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/yndnr/spoolmesh-go/internal/server/config"
	"github.com/yndnr/spoolmesh-go/internal/telemetry/logger"
	"github.com/yndnr/spoolmesh-go/internal/telemetry/metric"
)

// Plugin protocol versions carried in the handshake line. They must
// match what the supervising provider expects.
const (
	coreProtocolVersion = 1
	pluginVersion       = 1
)

// Server is the plugin endpoint: HTTP with CBOR bodies over a unix
// domain socket.
type Server struct {
	cfg     config.ServerSection
	handler *Handler
	logger  logger.Logger
	metrics *metric.Registry

	httpSrv  *http.Server
	listener net.Listener
}

// New creates a plugin server around the given command handler.
func New(cfg config.ServerSection, handler *Handler, log logger.Logger, metrics *metric.Registry) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  log,
		metrics: metrics,
	}
}

// SocketPath returns the unix socket path the server binds.
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}

// HandshakeLine returns the line the provider reads from stdout to
// discover the plugin endpoint.
func (s *Server) HandshakeLine() string {
	return fmt.Sprintf("%d|%d|unix|%s|http", coreProtocolVersion, pluginVersion, s.cfg.SocketPath)
}

// ListenAndServe binds the unix socket and serves until Shutdown.
// A stale socket file from a previous crash is removed first.
func (s *Server) ListenAndServe() error {
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pluginserver: remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("pluginserver: listen: %w", err)
	}
	// Only the provider process may talk to the plugin.
	if err := os.Chmod(s.cfg.SocketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("pluginserver: chmod socket: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/request", http.HandlerFunc(s.handler.ServeRequest))
	mux.Handle("/parameters", http.HandlerFunc(s.handler.ServeParameters))

	chain := Chain(mux,
		RequestID(),
		AccessLog(s.logger),
		Limit(s.cfg, s.metrics),
	)

	s.httpSrv = &http.Server{
		Handler:           chain,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("plugin server listening", "socket", s.cfg.SocketPath)
	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the socket. The
// socket file is removed so the next start binds cleanly.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}

	drainCtx := ctx
	if s.cfg.DrainTimeout > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(ctx, s.cfg.DrainTimeout)
		defer cancel()
	}

	err := s.httpSrv.Shutdown(drainCtx)
	if removeErr := os.Remove(s.cfg.SocketPath); removeErr != nil && !os.IsNotExist(removeErr) && err == nil {
		err = removeErr
	}
	s.logger.Info("plugin server stopped", "socket", s.cfg.SocketPath)
	return err
}
