package pluginserver

import (
	"crypto/rand"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/spoolmesh-go/api/spoolproto"
	"github.com/yndnr/spoolmesh-go/internal/core/domain"
	"github.com/yndnr/spoolmesh-go/internal/server/config"
	"github.com/yndnr/spoolmesh-go/internal/telemetry/logger"
	"github.com/yndnr/spoolmesh-go/internal/telemetry/metric"
)

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together. The first middleware in
// the list is the outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID assigns each request a ULID and stores it in the context
// for log correlation.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
			ctx := logger.WithRequestID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLog writes one structured log entry per request.
func AccessLog(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			ctx := logger.WithLogger(r.Context(), log)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			logger.L(ctx).Debug("request handled",
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// Limit enforces the configured rate limit and in-flight cap. Excess
// requests fail fast with a busy envelope rather than queueing behind
// the mix traffic they would delay.
func Limit(cfg config.ServerSection, metrics *metric.Registry) Middleware {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	inflight := make(chan struct{}, cfg.MaxInflight)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow() {
				metrics.RequestsDropped.Inc()
				writeBusy(w)
				return
			}

			select {
			case inflight <- struct{}{}:
			default:
				metrics.RequestsDropped.Inc()
				writeBusy(w)
				return
			}
			defer func() { <-inflight }()

			metrics.RequestsInflight.Inc()
			defer metrics.RequestsInflight.Dec()

			next.ServeHTTP(w, r)
		})
	}
}

// writeBusy emits a well-formed busy envelope so the provider can
// relay the status instead of seeing a dead socket.
func writeBusy(w http.ResponseWriter) {
	resp, err := spoolproto.Marshal(&spoolproto.Response{
		Status: domain.GetErrorCode(domain.ErrBusy),
	})
	if err != nil {
		http.Error(w, "busy", http.StatusTooManyRequests)
		return
	}
	out, err := spoolproto.Marshal(&spoolproto.PluginResponse{Payload: resp})
	if err != nil {
		http.Error(w, "busy", http.StatusTooManyRequests)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write(out)
}

// statusWriter captures the response status code for access logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
