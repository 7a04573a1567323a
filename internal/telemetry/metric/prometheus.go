// Package metric provides Prometheus metrics for spoolmesh.
package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spoolmesh"

// Registry holds all application metrics backed by a dedicated
// Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	// Spool metrics.
	SpoolsCreated prometheus.Counter
	SpoolsPurged  prometheus.Counter
	Appends       prometheus.Counter
	Reads         prometheus.Counter

	// Request metrics.
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInflight prometheus.Gauge
	RequestsDropped  prometheus.Counter

	// Error metrics, labeled by stable error code.
	Errors *prometheus.CounterVec
}

// NewRegistry creates and registers all application metrics. The
// standard Go and process collectors are included.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		reg: reg,
		SpoolsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spools_created_total",
			Help:      "Total number of spools created",
		}),
		SpoolsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spools_purged_total",
			Help:      "Total number of spools purged",
		}),
		Appends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_appended_total",
			Help:      "Total number of messages appended",
		}),
		Reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_read_total",
			Help:      "Total number of messages read",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled, by command and status",
		}, []string{"command", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request handling latency, by command",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"command"}),
		RequestsInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_inflight",
			Help:      "Requests currently being handled",
		}),
		RequestsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_dropped_total",
			Help:      "Requests rejected by rate or inflight limits",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors returned, by stable error code",
		}, []string{"code"}),
	}

	reg.MustRegister(
		r.SpoolsCreated,
		r.SpoolsPurged,
		r.Appends,
		r.Reads,
		r.RequestsTotal,
		r.RequestDuration,
		r.RequestsInflight,
		r.RequestsDropped,
		r.Errors,
	)
	return r
}

// Prometheus exposes the underlying registry for components that
// register their own metrics (such as the store).
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}

// ObserveRequest records one handled request.
func (r *Registry) ObserveRequest(command, status string, elapsed time.Duration) {
	r.RequestsTotal.WithLabelValues(command, status).Inc()
	r.RequestDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// Handler returns an HTTP handler exposing the registry in
// Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
