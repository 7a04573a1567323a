// Package metric provides Prometheus metrics for spoolmesh.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: metric definitions, registry, HTTP handler
//
// Metrics include:
//
//   - Request counters and latency histograms per command
//   - Spool count gauges
//   - Error counters by code
//   - Store size statistics
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
