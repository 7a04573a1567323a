// Package benchmark contains cross-package benchmarks for the spool
// service: storage throughput, end-to-end command latency, and
// snapshot archive cost at realistic spool counts.
//
// Run with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/
package benchmark
