// Package pluginserver provides the provider-side plugin endpoint.
//
// The server listens on a unix domain socket and speaks HTTP with
// CBOR bodies. The supervising provider process discovers the socket
// through a handshake line printed on stdout at startup, then POSTs
// plugin request envelopes to /request and fetches advertised service
// parameters from /parameters.
//
// The middleware chain assigns a ULID request ID, enforces rate and
// in-flight limits, records Prometheus metrics, and writes a
// structured access log entry per request.
package pluginserver
