// Package connection provides the client side of the plugin protocol
// for spoolmesh-cli: CBOR command envelopes posted over HTTP on the
// server's unix domain socket.
package connection
