package connection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/yndnr/spoolmesh-go/api/spoolproto"
)

// DefaultTimeout bounds a single command round trip.
const DefaultTimeout = 30 * time.Second

// maxResponseSize caps how much of a response body the client reads.
const maxResponseSize = 8 << 20

// ErrServerStatus is returned when the server answered with a non-OK
// HTTP status before a command response could be decoded.
var ErrServerStatus = errors.New("connection: unexpected server status")

// Client talks to a running spoolmesh-server over its unix socket.
type Client struct {
	socketPath string
	httpClient *http.Client
	nextID     uint64
}

// NewClient creates a client for the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// SocketPath returns the socket path this client dials.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Do sends one spool command and returns the decoded response. A
// non-OK response status is returned as-is; callers inspect
// Response.Status for the outcome.
func (c *Client) Do(ctx context.Context, req *spoolproto.Request) (*spoolproto.Response, error) {
	payload, err := spoolproto.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("connection: encode command: %w", err)
	}

	c.nextID++
	body, err := spoolproto.Marshal(&spoolproto.PluginRequest{
		ID:      c.nextID,
		Payload: payload,
		HasSURB: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connection: encode envelope: %w", err)
	}

	raw, err := c.post(ctx, "/request", body)
	if err != nil {
		return nil, err
	}

	var envelope spoolproto.PluginResponse
	if err := spoolproto.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("connection: decode envelope: %w", err)
	}
	var resp spoolproto.Response
	if err := spoolproto.Unmarshal(envelope.Payload, &resp); err != nil {
		return nil, fmt.Errorf("connection: decode response: %w", err)
	}
	return &resp, nil
}

// Parameters fetches the parameter map the server advertises to its
// host.
func (c *Client) Parameters(ctx context.Context) (spoolproto.Parameters, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/parameters", nil)
	if err != nil {
		return nil, fmt.Errorf("connection: create request: %w", err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("connection: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrServerStatus, httpResp.StatusCode)
	}

	var params spoolproto.Parameters
	if err := spoolproto.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("connection: decode parameters: %w", err)
	}
	return params, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://unix"+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("connection: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/cbor")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("connection: read response: %w", err)
	}
	// Busy responses still carry a decodable envelope.
	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %d", ErrServerStatus, httpResp.StatusCode)
	}
	return raw, nil
}
