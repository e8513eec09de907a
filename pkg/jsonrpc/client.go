package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/ezweb3/rpc-failover/pkg/rpcerr"
)

// maxBodySize caps how much of an upstream response is read.
const maxBodySize = 4 << 20

// StatusError reports a non-success HTTP answer from an endpoint.
type StatusError struct {
	URL         string
	Code        int
	RateLimited bool
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rpc %s returned http status %d", e.URL, e.Code)
}

func (e *StatusError) Unwrap() error { return rpcerr.ErrJSONRPC }

// ClientOptions configure the shared HTTP client.
type ClientOptions struct {
	Timeout time.Duration
	// Socks5Addr, when set, routes all requests through a SOCKS5 proxy
	// (local dev nodes behind a bastion, Tor, etc).
	Socks5Addr string
}

// Client posts JSON-RPC requests over HTTP. It is safe for concurrent use.
type Client struct {
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a client with pooled-connection transport settings.
func NewClient(opts ClientOptions, logger *zap.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     60 * time.Second,
		TLSHandshakeTimeout: 8 * time.Second,
	}
	if opts.Socks5Addr != "" {
		if dialer, err := proxy.SOCKS5("tcp", opts.Socks5Addr, nil, proxy.Direct); err == nil {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		} else {
			logger.Warn("socks5_dialer_error", zap.Error(err))
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:   &http.Client{Transport: transport, Timeout: timeout},
		logger: logger,
	}
}

// Call posts req to url and decodes the JSON-RPC envelope. The context bounds
// the whole exchange; a deadline converts a hang into rpcerr.ErrTimeout.
// A response carrying a JSON-RPC error member is still returned to the
// caller, only transport-level failures produce an error.
func (c *Client) Call(ctx context.Context, url string, req *Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", rpcerr.ErrSerialization, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: post to %s: %v", rpcerr.ErrTimeout, url, err)
		}
		return nil, fmt.Errorf("post to %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			URL:         url,
			Code:        resp.StatusCode,
			RateLimited: isRateLimited(resp, body),
		}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: rpc %s returned invalid json: %v", rpcerr.ErrJSONRPC, url, err)
	}
	return &out, nil
}
