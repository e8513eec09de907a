package jsonrpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ezweb3/rpc-failover/pkg/rpcerr"
)

func newTestClient(timeout time.Duration) *Client {
	logger, _ := zap.NewDevelopment()
	return NewClient(ClientOptions{Timeout: timeout}, logger)
}

func TestCall_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x10"}`))
	}))
	defer srv.Close()

	c := newTestClient(2 * time.Second)
	resp, err := c.Call(context.Background(), srv.URL, NewRequest("eth_blockNumber", []interface{}{}, 1))
	require.NoError(t, err)
	require.Equal(t, `"0x10"`, string(resp.Result))
	require.Nil(t, resp.Error)
}

func TestCall_EnvelopeErrorIsNotAGoError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`))
	}))
	defer srv.Close()

	c := newTestClient(2 * time.Second)
	resp, err := c.Call(context.Background(), srv.URL, NewRequest("eth_bogus", nil, 1))
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	require.Equal(t, int64(-32601), resp.Error.Code)
}

func TestCall_HTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(2 * time.Second)
	_, err := c.Call(context.Background(), srv.URL, NewRequest("eth_blockNumber", nil, 1))
	require.Error(t, err)
	require.ErrorIs(t, err, rpcerr.ErrJSONRPC)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusBadGateway, se.Code)
	require.False(t, se.RateLimited)
	require.False(t, RateLimited(err))
}

func TestCall_RateLimited429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(2 * time.Second)
	_, err := c.Call(context.Background(), srv.URL, NewRequest("eth_blockNumber", nil, 1))
	require.Error(t, err)
	require.True(t, RateLimited(err))
}

func TestCall_RateLimitedByBodyMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":-32005,"message":"rate limit exceeded"}}`))
	}))
	defer srv.Close()

	c := newTestClient(2 * time.Second)
	_, err := c.Call(context.Background(), srv.URL, NewRequest("eth_blockNumber", nil, 1))
	require.Error(t, err)
	require.True(t, RateLimited(err))
}

func TestCall_RateLimitedByHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(2 * time.Second)
	_, err := c.Call(context.Background(), srv.URL, NewRequest("eth_blockNumber", nil, 1))
	require.Error(t, err)
	require.True(t, RateLimited(err))
}

func TestCall_DeadlineBecomesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	}))
	defer srv.Close()

	c := newTestClient(5 * time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Call(ctx, srv.URL, NewRequest("eth_blockNumber", nil, 1))
	require.Error(t, err)
	require.ErrorIs(t, err, rpcerr.ErrTimeout)
}

func TestCall_InvalidJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	c := newTestClient(2 * time.Second)
	_, err := c.Call(context.Background(), srv.URL, NewRequest("eth_blockNumber", nil, 1))
	require.Error(t, err)
	require.ErrorIs(t, err, rpcerr.ErrJSONRPC)
}
