// Package proxy implements the retrying provider: a single-answer request
// path that races batches of candidate URLs and retries the whole list a
// bounded number of times.
package proxy

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ezweb3/rpc-failover/pkg/chainlist"
	"github.com/ezweb3/rpc-failover/pkg/jsonrpc"
	"github.com/ezweb3/rpc-failover/pkg/metrics"
	"github.com/ezweb3/rpc-failover/pkg/rpcerr"
)

// DefaultBatchSize is how many URLs race concurrently per attempt.
const DefaultBatchSize = 3

// Options configure a Provider.
type Options struct {
	// RetryCount is the number of full passes over the ordered URL list.
	RetryCount int
	// RetryDelay is slept between failed batches.
	RetryDelay time.Duration
	// CallTimeout bounds each individual endpoint attempt.
	CallTimeout time.Duration
	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int
	// OrderedURLs supplies the candidate list, pre-sorted by ascending known
	// latency. The provider forces its base URL to the front if absent.
	OrderedURLs func() []string
	// Refresh, when set, runs detached after every success so the caller can
	// re-probe and reorder its URL list. Its failures are observed nowhere.
	Refresh func() error
}

// Provider wraps one designated base URL plus the ordered candidate pool.
type Provider struct {
	BaseURL   string
	NetworkID chainlist.NetworkID

	client *jsonrpc.Client
	logger *zap.Logger
	opts   Options
}

func NewProvider(
	baseURL string,
	networkID chainlist.NetworkID,
	client *jsonrpc.Client,
	logger *zap.Logger,
	opts Options,
) *Provider {
	if opts.RetryCount < 1 {
		opts.RetryCount = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Provider{
		BaseURL:   baseURL,
		NetworkID: networkID,
		client:    client,
		logger:    logger,
		opts:      opts,
	}
}

// Send proxies one request. URLs are partitioned into fixed-size batches
// preserving input order; the URLs inside a batch race concurrently and the
// first parsed HTTP success wins. Batches and passes are strictly sequential.
func (p *Provider) Send(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var urls []string
	if p.opts.OrderedURLs != nil {
		urls = p.opts.OrderedURLs()
	}
	if !contains(urls, p.BaseURL) {
		urls = append([]string{p.BaseURL}, urls...)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: network %d", rpcerr.ErrNoAvailableRpcs, p.NetworkID)
	}

	network := fmt.Sprintf("%d", p.NetworkID)
	batchSize := p.opts.BatchSize
	lastBatchStart := ((len(urls) - 1) / batchSize) * batchSize

	for pass := 0; pass < p.opts.RetryCount; pass++ {
		for start := 0; start < len(urls); start += batchSize {
			end := start + batchSize
			if end > len(urls) {
				end = len(urls)
			}
			resp, err := p.raceBatch(ctx, urls[start:end], req)
			if err == nil {
				p.triggerRefresh()
				metrics.ProxySuccess.WithLabelValues(network).Inc()
				return resp, nil
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", rpcerr.ErrTimeout, ctx.Err())
			}

			terminal := pass == p.opts.RetryCount-1 && start == lastBatchStart
			if terminal {
				p.logger.Error("proxy_all_endpoints_failed",
					zap.String("network", network),
					zap.Int("passes", p.opts.RetryCount),
					zap.Int("urls", len(urls)),
				)
				metrics.ProxyFail.WithLabelValues(network).Inc()
				return nil, rpcerr.ErrAllEndpointsFailed
			}

			p.logger.Debug("proxy_batch_failed",
				zap.String("network", network),
				zap.Duration("backoff", p.opts.RetryDelay),
			)
			if err := sleepCtx(ctx, p.opts.RetryDelay); err != nil {
				return nil, fmt.Errorf("%w: %v", rpcerr.ErrTimeout, err)
			}
		}
	}
	return nil, rpcerr.ErrAllEndpointsFailed
}

type raceResult struct {
	url  string
	resp *jsonrpc.Response
	err  error
}

// raceBatch dispatches the request to every URL in the batch and returns the
// first success. Losing attempts are abandoned, not awaited: cancelling the
// batch context tears down their in-flight HTTP exchanges, and the result
// channel is buffered so they never block on delivery.
func (p *Provider) raceBatch(ctx context.Context, batch []string, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	bctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan raceResult, len(batch))
	for _, url := range batch {
		url := url
		go func() {
			cctx := bctx
			if p.opts.CallTimeout > 0 {
				var ccancel context.CancelFunc
				cctx, ccancel = context.WithTimeout(bctx, p.opts.CallTimeout)
				defer ccancel()
			}
			resp, err := p.client.Call(cctx, url, req)
			results <- raceResult{url: url, resp: resp, err: err}
		}()
	}

	var lastErr error
	for range batch {
		select {
		case res := <-results:
			if res.err == nil {
				p.logger.Debug("proxy_attempt_ok", zap.String("url", res.url))
				return res.resp, nil
			}
			p.logger.Debug("proxy_attempt_failed", zap.String("url", res.url), zap.Error(res.err))
			lastErr = res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if lastErr == nil {
		lastErr = rpcerr.ErrAllEndpointsFailed
	}
	return nil, lastErr
}

func (p *Provider) triggerRefresh() {
	refresh := p.opts.Refresh
	if refresh == nil {
		return
	}
	go func() {
		// Best effort. The response already went back to the caller.
		_ = refresh()
	}()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func contains(urls []string, url string) bool {
	for _, u := range urls {
		if u == url {
			return true
		}
	}
	return false
}
