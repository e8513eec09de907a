// Package handler composes the catalog, probe service, selection strategy,
// retrying proxy and consensus engine into one per-network entry point.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ezweb3/rpc-failover/pkg/chainlist"
	"github.com/ezweb3/rpc-failover/pkg/consensus"
	"github.com/ezweb3/rpc-failover/pkg/cooldown"
	"github.com/ezweb3/rpc-failover/pkg/jsonrpc"
	"github.com/ezweb3/rpc-failover/pkg/metrics"
	"github.com/ezweb3/rpc-failover/pkg/probe"
	"github.com/ezweb3/rpc-failover/pkg/proxy"
	"github.com/ezweb3/rpc-failover/pkg/rpcerr"
	"github.com/ezweb3/rpc-failover/pkg/strategy"
)

// Handler serves one network. Construct with New, then Init before use.
type Handler struct {
	cfg       Config
	networkID chainlist.NetworkID
	rpcs      []chainlist.Rpc
	strategy  strategy.Strategy

	catalog   *chainlist.Catalog
	client    *jsonrpc.Client
	prober    *probe.Prober
	cooldowns *cooldown.Tracker
	engine    *consensus.Engine
	logger    *zap.Logger

	latencies *latencyTable

	mu       sync.RWMutex
	provider *proxy.Provider
}

// New resolves the RPC set for the configured network and wires the
// components. The only fatal construction error is an empty candidate pool.
func New(cfg Config, strat strategy.Strategy, catalog *chainlist.Catalog, logger *zap.Logger) (*Handler, error) {
	cfg = cfg.normalized()

	if cfg.PruneUnusedData {
		catalog.Prune([]chainlist.NetworkID{cfg.NetworkID})
	}

	rpcs := catalog.SelectBaseRPCSet(cfg.NetworkID, cfg.Tracking, cfg.InjectedRPCs)
	if len(rpcs) == 0 {
		return nil, fmt.Errorf("%w: network %d", rpcerr.ErrNoAvailableRpcs, cfg.NetworkID)
	}

	logger = logger.With(zap.Uint64("network_id", uint64(cfg.NetworkID)))
	client := jsonrpc.NewClient(jsonrpc.ClientOptions{
		Timeout:    cfg.CallTimeout,
		Socks5Addr: cfg.Socks5Addr,
	}, logger)
	cooldowns := cooldown.New(logger)

	h := &Handler{
		cfg:       cfg,
		networkID: cfg.NetworkID,
		rpcs:      rpcs,
		strategy:  strat,
		catalog:   catalog,
		client:    client,
		prober:    probe.New(client, logger),
		cooldowns: cooldowns,
		engine:    consensus.New(cfg.NetworkID, rpcs, client, cooldowns, logger),
		logger:    logger,
		latencies: newLatencyTable(),
	}
	return h, nil
}

// NetworkID returns the configured network.
func (h *Handler) NetworkID() chainlist.NetworkID { return h.networkID }

// RPCs returns the resolved candidate set.
func (h *Handler) RPCs() []chainlist.Rpc {
	out := make([]chainlist.Rpc, len(h.rpcs))
	copy(out, h.rpcs)
	return out
}

// ChainInfo returns the catalog summary for this network.
func (h *Handler) ChainInfo() (chainlist.ChainInfo, bool) {
	return h.catalog.ChainInfo(h.networkID)
}

// Init runs the configured strategy and installs the initial provider.
func (h *Handler) Init(ctx context.Context) error {
	url, err := h.selectProvider(ctx)
	if err != nil {
		return err
	}
	h.setProvider(url)
	h.logger.Info("provider_initialized",
		zap.String("strategy", h.strategy.String()),
		zap.String("url", url),
	)
	return nil
}

// Refresh re-runs the strategy. Unlike Init it is best effort: when no
// provider passes, the previous one stays installed and only a warning is
// logged.
func (h *Handler) Refresh(ctx context.Context) error {
	url, err := h.selectProvider(ctx)
	if err != nil {
		h.logger.Warn("provider_refresh_no_candidate", zap.Error(err))
		return nil
	}
	h.setProvider(url)
	h.logger.Info("provider_refreshed",
		zap.String("strategy", h.strategy.String()),
		zap.String("url", url),
	)
	return nil
}

// maybeRefresh is the throttled variant behind the proxy's post-success hook.
// A burst of successful requests must not turn into a probe storm: the
// strategy only re-runs once the latency table has gone stale, the same
// condition FastestRPC uses.
func (h *Handler) maybeRefresh(ctx context.Context) error {
	if !h.latencies.tickStale() {
		return nil
	}
	return h.Refresh(ctx)
}

func (h *Handler) selectProvider(ctx context.Context) (string, error) {
	switch h.strategy {
	case strategy.FirstHealthy:
		url, ok := strategy.PickFirstHealthy(ctx, h.prober, h.rpcs, h.cfg.ProbeTimeout, h.cfg.AllowPlainHTTP)
		if !ok {
			return "", fmt.Errorf("%w: network %d", rpcerr.ErrNoAvailableRpcs, h.networkID)
		}
		return url, nil
	default:
		latencies := h.measure(ctx)
		url, ok := strategy.PickFastest(latencies)
		if !ok {
			return "", fmt.Errorf("%w: network %d", rpcerr.ErrNoAvailableRpcs, h.networkID)
		}
		return url, nil
	}
}

// measure runs one probe cycle and installs its outcome in the latency table.
func (h *Handler) measure(ctx context.Context) probe.LatencyMap {
	latencies, results := h.prober.Measure(ctx, h.rpcs, h.cfg.ProbeTimeout)
	h.latencies.replace(latencies)

	network := fmt.Sprintf("%d", h.networkID)
	metrics.ProbeTotal.WithLabelValues(network).Set(float64(len(results)))
	metrics.ProbeHealthy.WithLabelValues(network).Set(float64(len(latencies)))
	return latencies
}

func (h *Handler) setProvider(url string) {
	orderedURLs := h.latencies.orderedURLs
	if h.cfg.StickyProvider {
		orderedURLs = func() []string { return []string{url} }
	}
	p := proxy.NewProvider(url, h.networkID, h.client, h.logger, proxy.Options{
		RetryCount:  h.cfg.RetryCount,
		RetryDelay:  h.cfg.RetryDelay,
		CallTimeout: h.cfg.CallTimeout,
		OrderedURLs: orderedURLs,
		Refresh: func() error {
			return h.maybeRefresh(context.Background())
		},
	})

	h.mu.Lock()
	h.provider = p
	h.mu.Unlock()
}

func (h *Handler) getProvider() *proxy.Provider {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.provider
}

// ProviderURL returns the currently selected base URL.
func (h *Handler) ProviderURL() (string, error) {
	p := h.getProvider()
	if p == nil {
		return "", fmt.Errorf("%w: network %d", rpcerr.ErrNoAvailableRpcs, h.networkID)
	}
	return p.BaseURL, nil
}

// ProxyRequest sends one request through the retrying proxy.
func (h *Handler) ProxyRequest(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	p := h.getProvider()
	if p == nil {
		return nil, fmt.Errorf("%w: network %d", rpcerr.ErrNoAvailableRpcs, h.networkID)
	}
	return p.Send(ctx, req)
}

// Consensus fans the request out to the candidate pool and returns the value
// a quorum of providers agreed on.
func (h *Handler) Consensus(ctx context.Context, req *jsonrpc.Request, threshold float64, opts consensus.Options) (json.RawMessage, error) {
	return h.engine.Consensus(ctx, req, threshold, opts)
}

// BFTConsensus is Consensus with threshold relaxation over the collected
// tally.
func (h *Handler) BFTConsensus(ctx context.Context, req *jsonrpc.Request, threshold, minThreshold float64, opts consensus.Options) (json.RawMessage, error) {
	return h.engine.BFTConsensus(ctx, req, threshold, minThreshold, opts)
}

// FastestRPC returns the currently fastest known endpoint. The probe cycle is
// throttled: it only re-runs when forced, when the table holds at most one
// entry, or after a few served reads (staleness).
func (h *Handler) FastestRPC(ctx context.Context, force bool) (string, error) {
	if force || h.latencies.tickStale() {
		h.measure(ctx)
	}
	url, ok := strategy.PickFastest(h.latencies.latencies())
	if !ok {
		return "", fmt.Errorf("%w: network %d", rpcerr.ErrNoAvailableRpcs, h.networkID)
	}
	return url, nil
}

// Latencies returns a snapshot of the latency table.
func (h *Handler) Latencies() map[string]LatencyRecord {
	return h.latencies.snapshot()
}

// Cooldowns exposes the shared cooldown tracker.
func (h *Handler) Cooldowns() *cooldown.Tracker { return h.cooldowns }

// ProbeTimeout reports the normalized probe timeout, mostly for callers that
// drive their own measurement cycles.
func (h *Handler) ProbeTimeout() time.Duration { return h.cfg.ProbeTimeout }
