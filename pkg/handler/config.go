package handler

import (
	"time"

	"github.com/ezweb3/rpc-failover/pkg/chainlist"
)

// Config is the user-facing handler configuration. Zero values are replaced
// with defaults during normalization, so callers only set what they care
// about.
type Config struct {
	NetworkID chainlist.NetworkID

	// Tracking is the provider data-collection level the caller tolerates.
	Tracking chainlist.Tracking

	// InjectedRPCs are caller-supplied endpoints (localhost, anvil, private
	// nodes) that always sit in front of the directory set.
	InjectedRPCs []chainlist.Rpc

	// RetryCount is the number of full proxy passes over the ordered URL list.
	RetryCount int
	// RetryDelay is slept between failed proxy batches.
	RetryDelay time.Duration
	// ProbeTimeout bounds each latency/correctness probe.
	ProbeTimeout time.Duration
	// CallTimeout bounds each proxied endpoint attempt.
	CallTimeout time.Duration

	// AllowPlainHTTP admits http:// candidates in the FirstHealthy strategy.
	AllowPlainHTTP bool

	// StickyProvider pins the retrying proxy to the selected base URL instead
	// of rotating through the latency-ordered pool. The rotating behavior is
	// the default; sticky reproduces the simpler same-endpoint retry policy.
	StickyProvider bool

	// Socks5Addr, when set, routes all outbound calls through a SOCKS5 proxy.
	Socks5Addr string

	// PruneUnusedData drops every other network from the shared catalog at
	// construction time.
	PruneUnusedData bool
}

func (c Config) normalized() Config {
	if c.Tracking == "" {
		c.Tracking = chainlist.TrackingLimited
	}
	if c.RetryCount <= 0 {
		c.RetryCount = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 3 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	return c
}
