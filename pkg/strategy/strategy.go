// Package strategy holds the provider selection policies that run on top of
// probe output.
package strategy

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/ezweb3/rpc-failover/pkg/chainlist"
	"github.com/ezweb3/rpc-failover/pkg/probe"
)

// Strategy names a selection policy.
type Strategy int

const (
	// Fastest probes every candidate and picks the lowest latency.
	Fastest Strategy = iota
	// FirstHealthy probes candidates one at a time and picks the first that
	// passes, trading latency optimality for minimal request volume.
	FirstHealthy
)

func (s Strategy) String() string {
	switch s {
	case FirstHealthy:
		return "first_healthy"
	default:
		return "fastest"
	}
}

// PickFastest returns the URL with the strictly minimal latency. Ties resolve
// to the lexicographically smallest URL so the choice is deterministic for a
// given map. ok is false for an empty map.
func PickFastest(latencies probe.LatencyMap) (string, bool) {
	var best string
	var bestLatency time.Duration
	for url, latency := range latencies {
		if best == "" || latency < bestLatency || (latency == bestLatency && url < best) {
			best = url
			bestLatency = latency
		}
	}
	return best, best != ""
}

// PickFirstHealthy filters candidates to https:// (plain http:// only when
// allowPlainHTTP is set, intended for local dev nodes), shuffles them to
// avoid hammering the same provider first across restarts, then probes each
// sequentially and returns the first whose single-endpoint probe passes.
func PickFirstHealthy(
	ctx context.Context,
	prober *probe.Prober,
	rpcs []chainlist.Rpc,
	timeout time.Duration,
	allowPlainHTTP bool,
) (string, bool) {
	filtered := make([]chainlist.Rpc, 0, len(rpcs))
	for _, rpc := range rpcs {
		if strings.HasPrefix(rpc.URL, "https://") ||
			(allowPlainHTTP && strings.HasPrefix(rpc.URL, "http://")) {
			filtered = append(filtered, rpc)
		}
	}
	if len(filtered) == 0 {
		return "", false
	}

	rand.Shuffle(len(filtered), func(i, j int) {
		filtered[i], filtered[j] = filtered[j], filtered[i]
	})

	for _, rpc := range filtered {
		if ctx.Err() != nil {
			return "", false
		}
		latencies, _ := prober.Measure(ctx, []chainlist.Rpc{rpc}, timeout)
		if len(latencies) > 0 {
			return rpc.URL, true
		}
	}
	return "", false
}
