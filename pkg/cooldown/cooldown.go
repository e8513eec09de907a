// Package cooldown keeps per-URL exponential backoff state for misbehaving
// providers. Entries are never deleted, so a provider's strike history
// survives the expiry of its exclusion window; the window simply stops
// mattering once it has passed.
package cooldown

import (
	"math"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/ezweb3/rpc-failover/pkg/metrics"
)

// MaxDelay caps a single exclusion window.
const MaxDelay = 5 * time.Minute

// Info is the backoff state for one URL.
type Info struct {
	Until   time.Time
	Strikes int
}

// Tracker records failures and answers availability checks. Safe for
// concurrent use; the read-modify-write in Apply is serialized so concurrent
// failures for the same URL cannot lose strikes.
type Tracker struct {
	mu      sync.Mutex
	entries *gocache.Cache
	logger  *zap.Logger
}

func New(logger *zap.Logger) *Tracker {
	return &Tracker{
		// Items carry NoExpiration: the until timestamp inside Info is the
		// source of truth, not the cache TTL.
		entries: gocache.New(gocache.NoExpiration, 0),
		logger:  logger,
	}
}

// Apply records one failure for url and extends its exclusion window.
// Delay = base * factor^(strikes-1), factor 2.0 when the failure was a
// rate limit and 1.5 otherwise, capped at MaxDelay. The window never moves
// backwards within a strike streak. Returns the delay that was applied.
func (t *Tracker) Apply(url string, base time.Duration, rateLimited bool) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	var prev Info
	if v, ok := t.entries.Get(url); ok {
		prev = v.(Info)
	}
	strikes := prev.Strikes + 1

	factor := 1.5
	if rateLimited {
		factor = 2.0
	}
	delay := time.Duration(float64(base) * math.Pow(factor, float64(strikes-1)))
	if delay > MaxDelay {
		delay = MaxDelay
	}

	until := time.Now().Add(delay)
	if prev.Until.After(until) {
		until = prev.Until
	}
	t.entries.Set(url, Info{Until: until, Strikes: strikes}, gocache.NoExpiration)

	metrics.CooldownStrikes.Inc()
	t.logger.Warn("provider_cooldown",
		zap.String("url", url),
		zap.Int("strikes", strikes),
		zap.Duration("delay", delay),
		zap.Bool("rate_limited", rateLimited),
	)
	return delay
}

// Available reports whether url may be attempted at the given instant.
func (t *Tracker) Available(url string, now time.Time) bool {
	v, ok := t.entries.Get(url)
	if !ok {
		return true
	}
	return !v.(Info).Until.After(now)
}

// Strikes returns the accumulated strike count for url.
func (t *Tracker) Strikes(url string) int {
	v, ok := t.entries.Get(url)
	if !ok {
		return 0
	}
	return v.(Info).Strikes
}
