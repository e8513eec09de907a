// Package consensus fans one request out to many providers and accepts the
// answer only when enough of them agree. Two modes exist: plain quorum with
// early abort, and a BFT-style mode that relaxes the required quorum over the
// already-collected tally instead of re-querying the network.
package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ezweb3/rpc-failover/pkg/chainlist"
	"github.com/ezweb3/rpc-failover/pkg/cooldown"
	"github.com/ezweb3/rpc-failover/pkg/jsonrpc"
	"github.com/ezweb3/rpc-failover/pkg/metrics"
	"github.com/ezweb3/rpc-failover/pkg/rpcerr"
)

// relaxStep is the threshold decrement used during BFT relaxation.
const relaxStep = 0.05

// Options tune one consensus round.
type Options struct {
	// Timeout bounds each provider attempt.
	Timeout time.Duration
	// Concurrency bounds how many attempts run at once.
	Concurrency int
	// Cooldown is the base exclusion delay applied to failing providers.
	Cooldown time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 8 * time.Second
	}
	if o.Concurrency < 1 {
		o.Concurrency = 4
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 30 * time.Second
	}
	return o
}

// Engine runs consensus rounds over a handler's RPC set.
type Engine struct {
	networkID chainlist.NetworkID
	rpcs      []chainlist.Rpc
	client    *jsonrpc.Client
	cooldowns *cooldown.Tracker
	logger    *zap.Logger
}

func New(
	networkID chainlist.NetworkID,
	rpcs []chainlist.Rpc,
	client *jsonrpc.Client,
	cooldowns *cooldown.Tracker,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		networkID: networkID,
		rpcs:      rpcs,
		client:    client,
		cooldowns: cooldowns,
		logger:    logger,
	}
}

// Cooldowns exposes the tracker shared with the engine.
func (e *Engine) Cooldowns() *cooldown.Tracker { return e.cooldowns }

// attemptResult is the tally of one dispatch round.
type attemptResult struct {
	success    bool
	value      json.RawMessage
	total      int
	counts     map[string]int
	keyToValue map[string]json.RawMessage
	mostCommon string
}

// Consensus requires a quorum of identical (canonically compared) responses.
// The raw agreed value is returned; use the generic As helper to decode it.
func (e *Engine) Consensus(ctx context.Context, req *jsonrpc.Request, threshold float64, opts Options) (json.RawMessage, error) {
	network := fmt.Sprintf("%d", e.networkID)
	metrics.ConsensusRounds.WithLabelValues(network, "plain").Inc()

	attempt, err := e.attempt(ctx, req, threshold, opts.withDefaults(), true)
	if err != nil {
		metrics.ConsensusFailed.WithLabelValues(network, "plain").Inc()
		return nil, err
	}
	if attempt.success {
		metrics.ConsensusAgreed.WithLabelValues(network, "plain").Inc()
		return attempt.value, nil
	}

	metrics.ConsensusFailed.WithLabelValues(network, "plain").Inc()
	mostCommon := attempt.mostCommon
	if mostCommon == "" {
		mostCommon = "no successful rpc responses"
	}
	return nil, &rpcerr.ConsensusError{MostCommon: mostCommon}
}

// BFTConsensus runs one full-collection attempt (no early abort), then
// relaxes the threshold in 0.05 steps down to minThreshold, re-evaluating the
// recorded tally against each lower bar. No new network requests are issued
// during relaxation.
func (e *Engine) BFTConsensus(ctx context.Context, req *jsonrpc.Request, threshold, minThreshold float64, opts Options) (json.RawMessage, error) {
	network := fmt.Sprintf("%d", e.networkID)
	metrics.ConsensusRounds.WithLabelValues(network, "bft").Inc()

	attempt, err := e.attempt(ctx, req, threshold, opts.withDefaults(), false)
	if err != nil {
		metrics.ConsensusFailed.WithLabelValues(network, "bft").Inc()
		return nil, err
	}
	if attempt.success {
		metrics.ConsensusAgreed.WithLabelValues(network, "bft").Inc()
		return attempt.value, nil
	}
	if attempt.total == 0 {
		metrics.ConsensusFailed.WithLabelValues(network, "bft").Inc()
		return nil, &rpcerr.ConsensusError{BFT: true, MostCommon: "no successful rpc responses"}
	}

	// Small epsilon keeps repeated float subtraction from skipping the final
	// step (0.8 - 6*0.05 lands a hair under 0.5 in binary).
	const eps = 1e-9
	for curr := threshold - relaxStep; curr >= minThreshold-eps; curr -= relaxStep {
		needed := int(math.Ceil(float64(attempt.total) * curr))
		if needed == 0 {
			break
		}
		if attempt.counts[attempt.mostCommon] >= needed {
			e.logger.Info("consensus_relaxed_quorum",
				zap.Uint64("network_id", uint64(e.networkID)),
				zap.Float64("threshold", curr),
				zap.Int("votes", attempt.counts[attempt.mostCommon]),
				zap.Int("total", attempt.total),
			)
			metrics.ConsensusAgreed.WithLabelValues(network, "bft").Inc()
			return attempt.keyToValue[attempt.mostCommon], nil
		}
	}

	metrics.ConsensusFailed.WithLabelValues(network, "bft").Inc()
	return nil, &rpcerr.ConsensusError{BFT: true, MostCommon: "could not reach consensus down to minimum threshold"}
}

// As decodes the raw agreed value from Consensus or BFTConsensus into T.
func As[T any](raw json.RawMessage, err error) (T, error) {
	var out T
	if err != nil {
		return out, err
	}
	if uerr := json.Unmarshal(raw, &out); uerr != nil {
		return out, fmt.Errorf("%w: %v", rpcerr.ErrSerialization, uerr)
	}
	return out, nil
}

type voteResult struct {
	url         string
	value       json.RawMessage
	err         error
	rateLimited bool
}

// attempt dispatches one request to the candidate set in concurrency-bounded
// waves and tallies the normalized responses.
func (e *Engine) attempt(ctx context.Context, req *jsonrpc.Request, threshold float64, opts Options, earlyAbort bool) (*attemptResult, error) {
	now := time.Now()
	var urls []string
	for _, rpc := range e.rpcs {
		if strings.HasPrefix(rpc.URL, "wss://") || strings.HasPrefix(rpc.URL, "ws://") {
			continue
		}
		if !e.cooldowns.Available(rpc.URL, now) {
			continue
		}
		urls = append(urls, rpc.URL)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: network %d", rpcerr.ErrNoAvailableRpcs, e.networkID)
	}
	if len(urls) == 1 {
		return nil, &rpcerr.ConsensusError{MostCommon: "only one rpc available, could not reach consensus"}
	}

	rand.Shuffle(len(urls), func(i, j int) { urls[i], urls[j] = urls[j], urls[i] })

	roundID := uuid.NewString()
	e.logger.Debug("consensus_round_start",
		zap.String("round_id", roundID),
		zap.Uint64("network_id", uint64(e.networkID)),
		zap.Int("candidates", len(urls)),
		zap.Float64("threshold", threshold),
		zap.Bool("early_abort", earlyAbort),
	)

	tally := &attemptResult{
		counts:     make(map[string]int),
		keyToValue: make(map[string]json.RawMessage),
	}
	// firstSeen preserves observation order for the deterministic tie-break
	// among equally-voted keys.
	firstSeen := make(map[string]int)
	aborted := false

	for start := 0; start < len(urls) && !aborted; start += opts.Concurrency {
		end := start + opts.Concurrency
		if end > len(urls) {
			end = len(urls)
		}
		wave := urls[start:end]

		results := make([]voteResult, len(wave))
		done := make(chan int, len(wave))
		for i, url := range wave {
			i, url := i, url
			go func() {
				results[i] = e.vote(ctx, url, req, opts.Timeout)
				done <- i
			}()
		}
		for range wave {
			<-done
		}

		// Fold in wave-slice order so the outcome is a pure function of the
		// (url, outcome) set, not of completion timing.
		for _, res := range results {
			if res.err != nil {
				e.cooldowns.Apply(res.url, opts.Cooldown, res.rateLimited)
				e.logger.Debug("consensus_vote_failed",
					zap.String("round_id", roundID),
					zap.String("url", res.url),
					zap.Error(res.err),
				)
				continue
			}

			key := jsonrpc.StableKey(res.value)
			if _, seen := firstSeen[key]; !seen {
				firstSeen[key] = len(firstSeen)
				tally.keyToValue[key] = res.value
			}
			tally.counts[key]++
			tally.total++

			// Early abort stops dispatching further waves; votes already
			// collected in this wave still count.
			if earlyAbort {
				dynamicQuorum := int(math.Ceil(float64(tally.total) * threshold))
				if tally.counts[key] >= dynamicQuorum {
					aborted = true
				}
			}
		}
	}

	if tally.total == 0 {
		return tally, nil
	}

	for key, count := range tally.counts {
		leading := tally.mostCommon
		if leading == "" ||
			count > tally.counts[leading] ||
			(count == tally.counts[leading] && firstSeen[key] < firstSeen[leading]) {
			tally.mostCommon = key
		}
	}

	finalQuorum := int(math.Ceil(float64(tally.total) * threshold))
	if tally.counts[tally.mostCommon] >= finalQuorum {
		tally.success = true
		tally.value = tally.keyToValue[tally.mostCommon]
		e.logger.Debug("consensus_reached",
			zap.String("round_id", roundID),
			zap.Int("votes", tally.counts[tally.mostCommon]),
			zap.Int("total", tally.total),
		)
	}
	return tally, nil
}

// vote issues one provider attempt. Any failure shape (transport error,
// timeout, HTTP error, missing result) is a vote that simply does not count.
func (e *Engine) vote(ctx context.Context, url string, req *jsonrpc.Request, timeout time.Duration) voteResult {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.client.Call(cctx, url, req)
	if err != nil {
		return voteResult{url: url, err: err, rateLimited: jsonrpc.RateLimited(err)}
	}
	if resp.Result == nil {
		return voteResult{url: url, err: fmt.Errorf("%w: no result in response from %s", rpcerr.ErrJSONRPC, url)}
	}
	return voteResult{url: url, value: resp.Result}
}
