// Package probe issues correctness+latency checks against candidate RPC
// endpoints. A probe is stricter than a ping: the endpoint must answer the
// latest block header AND serve the expected bytecode at a well-known
// deployed contract, which catches nodes silently serving the wrong chain.
package probe

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ezweb3/rpc-failover/pkg/chainlist"
	"github.com/ezweb3/rpc-failover/pkg/jsonrpc"
)

// Permit2Address is deployed at the same address on every major EVM chain,
// which makes its bytecode a convenient liveness+correctness oracle. It plays
// no business-logic role here.
const Permit2Address = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

// permit2Prefix is the expected leading bytes of the Permit2 runtime code.
const permit2Prefix = "0x604060808152600"

// defaultConcurrency bounds how many endpoints are probed at once.
const defaultConcurrency = 16

// LatencyMap maps endpoint URL to its probe duration. Only endpoints that
// were successful, bytecode-valid and block-synchronized appear.
type LatencyMap map[string]time.Duration

// CheckResult is the raw probe outcome for one URL.
type CheckResult struct {
	URL         string
	Success     bool
	Duration    time.Duration
	BlockNumber string
	BytecodeOK  bool
}

// Prober measures endpoints. Safe for concurrent use.
type Prober struct {
	client      *jsonrpc.Client
	logger      *zap.Logger
	concurrency int
}

func New(client *jsonrpc.Client, logger *zap.Logger) *Prober {
	return &Prober{client: client, logger: logger, concurrency: defaultConcurrency}
}

// SetConcurrency bounds the probe fan-out. Values below 1 are ignored.
func (p *Prober) SetConcurrency(n int) {
	if n >= 1 {
		p.concurrency = n
	}
}

// Measure probes all rpcs in parallel under the given per-call timeout.
// Endpoint failures are recorded, never propagated: an empty latency map is a
// meaningful "no usable endpoint" result. After all probes return, endpoints
// whose reported block number disagrees with the cross-endpoint majority are
// dropped from the map even if otherwise healthy.
func (p *Prober) Measure(ctx context.Context, rpcs []chainlist.Rpc, timeout time.Duration) (LatencyMap, []CheckResult) {
	results := make([]CheckResult, len(rpcs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, rpc := range rpcs {
		i, rpc := i, rpc
		g.Go(func() error {
			results[i] = p.checkOne(gctx, rpc.URL, timeout)
			return nil
		})
	}
	_ = g.Wait()

	majority := majorityBlock(results)

	latencies := make(LatencyMap)
	for _, res := range results {
		if !res.Success {
			continue
		}
		if res.BlockNumber != "" && majority != "" && res.BlockNumber != majority {
			p.logger.Debug("probe_out_of_sync",
				zap.String("url", res.URL),
				zap.String("block", res.BlockNumber),
				zap.String("majority", majority),
			)
			continue
		}
		latencies[res.URL] = res.Duration
	}
	return latencies, results
}

// checkOne runs the block and bytecode sub-calls concurrently and folds them
// into one result. The probe duration is the slower of the pair, since that
// is what gates usability.
func (p *Prober) checkOne(ctx context.Context, url string, timeout time.Duration) CheckResult {
	type subResult struct {
		ok       bool
		result   json.RawMessage
		duration time.Duration
	}

	call := func(req *jsonrpc.Request) subResult {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		start := time.Now()
		resp, err := p.client.Call(cctx, url, req)
		duration := time.Since(start)
		if err != nil || resp.Result == nil {
			return subResult{duration: duration}
		}
		return subResult{ok: true, result: resp.Result, duration: duration}
	}

	blockReq := jsonrpc.NewRequest("eth_getBlockByNumber", []interface{}{"latest", false}, 1)
	codeReq := jsonrpc.NewRequest("eth_getCode", []interface{}{Permit2Address, "latest"}, 1)

	blockCh := make(chan subResult, 1)
	go func() { blockCh <- call(blockReq) }()
	code := call(codeReq)
	block := <-blockCh

	res := CheckResult{URL: url}
	if block.ok {
		var header struct {
			Number string `json:"number"`
		}
		if json.Unmarshal(block.result, &header) == nil {
			res.BlockNumber = header.Number
		}
	}
	if code.ok {
		var bytecode string
		if json.Unmarshal(code.result, &bytecode) == nil {
			res.BytecodeOK = strings.HasPrefix(bytecode, permit2Prefix)
		}
	}

	res.Success = block.ok && code.ok && res.BytecodeOK
	if block.duration > code.duration {
		res.Duration = block.duration
	} else {
		res.Duration = code.duration
	}

	if !res.Success {
		p.logger.Debug("probe_failed",
			zap.String("url", url),
			zap.Bool("block_ok", block.ok),
			zap.Bool("code_ok", code.ok),
			zap.Bool("bytecode_ok", res.BytecodeOK),
		)
	}
	return res
}

// majorityBlock returns the mode of the block numbers reported by successful
// checks. Ties resolve to the number seen first in slice order, which keeps
// the outcome stable for a given result set.
func majorityBlock(results []CheckResult) string {
	counts := make(map[string]int)
	var order []string
	for _, res := range results {
		if !res.Success || res.BlockNumber == "" {
			continue
		}
		if counts[res.BlockNumber] == 0 {
			order = append(order, res.BlockNumber)
		}
		counts[res.BlockNumber]++
	}
	best := ""
	for _, num := range order {
		if best == "" || counts[num] > counts[best] {
			best = num
		}
	}
	return best
}
