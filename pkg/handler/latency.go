package handler

import (
	"sort"
	"sync"
	"time"

	"github.com/ezweb3/rpc-failover/pkg/probe"
)

// LatencyRecord is the last known probe outcome for one URL.
type LatencyRecord struct {
	LatencyMs    uint64 `json:"latency_ms"`
	LastTested   int64  `json:"last_tested"`
	FailureCount uint32 `json:"failure_count"`
}

// stalenessLimit is how many cache reads are served before a fastest-RPC
// lookup forces a re-probe.
const stalenessLimit = 3

// latencyTable is the mutable probe state shared across call paths. It is
// owned by the handler and passed to collaborators by reference, guarded by
// a single RWMutex; probe cycles replace the whole map, readers only copy.
type latencyTable struct {
	mu        sync.RWMutex
	records   map[string]LatencyRecord
	staleness int
}

func newLatencyTable() *latencyTable {
	return &latencyTable{records: make(map[string]LatencyRecord)}
}

// replace installs a fresh probe cycle and resets staleness. URLs absent from
// the new map are dropped: the table never holds an endpoint whose most
// recent probe failed.
func (t *latencyTable) replace(latencies probe.LatencyMap) {
	now := time.Now().Unix()
	fresh := make(map[string]LatencyRecord, len(latencies))
	t.mu.Lock()
	defer t.mu.Unlock()
	for url, d := range latencies {
		rec := LatencyRecord{LatencyMs: uint64(d.Milliseconds()), LastTested: now}
		if old, ok := t.records[url]; ok {
			rec.FailureCount = old.FailureCount
		}
		fresh[url] = rec
	}
	t.records = fresh
	t.staleness = 0
}

// snapshot returns a copy of the table.
func (t *latencyTable) snapshot() map[string]LatencyRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]LatencyRecord, len(t.records))
	for url, rec := range t.records {
		out[url] = rec
	}
	return out
}

// latencies converts the table back into a probe.LatencyMap.
func (t *latencyTable) latencies() probe.LatencyMap {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(probe.LatencyMap, len(t.records))
	for url, rec := range t.records {
		out[url] = time.Duration(rec.LatencyMs) * time.Millisecond
	}
	return out
}

// orderedURLs returns the known URLs sorted by ascending latency, URL as the
// tie-break.
func (t *latencyTable) orderedURLs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	urls := make([]string, 0, len(t.records))
	for url := range t.records {
		urls = append(urls, url)
	}
	sort.Slice(urls, func(i, j int) bool {
		a, b := t.records[urls[i]], t.records[urls[j]]
		if a.LatencyMs != b.LatencyMs {
			return a.LatencyMs < b.LatencyMs
		}
		return urls[i] < urls[j]
	})
	return urls
}

func (t *latencyTable) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// tickStale bumps the staleness counter and reports whether the table is due
// for a re-probe: too few entries, or enough reads since the last cycle.
func (t *latencyTable) tickStale() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.staleness++
	return len(t.records) <= 1 || t.staleness >= stalenessLimit
}
