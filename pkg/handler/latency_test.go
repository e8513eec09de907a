package handler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ezweb3/rpc-failover/pkg/probe"
)

func TestLatencyRecord_JSONShape(t *testing.T) {
	rec := LatencyRecord{LatencyMs: 42, LastTested: 1700000000, FailureCount: 3}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.JSONEq(t, `{"latency_ms":42,"last_tested":1700000000,"failure_count":3}`, string(data))

	var back LatencyRecord
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, rec, back)
}

func TestLatencyTable_ReplaceDropsMissing(t *testing.T) {
	table := newLatencyTable()
	table.replace(probe.LatencyMap{
		"https://a.example.com": 10 * time.Millisecond,
		"https://b.example.com": 20 * time.Millisecond,
	})
	require.Equal(t, 2, table.size())

	table.replace(probe.LatencyMap{
		"https://a.example.com": 15 * time.Millisecond,
	})
	snap := table.snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, uint64(15), snap["https://a.example.com"].LatencyMs)
}

func TestLatencyTable_OrderedURLs(t *testing.T) {
	table := newLatencyTable()
	table.replace(probe.LatencyMap{
		"https://slow.example.com": 200 * time.Millisecond,
		"https://fast.example.com": 10 * time.Millisecond,
		"https://tie-b.example.com": 50 * time.Millisecond,
		"https://tie-a.example.com": 50 * time.Millisecond,
	})
	require.Equal(t, []string{
		"https://fast.example.com",
		"https://tie-a.example.com",
		"https://tie-b.example.com",
		"https://slow.example.com",
	}, table.orderedURLs())
}

func TestLatencyTable_TickStale(t *testing.T) {
	table := newLatencyTable()
	table.replace(probe.LatencyMap{
		"https://a.example.com": 10 * time.Millisecond,
		"https://b.example.com": 20 * time.Millisecond,
	})

	// Two cached reads, then the third forces a re-probe.
	require.False(t, table.tickStale())
	require.False(t, table.tickStale())
	require.True(t, table.tickStale())

	// A fresh cycle resets the counter.
	table.replace(probe.LatencyMap{
		"https://a.example.com": 10 * time.Millisecond,
		"https://b.example.com": 20 * time.Millisecond,
	})
	require.False(t, table.tickStale())
}

func TestLatencyTable_TinyTableIsAlwaysStale(t *testing.T) {
	table := newLatencyTable()
	table.replace(probe.LatencyMap{"https://a.example.com": 10 * time.Millisecond})
	require.True(t, table.tickStale())
}
