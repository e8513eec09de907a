package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/ezweb3/rpc-failover/pkg/chainlist"
	"github.com/ezweb3/rpc-failover/pkg/consensus"
	"github.com/ezweb3/rpc-failover/pkg/docs"
	"github.com/ezweb3/rpc-failover/pkg/handler"
	"github.com/ezweb3/rpc-failover/pkg/jsonrpc"
	"github.com/ezweb3/rpc-failover/pkg/metrics"
)

func registerRoutes(
	handlers map[chainlist.NetworkID]*handler.Handler,
	catalog *chainlist.Catalog,
	logger *zap.Logger,
) {
	http.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	// Swagger
	http.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/swagger.json"),
		httpSwagger.InstanceName("swagger"),
	))
	http.HandleFunc("/swagger/swagger.json", docs.JSONHandler)

	http.HandleFunc("/chains", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, catalog.ChainsByTVL())
	})

	http.HandleFunc("/rpc/", func(w http.ResponseWriter, r *http.Request) {
		h, tail, ok := resolveHandler(handlers, r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}
		switch tail {
		case "":
			serveProxy(h, logger, w, r)
		case "consensus":
			serveConsensus(h, logger, w, r)
		case "latencies":
			writeJSON(w, h.Latencies())
		case "fastest":
			url, err := h.FastestRPC(r.Context(), r.URL.Query().Get("force") == "true")
			if err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, map[string]string{"url": url})
		default:
			http.NotFound(w, r)
		}
	})

	metrics.Init()
	http.Handle("/metrics", metrics.Handler())
}

// resolveHandler parses /rpc/{network}[/op].
func resolveHandler(
	handlers map[chainlist.NetworkID]*handler.Handler,
	path string,
) (*handler.Handler, string, bool) {
	parts := strings.SplitN(strings.TrimPrefix(path, "/rpc/"), "/", 2)
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return nil, "", false
	}
	h, ok := handlers[chainlist.NetworkID(id)]
	if !ok {
		return nil, "", false
	}
	tail := ""
	if len(parts) > 1 {
		tail = parts[1]
	}
	return h, tail, true
}

func serveProxy(h *handler.Handler, logger *zap.Logger, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req jsonrpc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json-rpc request", http.StatusBadRequest)
		return
	}
	resp, err := h.ProxyRequest(r.Context(), &req)
	if err != nil {
		logger.Warn("proxy_request_failed", zap.Uint64("network_id", uint64(h.NetworkID())), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, resp)
}

func serveConsensus(h *handler.Handler, logger *zap.Logger, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req jsonrpc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json-rpc request", http.StatusBadRequest)
		return
	}

	threshold := parseFloat(r.URL.Query().Get("threshold"), 0.66)
	var (
		value json.RawMessage
		err   error
	)
	if r.URL.Query().Get("bft") == "true" {
		min := parseFloat(r.URL.Query().Get("min"), 0.5)
		value, err = h.BFTConsensus(r.Context(), &req, threshold, min, consensus.Options{})
	} else {
		value, err = h.Consensus(r.Context(), &req, threshold, consensus.Options{})
	}
	if err != nil {
		logger.Warn("consensus_request_failed", zap.Uint64("network_id", uint64(h.NetworkID())), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]json.RawMessage{"result": value})
}

func parseFloat(raw string, def float64) float64 {
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 || f > 1 {
		return def
	}
	return f
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
