package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ezweb3/rpc-failover/pkg/chainlist"
	"github.com/ezweb3/rpc-failover/pkg/handler"
	"github.com/ezweb3/rpc-failover/pkg/strategy"
)

const refreshInterval = 30 * time.Second

func initHandlers(cfg config, catalog *chainlist.Catalog, logger *zap.Logger) map[chainlist.NetworkID]*handler.Handler {
	strat := strategy.Fastest
	if cfg.Strategy == "first_healthy" {
		strat = strategy.FirstHealthy
	}

	handlers := make(map[chainlist.NetworkID]*handler.Handler, len(cfg.Networks))
	for _, id := range cfg.Networks {
		h, err := handler.New(handler.Config{
			NetworkID:      id,
			Tracking:       chainlist.Tracking(cfg.Tracking),
			Socks5Addr:     cfg.Socks5,
			AllowPlainHTTP: cfg.AllowPlainHTTP,
		}, strat, catalog, logger)
		if err != nil {
			logger.Fatal("handler_init_error", zap.Uint64("network_id", uint64(id)), zap.Error(err))
		}
		handlers[id] = h
	}

	var wg sync.WaitGroup
	for id, h := range handlers {
		wg.Add(1)
		go func(id chainlist.NetworkID, h *handler.Handler) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := h.Init(ctx); err != nil {
				// A dead network at startup is not fatal; the refresh loop
				// keeps trying.
				logger.Warn("handler_no_initial_provider", zap.Uint64("network_id", uint64(id)), zap.Error(err))
			}
		}(id, h)
	}
	wg.Wait()

	return handlers
}

func startRefreshLoop(handlers map[chainlist.NetworkID]*handler.Handler, logger *zap.Logger) {
	go func() {
		t := time.NewTicker(refreshInterval)
		defer t.Stop()
		for range t.C {
			for id, h := range handlers {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if err := h.Refresh(ctx); err != nil {
					logger.Warn("handler_refresh_error", zap.Uint64("network_id", uint64(id)), zap.Error(err))
				}
				cancel()
			}
		}
	}()
}
