package main

import "github.com/ezweb3/rpc-failover/pkg/chainlist"

func main() {
	PrintVersion()

	cfg := loadConfig()
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	catalog := chainlist.MustLoad()
	handlers := initHandlers(cfg, catalog, logger)
	startRefreshLoop(handlers, logger)

	registerRoutes(handlers, catalog, logger)

	startServer(cfg.Host, cfg.Port, logger)
}
