package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ezweb3/rpc-failover/pkg/chainlist"
)

type config struct {
	Host           string
	Port           string
	Networks       []chainlist.NetworkID
	Strategy       string
	Tracking       string
	Socks5         string
	AllowPlainHTTP bool
	LogLevel       string
}

func loadConfig() config {
	_ = godotenv.Load()

	return config{
		Host:           getEnv("SERVER_HOST", "0.0.0.0"),
		Port:           getEnv("SERVER_PORT", "8080"),
		Networks:       parseNetworks(getEnv("NETWORKS", "1")),
		Strategy:       getEnv("STRATEGY", "fastest"),
		Tracking:       getEnv("TRACKING", "limited"),
		Socks5:         getEnv("SOCKS5_ADDR", ""),
		AllowPlainHTTP: getEnv("ALLOW_PLAIN_HTTP", "") == "true",
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

func parseNetworks(raw string) []chainlist.NetworkID {
	var out []chainlist.NetworkID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, chainlist.NetworkID(id))
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
