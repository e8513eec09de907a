// wsbench is a throwaway measurement harness comparing WebSocket and HTTP
// request latency against the same provider. It exists to answer a tuning
// question, not to be part of the engine: the core only speaks HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ezweb3/rpc-failover/pkg/jsonrpc"
)

func main() {
	httpURL := flag.String("http", "", "HTTP RPC endpoint")
	wsURL := flag.String("ws", "", "WebSocket RPC endpoint")
	rounds := flag.Int("n", 10, "number of request rounds")
	timeout := flag.Duration("timeout", 5*time.Second, "per-request timeout")
	flag.Parse()

	if *httpURL == "" || *wsURL == "" {
		fmt.Fprintln(os.Stderr, "usage: wsbench -http <url> -ws <url> [-n rounds]")
		os.Exit(2)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	httpSamples, err := benchHTTP(*httpURL, *rounds, *timeout, logger)
	if err != nil {
		logger.Fatal("http_bench_failed", zap.Error(err))
	}
	wsSamples, err := benchWS(*wsURL, *rounds, *timeout)
	if err != nil {
		logger.Fatal("ws_bench_failed", zap.Error(err))
	}

	fmt.Printf("%-6s %12s %12s\n", "round", "http", "ws")
	for i := 0; i < *rounds; i++ {
		fmt.Printf("%-6d %12s %12s\n", i+1, httpSamples[i], wsSamples[i])
	}
	fmt.Printf("\nmean   %12s %12s\n", mean(httpSamples), mean(wsSamples))
}

func benchHTTP(url string, rounds int, timeout time.Duration, logger *zap.Logger) ([]time.Duration, error) {
	client := jsonrpc.NewClient(jsonrpc.ClientOptions{Timeout: timeout}, logger)
	out := make([]time.Duration, 0, rounds)
	for i := 0; i < rounds; i++ {
		req := jsonrpc.NewRequest("eth_blockNumber", []interface{}{}, uint64(i+1))
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		start := time.Now()
		_, err := client.Call(ctx, url, req)
		cancel()
		if err != nil {
			return nil, err
		}
		out = append(out, time.Since(start))
	}
	return out, nil
}

func benchWS(url string, rounds int, timeout time.Duration) ([]time.Duration, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	out := make([]time.Duration, 0, rounds)
	for i := 0; i < rounds; i++ {
		req := jsonrpc.NewRequest("eth_blockNumber", []interface{}{}, uint64(i+1))
		payload, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}

		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
		_ = conn.SetReadDeadline(time.Now().Add(timeout))

		start := time.Now()
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return nil, err
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil, err
		}
		out = append(out, time.Since(start))
	}
	return out, nil
}

func mean(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range samples {
		total += s
	}
	return total / time.Duration(len(samples))
}
