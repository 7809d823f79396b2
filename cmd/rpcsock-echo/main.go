// Command rpcsock-echo dials a JSON-RPC server over a MessagePack binary
// frame transport and issues one request, for manual smoke-testing of
// the client against a real peer.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"rpcsock"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:8080/rpc", "server URL to dial")
	method := flag.String("method", "echo", "method to call")
	message := flag.String("message", "hello", "message to send as params.message")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg := rpcsock.Config{URL: *url, Debug: *debug}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	client := rpcsock.New(cfg, rpcsock.WithLogger(logger))

	client.On(rpcsock.EventClose, func(payload any) {
		ev, _ := payload.(rpcsock.CloseEvent)
		logger.Warn("connection closed", "code", ev.Code, "reason", ev.Reason)
	})
	client.On(rpcsock.EventReconnecting, func(payload any) {
		ev, _ := payload.(rpcsock.ReconnectingEvent)
		logger.Info("reconnecting", "attempt", ev.Attempt, "max", ev.MaxAttempts)
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close(1000, "done")

	call, err := client.Request(*method, map[string]any{"message": *message}, rpcsock.WithTimeout(*timeout))
	if err != nil {
		fmt.Fprintf(os.Stderr, "request: %v\n", err)
		os.Exit(1)
	}

	result, err := call.Wait(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "call failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("result: %v\n", result)
	stats := client.GetStats()
	fmt.Printf("stats: sent=%d received=%d avgResponseTime=%s\n", stats.RequestsSent, stats.ResponsesReceived, stats.AverageResponseTime)
}
