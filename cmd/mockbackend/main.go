package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"portal/internal/platform/server"
	"portal/internal/testutil"
)

func main() {
	addr := envOr("ADDR", ":8082")
	baseDelay := envDuration("LATENCY_BASE", 0)
	jitter := envDuration("LATENCY_JITTER", 0)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	backend := testutil.NewMockBackend()
	backend.SetLatency(baseDelay, jitter)
	if msg := os.Getenv("FAIL_SAVES"); msg != "" {
		backend.FailSaves(msg)
	}

	slog.Info("mock backend starting", "addr", addr,
		"latency_base", baseDelay, "latency_jitter", jitter)

	srv := server.New(addr, backend.Served(logger), server.WithLogger(logger))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envDuration reads a duration in milliseconds from an env var (e.g. "50" -> 50ms).
func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}
