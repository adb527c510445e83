package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portal/internal/access"
	"portal/internal/auth"
	"portal/internal/permission"
	"portal/internal/platform/config"
	"portal/internal/platform/logging"
	"portal/internal/platform/server"
	"portal/internal/platform/telemetry"
	"portal/internal/portal/adapter/backend"
	"portal/internal/portal/adapter/inmem"
	"portal/internal/portal/adapter/redisstore"
	"portal/internal/portal/adapter/session"
	"portal/internal/portal/middleware"
	"portal/internal/portal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("portal stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logging
	logger, logCloser, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("logging setup: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	shutdown, err := telemetry.Setup(context.Background(), "portal")
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	metrics, err := telemetry.NewPortalMetrics()
	if err != nil {
		return fmt.Errorf("metrics initialization: %w", err)
	}

	// Backend API
	client := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout,
		backend.WithMetrics(metrics),
		backend.WithLogger(logger),
	)

	// Sessions and the access gate
	codec, err := session.NewCodec([]byte(cfg.Session.Secret), cfg.Session.Issuer, cfg.Session.MaxAge(), time.Now)
	if err != nil {
		return fmt.Errorf("session codec: %w", err)
	}
	gate := access.NewGate(cfg.Gate.ProtectedPrefixes, cfg.Gate.LoginPath, codec)

	// Draft store
	var (
		drafts permission.DraftStore
		ready  func(context.Context) error
		hooks  []server.Option
	)
	switch cfg.Drafts.Store {
	case "redis":
		rdb, err := redisstore.Connect(ctx, cfg.Drafts.RedisAddr)
		if err != nil {
			return err
		}
		store := redisstore.NewDraftStore(rdb, cfg.Drafts.TTL)
		drafts, ready = store, store.Ping
		hooks = append(hooks, server.OnShutdown(func(context.Context) error { return rdb.Close() }))
	default:
		store := inmem.NewDraftStore(cfg.Drafts.TTL, time.Now)
		go store.Run(ctx, 5*time.Minute)
		drafts = store
	}

	authSvc := auth.NewService(client, logger, metrics)
	perms := permission.NewService(client, drafts, logger, metrics)

	// Router
	router, err := web.NewRouter(web.Options{
		Logger:      logger,
		Auth:        authSvc,
		Permissions: perms,
		Gate:        gate,
		Codec:       codec,
		Cookie: middleware.SessionCookie{
			Name:   cfg.Session.CookieName,
			Secure: cfg.IsProduction(),
			MaxAge: cfg.Session.MaxAge(),
		},
		Sliding:         cfg.Session.Sliding,
		Metrics:         metrics,
		MetricsHandler:  telemetry.MetricsHandler(),
		Ready:           ready,
		Production:      cfg.IsProduction(),
		LoginRateLimit:  cfg.Login.RateLimit,
		LoginRateWindow: cfg.Login.RateWindow,
	})
	if err != nil {
		return fmt.Errorf("router initialization: %w", err)
	}

	// Start server
	opts := append([]server.Option{server.WithLogger(logger), server.OnShutdown(shutdown)}, hooks...)
	srv := server.New(cfg.PortalAddr, router, opts...)

	logger.Info("portal starting",
		"addr", cfg.PortalAddr,
		"env", cfg.AppEnv,
		"backend_url", cfg.BackendURL,
		"draft_store", cfg.Drafts.Store,
		"protected_prefixes", cfg.Gate.ProtectedPrefixes,
		"session_sliding", cfg.Session.Sliding,
	)
	return srv.Run(ctx)
}
