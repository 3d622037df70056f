package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/analytics"
	corecfg "github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/core/config"
	"github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/core/storage/postgres"
	"github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/migrations"
	"github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/records"
	"github.com/3sc0rp/blunari-saas-monorepo-sub002/internal/server"
)

func main() {
	configPath := flag.String("config", "blunari.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	edgeTimeout := mustDuration(cfg.Edge.EffectiveTimeout())
	primaryTTL := mustDuration(cfg.Analytics.PrimaryCacheTTL)
	fallbackTTL := mustDuration(cfg.Analytics.FallbackCacheTTL)
	cleanupInterval := mustDuration(cfg.Analytics.CacheCleanupInterval)
	rateWindow := mustDuration(cfg.Analytics.RateLimitWindow)
	refreshInterval := mustDuration(cfg.Analytics.RefreshInterval)
	retryBaseDelay := mustDuration(cfg.Analytics.RetryBaseDelay)

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// 3. Initialize Retrieval Pipeline
	cache := analytics.NewTTLCache()
	limiter := analytics.NewRateLimiter(cfg.Analytics.RateLimitMax, rateWindow)
	reporter := analytics.NewErrorReporter(cfg.Analytics.ErrorHistorySize)

	edgeClient := analytics.NewEdgeClient(cfg.Edge.URL, cfg.Edge.AnonKey, edgeTimeout, nil)
	recordsSource := analytics.NewRecordsSource(dbAdapter)

	orch := analytics.NewOrchestrator(
		analytics.OrchestratorConfig{
			PrimaryTTL:  primaryTTL,
			FallbackTTL: fallbackTTL,
			MaxAttempts: cfg.Analytics.RetryAttempts,
			BackoffBase: retryBaseDelay,
			TestMode:    cfg.Analytics.TestMode,
		},
		cache,
		limiter,
		edgeClient,
		recordsSource,
		reporter,
		cfg.SandboxPolicy,
	)

	bus := analytics.NewInvalidationBus(orch, refreshInterval, nil)

	slog.Info("Analytics pipeline initialized",
		"primary_ttl", primaryTTL,
		"fallback_ttl", fallbackTTL,
		"rate_limit_max", cfg.Analytics.RateLimitMax,
		"rate_limit_window", rateWindow,
		"refresh_interval", refreshInterval,
		"test_mode", cfg.Analytics.TestMode,
	)

	// 4. Initialize Services
	analyticsSvc := analytics.NewService(orch, reporter, bus)
	recordsSvc := records.NewService(dbAdapter, bus, cfg.Server.MaxBodySizeMB)

	// 5. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
	analyticsSvc.RegisterRoutes(srv.Engine)
	recordsSvc.RegisterRoutes(srv.Engine)

	// 6. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go bus.Run(ctx)
	go cache.RunCleanup(ctx, cleanupInterval)

	// Signal handler → triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// mustDuration parses a duration already vetted by config validation.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Error("Invalid duration in config", "value", s, "error", err)
		os.Exit(1)
	}
	return d
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
