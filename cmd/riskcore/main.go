// Riskcore - Fraud and anomaly scoring for ridesharing operations.
// Copyright (c) 2025 xpress-ops
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/xpress-ops/riskcore/internal/alert"
	"github.com/xpress-ops/riskcore/internal/api"
	"github.com/xpress-ops/riskcore/internal/bus"
	"github.com/xpress-ops/riskcore/internal/cache"
	"github.com/xpress-ops/riskcore/internal/cluster"
	"github.com/xpress-ops/riskcore/internal/domain"
	"github.com/xpress-ops/riskcore/internal/history"
	"github.com/xpress-ops/riskcore/internal/pattern"
	"github.com/xpress-ops/riskcore/internal/repository"
	"github.com/xpress-ops/riskcore/internal/scoring"
	"github.com/xpress-ops/riskcore/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("RISKCORE_TIER") == "pro" {
		cfg = domain.ProConfig()
	}
	if os.Getenv("RISKCORE_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}

	// Initialize structured logger
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("starting riskcore",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Tenants processed by the async worker and the clustering schedule
	tenantIDs := parseTenants(os.Getenv("RISKCORE_TENANTS"))

	// Initialize alert log
	alerts := alert.NewStore()

	// Initialize pattern matcher and load custom archetypes
	matcher, err := pattern.NewMatcher(logger)
	if err != nil {
		slog.Error("failed to initialize pattern matcher", "error", err)
		os.Exit(1)
	}
	if err := loadArchetypesFromDatabase(ctx, repo, matcher, tenantIDs); err != nil {
		slog.Error("failed to load archetypes", "error", err)
		os.Exit(1)
	}

	// Initialize cluster engine over the canonical cluster feature space
	clusters := cluster.NewEngine(scoring.ClusterFeatureNames(), logger)

	// Initialize rider history service
	historySvc := history.NewService(repo, cacheImpl, cfg.Scoring.HistoryWindowDays, logger)

	// Initialize scoring engine with cluster feedback and the alert log
	engine := scoring.NewEngine(cfg.Scoring, clusters, alerts, nil, logger)
	slog.Info("scoring engine initialized",
		"home_country", cfg.Scoring.HomeCountry,
		"history_window_days", cfg.Scoring.HistoryWindowDays,
	)

	// The worker owns async scoring and the clustering job. It is always
	// constructed so POST /clusters can trigger a run; subscriptions start
	// only when async processing is enabled.
	asyncWorker := worker.NewWorker(busImpl, repo, cacheImpl, engine, historySvc, matcher, clusters, cfg.Scoring, cfg.Cluster)

	asyncEnabled := cfg.Tier == domain.TierPro || os.Getenv("RISKCORE_ASYNC_WORKER") == "true"
	if asyncEnabled {
		workerCfg := worker.Config{TenantIDs: tenantIDs}
		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Dependencies{
		Repo:       repo,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Engine:     engine,
		History:    historySvc,
		Matcher:    matcher,
		Clusters:   clusters,
		Alerts:     alerts,
		ClusterJob: asyncWorker,
	}, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("riskcore is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncEnabled {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("riskcore shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseTenants(raw string) []string {
	if raw == "" {
		return nil
	}
	var tenants []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tenants = append(tenants, t)
		}
	}
	return tenants
}

// loadArchetypesFromDatabase loads custom archetypes for the configured
// tenants into the matcher. Archetypes are configured via POST /patterns.
func loadArchetypesFromDatabase(ctx context.Context, repo domain.Repository, matcher *pattern.Matcher, tenantIDs []string) error {
	var all []*domain.CustomArchetype
	for _, tenantID := range tenantIDs {
		archetypes, err := repo.ListArchetypes(ctx, tenantID)
		if err != nil {
			slog.Warn("failed to list archetypes from database",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		all = append(all, archetypes...)
	}

	if len(all) == 0 {
		slog.Info("no custom archetypes in database - configure via POST /patterns API")
		return nil
	}

	slog.Info("loading custom archetypes from database", "count", len(all))
	return matcher.ReloadArchetypes(all)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               RISKCORE                    ║")
	fmt.Println("  ║     Fraud & Anomaly Scoring Engine        ║")
	fmt.Println("  ║      Every trip, scored in-flight.        ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score               - Score a trip feature vector")
	fmt.Println("    GET  /predictions/{id}    - Get prediction by ID")
	fmt.Println("    GET  /alerts              - List recent alerts")
	fmt.Println("    GET  /alerts/stats        - Alert log statistics")
	fmt.Println("    POST /alerts/{id}/resolve - Resolve an alert")
	fmt.Println("    GET  /patterns            - Active fraud archetypes")
	fmt.Println("    GET  /patterns/all        - Full archetype catalog")
	fmt.Println("    POST /patterns            - Create a custom archetype")
	fmt.Println("    POST /patterns/reload     - Hot-reload archetypes")
	fmt.Println("    GET  /clusters            - Current cluster analyses")
	fmt.Println("    POST /clusters            - Trigger a clustering run")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println()
}
