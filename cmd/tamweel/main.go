// Tamweel - Risk scoring for Islamic financing of start-ups.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/tamweel/internal/api"
	"github.com/opensource-finance/tamweel/internal/assessment"
	"github.com/opensource-finance/tamweel/internal/bus"
	"github.com/opensource-finance/tamweel/internal/cache"
	"github.com/opensource-finance/tamweel/internal/config"
	"github.com/opensource-finance/tamweel/internal/domain"
	"github.com/opensource-finance/tamweel/internal/metrics"
	"github.com/opensource-finance/tamweel/internal/repository"
	"github.com/opensource-finance/tamweel/internal/rules"
	"github.com/opensource-finance/tamweel/internal/scoring"
	"github.com/opensource-finance/tamweel/internal/telemetry"
	"github.com/opensource-finance/tamweel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg.Logging)

	slog.Info("starting tamweel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"worker", cfg.Worker.Enabled,
	)

	shutdownTracing, err := telemetry.Setup(cfg.Tracing, os.Stderr)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Error("failed to flush traces", "error", err)
		}
	}()
	slog.Info("tracing initialized", "enabled", cfg.Tracing.Enabled, "service", cfg.Tracing.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
	resultCache, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	if resultCache != nil {
		defer resultCache.Close()
	}
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	eventBus, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Scorer
	scorer := scoring.NewDefaultScorer()
	for _, p := range scorer.Profiles().List() {
		slog.Debug("weight profile", "id", p.ID(), "name", p.Name(), "sum", scoring.RoundScore(p.Sum()))
	}

	// Initialize screening rules
	engine, err := rules.NewEngine(config.RulesWorkers())
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	m := metrics.New()

	// Rule changes made through another replica arrive on the bus.
	instanceID := uuid.New().String()
	ruleSync := worker.NewRuleSync(eventBus, repo, engine, m, instanceID)
	if err := ruleSync.Reload(ctx); err != nil {
		slog.Warn("failed to load screening rules from database", "error", err)
	}
	if engine.RulesCount() == 0 {
		slog.Info("no screening rules loaded - configure via POST /rules")
	}
	if err := ruleSync.Start(ctx); err != nil {
		slog.Error("failed to start rule sync", "error", err)
		os.Exit(1)
	}
	defer ruleSync.Stop()
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount(), "instance_id", instanceID)

	service := assessment.NewService(scorer,
		assessment.WithRules(engine),
		assessment.WithCache(resultCache, cfg.Cache.ResultTTL),
		assessment.WithBus(eventBus),
		assessment.WithMetrics(m),
	)

	// Initialize bus worker
	var busWorker *worker.Worker
	if cfg.Worker.Enabled {
		busWorker = worker.NewWorker(eventBus, service)
		if err := busWorker.Start(worker.Config{Concurrency: cfg.Worker.Concurrency}); err != nil {
			slog.Error("failed to start worker", "error", err)
			busWorker = nil
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, service, api.Deps{
		Repo:     repo,
		Cache:    resultCache,
		Bus:      eventBus,
		Engine:   engine,
		Metrics:  m,
		Platform: cfg.Platform,
		Version:  Version,

		InstanceID: instanceID,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("tamweel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if busWorker != nil {
		if err := busWorker.Stop(); err != nil {
			slog.Error("failed to stop worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("tamweel shutdown complete")
}

func setupLogger(cfg domain.LoggingConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║                 TAMWEEL                   ║")
	fmt.Println("  ║   Islamic financing start-up risk scorer  ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Platform: %s\n", cfg.Platform.Bank)
	fmt.Printf("  Release:  %s (%s)\n", cfg.Platform.Release, cfg.Platform.Notes)
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /assess          - Score a financing request")
	fmt.Println("    GET    /profiles        - List weight profiles")
	fmt.Println("    GET    /contract-types  - List contract types")
	fmt.Println("    GET    /ceilings        - List normalization ceilings")
	fmt.Println("    GET    /bands           - List classification bands")
	fmt.Println("    GET    /rules           - List screening rules")
	fmt.Println("    POST   /rules           - Create a screening rule")
	fmt.Println("    DELETE /rules/{id}      - Delete a screening rule")
	fmt.Println("    POST   /rules/reload    - Hot-reload rules from database")
	fmt.Println("    GET    /health          - Health check")
	fmt.Println("    GET    /metrics         - Prometheus metrics")
	fmt.Println()
}
