// Harrier - Provider fraud-risk investigation engine.
// Copyright (c) 2025 opensource.health
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/opensource-health/harrier/internal/api"
	"github.com/opensource-health/harrier/internal/baseline"
	"github.com/opensource-health/harrier/internal/bus"
	"github.com/opensource-health/harrier/internal/cache"
	"github.com/opensource-health/harrier/internal/connector"
	"github.com/opensource-health/harrier/internal/domain"
	"github.com/opensource-health/harrier/internal/fusion"
	"github.com/opensource-health/harrier/internal/investigation"
	"github.com/opensource-health/harrier/internal/repository"
	"github.com/opensource-health/harrier/internal/rules"
	"github.com/opensource-health/harrier/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("HARRIER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()
	if os.Getenv("HARRIER_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnvOverrides(cfg)

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

	// Initialize source connectors and the fusion aggregator
	aggregator := fusion.NewAggregator(
		connector.NewRegistryConnector(cfg.Connectors, cacheImpl),
		connector.NewUtilizationConnector(cfg.Connectors, cacheImpl),
		connector.NewExclusionConnector(cfg.Connectors, cacheImpl),
		connector.NewLegalSearchConnector(cfg.Connectors, cacheImpl),
	)
	slog.Info("source connectors initialized")

	// Initialize risk-factor rule engine with the builtin set
	ruleEngine, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	if err := ruleEngine.LoadRules(rules.BuiltinRules()); err != nil {
		slog.Error("failed to load builtin rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", ruleEngine.RulesCount())

	// Peer baselines from stored snapshots, static table as fallback
	baselines := baseline.NewProvider(repo)

	// Investigation pipeline
	engine := investigation.NewEngine(aggregator, ruleEngine, baselines, repo)
	slog.Info("investigation engine initialized")

	// Async worker consuming investigation requests
	asyncWorker := worker.NewWorker(busImpl, engine)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start async worker", "error", err)
	} else {
		slog.Info("async worker started")
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, ruleEngine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
}

// applyEnvOverrides applies HARRIER_* environment variables on top of the
// tier defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("HARRIER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("HARRIER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("HARRIER_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Repository.PostgresPort = port
		}
	}
	if v := os.Getenv("HARRIER_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("HARRIER_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("HARRIER_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("HARRIER_NATS_TOKEN"); v != "" {
		cfg.EventBus.NATSToken = v
	}
	if v := os.Getenv("HARRIER_REGISTRY_URL"); v != "" {
		cfg.Connectors.RegistryURL = v
	}
	if v := os.Getenv("HARRIER_UTILIZATION_URL"); v != "" {
		cfg.Connectors.UtilizationURL = v
	}
	if v := os.Getenv("HARRIER_EXCLUSION_URL"); v != "" {
		cfg.Connectors.ExclusionURL = v
	}
	if v := os.Getenv("HARRIER_LEGAL_SEARCH_URL"); v != "" {
		cfg.Connectors.LegalSearchURL = v
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  HARRIER - Provider Fraud Investigation Engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /investigations                    - Run an investigation")
	fmt.Println("    POST /investigations/async              - Queue an investigation")
	fmt.Println("    GET  /investigations/{id}               - Get a stored analysis")
	fmt.Println("    GET  /subjects/{npi}/investigations     - List analyses for a subject")
	fmt.Println("    GET  /subjects/{npi}/financial          - Financial entries for a subject")
	fmt.Println("    PUT  /subjects/{npi}/financial          - Record financial figures")
	fmt.Println("    GET  /financial/annual?year=YYYY        - Annual financial total")
	fmt.Println("    GET  /rules                             - List risk-factor rules")
	fmt.Println("    POST /rules                             - Load a risk-factor rule")
	fmt.Println("    GET  /health                            - Health check")
	fmt.Println()
}
