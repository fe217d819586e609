// ARPA - Automated risk prediction for HIV care programs.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openclinic/arpa/internal/api"
	"github.com/openclinic/arpa/internal/arpa"
	"github.com/openclinic/arpa/internal/bus"
	"github.com/openclinic/arpa/internal/cache"
	"github.com/openclinic/arpa/internal/domain"
	"github.com/openclinic/arpa/internal/repository"
	"github.com/openclinic/arpa/internal/screening"
	"github.com/openclinic/arpa/internal/worker"
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
	if os.Getenv("ARPA_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting arpa",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("ARPA_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

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

	// Initialize Screening Engine
	screener, err := screening.NewEngine()
	if err != nil {
		slog.Error("failed to initialize screening engine", "error", err)
		os.Exit(1)
	}

	// Load screening rules from database (no hardcoded defaults - configure via API)
	if err := loadScreeningRules(ctx, repo, screener); err != nil {
		slog.Error("failed to load screening rules", "error", err)
		os.Exit(1)
	}
	slog.Info("screening engine initialized", "rules_count", screener.RuleCount())

	// Initialize scoring Engine
	engine := arpa.New(repo, cacheImpl, busImpl, screener)
	slog.Info("scoring engine initialized")

	// Initialize recalculation Worker
	recalcWorker := worker.NewWorker(busImpl, engine)
	if err := recalcWorker.Start(); err != nil {
		slog.Error("failed to start recalculation worker", "error", err)
	} else {
		slog.Info("recalculation worker started")
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, engine, repo, cacheImpl, busImpl, screener, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("arpa is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop recalculation worker first
	if err := recalcWorker.Stop(); err != nil {
		slog.Error("failed to stop recalculation worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("arpa shutdown complete")
}

// loadScreeningRules loads enabled screening rules from the database.
// All rules must be configured via POST /screening/rules - no hardcoded defaults.
func loadScreeningRules(ctx context.Context, repo domain.Repository, screener *screening.Engine) error {
	dbRules, err := repo.ListScreeningRules(ctx)
	if err != nil {
		slog.Warn("failed to list screening rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading screening rules from database", "count", len(dbRules))
		return screener.ReloadRules(dbRules)
	}

	slog.Info("no screening rules in database - configure via POST /screening/rules")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ARPA - Automated Risk Prediction Algorithm")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /patients/{id}/risk-score          - Calculate a fresh risk score")
	fmt.Println("    GET    /patients/{id}/risk-score          - Get current risk score")
	fmt.Println("    GET    /patients/{id}/risk-score/history  - Get score history")
	fmt.Println("    GET    /patients/high-risk                - List high-risk patients")
	fmt.Println("    GET    /screening/rules                   - List screening rules")
	fmt.Println("    POST   /screening/rules                   - Create a screening rule")
	fmt.Println("    DELETE /screening/rules/{id}              - Delete a screening rule")
	fmt.Println("    POST   /screening/rules/reload            - Hot-reload screening rules")
	fmt.Println("    GET    /health                            - Health check")
	fmt.Println()
}
