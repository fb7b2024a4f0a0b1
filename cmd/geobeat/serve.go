package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/api"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/bus"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/cache"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/observability"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/pipeline"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/repository"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/scoring"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/worker"
)

var serveNetworks []string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API. In async scoring mode the snapshot worker runs in the
same process and scores snapshots published to the event bus.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringSliceVar(&serveNetworks, "networks", nil, "networks the async worker scores (default: all)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	slog.Info("starting geobeat",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"scoring_mode", cfg.ScoringMode,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx := cmd.Context()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, os.Stderr)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing)

	var collector *observability.Collector
	if cfg.Metrics.Enabled {
		collector, err = observability.NewCollector(nil)
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
	}

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	registry, err := buildRegistry(ctx, cfg, repo)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	slog.Info("policies loaded", "count", registry.Count())

	engine, err := pipeline.New(cfg.Engine, registry, scoring.NewScorer(Version),
		pipeline.WithMetrics(collector),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	cacheTTL := time.Duration(cfg.Scoring.CacheTTL) * time.Second

	var asyncWorker *worker.Worker
	if cfg.ScoringMode == domain.ModeAsync {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, engine, logger)
		if err := asyncWorker.Start(worker.Config{Networks: serveNetworks, CacheTTL: cacheTTL}); err != nil {
			return fmt.Errorf("failed to start async worker: %w", err)
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Engine:        engine,
		Registry:      registry,
		Repo:          repo,
		Cache:         cacheImpl,
		Bus:           busImpl,
		Version:       Version,
		Mode:          cfg.ScoringMode,
		DefaultPolicy: cfg.Scoring.DefaultPolicy,
		CacheTTL:      cacheTTL,
		MetricsPath:   cfg.Metrics.Path,
	}, collector)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("geobeat is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cmd, cfg)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-serveErr:
		runErr = fmt.Errorf("server failed: %w", err)
	}

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("geobeat shutdown complete")
	return runErr
}

func printBanner(cmd *cobra.Command, cfg *domain.Config) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  GeoBeat - Geographic Decentralization Index")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Version:  %s\n", Version)
	fmt.Fprintf(w, "  Tier:     %s (%s scoring)\n", cfg.Tier, cfg.ScoringMode)
	fmt.Fprintf(w, "  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Endpoints:")
	fmt.Fprintln(w, "    POST /scores                    - Score a snapshot")
	fmt.Fprintln(w, "    GET  /scores/{id}               - Get a score by ID")
	fmt.Fprintln(w, "    POST /snapshots                 - Queue a snapshot (async mode)")
	fmt.Fprintln(w, "    GET  /networks/{network}/scores - Score history")
	fmt.Fprintln(w, "    GET  /networks/{network}/trend  - Score trend")
	fmt.Fprintln(w, "    GET  /policies                  - List policies")
	fmt.Fprintln(w, "    POST /policies                  - Register a policy")
	fmt.Fprintln(w, "    POST /policies/reload           - Reload stored policies")
	fmt.Fprintln(w, "    GET  /health                    - Health check")
	fmt.Fprintln(w)
}
