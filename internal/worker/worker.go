// Package worker scores snapshots asynchronously from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/cache"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/pipeline"
)

// Worker consumes TopicSnapshotIngested, runs the pipeline and publishes
// TopicScoreComputed or TopicScoreFailed.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	cache  domain.Cache
	engine *pipeline.Engine
	logger *slog.Logger

	cacheTTL time.Duration

	mu            sync.Mutex
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// Networks to process; empty subscribes to every network.
	Networks []string

	// CacheTTL for computed scores; zero keeps them until evicted.
	CacheTTL time.Duration
}

// NewWorker creates a worker. repo and cache may be nil.
func NewWorker(bus domain.EventBus, repo domain.Repository, c domain.Cache, engine *pipeline.Engine, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		cache:  c,
		engine: engine,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the configured networks.
func (w *Worker) Start(cfg Config) error {
	w.cacheTTL = cfg.CacheTTL

	networks := cfg.Networks
	if len(networks) == 0 {
		networks = []string{domain.AllNetworks}
	}

	for _, network := range networks {
		sub, err := w.bus.Subscribe(w.ctx, network, domain.TopicSnapshotIngested, w.handleMessage)
		if err != nil {
			w.Stop()
			return fmt.Errorf("subscribe %s: %w", network, err)
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
	}

	w.logger.Info("workers started",
		"networks", networks,
		"topic", domain.TopicSnapshotIngested,
	)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()
	return w.Process(ctx, msg)
}

// Process scores one TopicSnapshotIngested message. Scoring failures are
// published as TopicScoreFailed and are not returned; malformed payloads are.
func (w *Worker) Process(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req domain.ScoreRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		w.logger.Error("failed to parse score request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	snapshot := &req.Snapshot
	if snapshot.Network == "" {
		snapshot.Network = msg.Network
	}
	network := snapshot.Network

	if w.repo != nil {
		if _, err := w.repo.SaveSnapshot(ctx, snapshot); err != nil {
			w.logger.Error("failed to save snapshot",
				"network", network,
				"error", err,
			)
		}
	}

	score, err := w.engine.Score(ctx, &pipeline.Request{
		Snapshot:      snapshot,
		PolicyID:      req.PolicyID,
		PolicyVersion: req.PolicyVersion,
		Filter:        req.Filter,
		Engine:        req.Engine,
	})
	if err != nil {
		w.failed.Add(1)
		report := pipeline.Explain(err)
		w.logger.Warn("scoring failed",
			"network", network,
			"policy", req.PolicyID,
			"kind", report.Kind,
			"failed_modules", report.FailedModules,
			"error", err,
		)
		w.publish(ctx, network, domain.TopicScoreFailed, domain.ScoreFailure{
			Network:       network,
			PolicyID:      req.PolicyID,
			Fingerprint:   snapshot.Fingerprint(),
			Kind:          report.Kind,
			FailedModules: report.FailedModules,
			Error:         report.Error,
		})
		return nil
	}

	if w.repo != nil {
		if err := w.repo.SaveScore(ctx, score); err != nil {
			w.logger.Error("failed to save score",
				"score_id", score.ID,
				"error", err,
			)
		}
	}
	if w.cache != nil {
		if err := w.cache.SetScore(ctx, network, cache.ScoreKey(score.ID), score, w.cacheTTL); err != nil {
			w.logger.Warn("failed to cache score",
				"score_id", score.ID,
				"error", err,
			)
		}
	}
	w.publish(ctx, network, domain.TopicScoreComputed, score)
	w.processed.Add(1)

	w.logger.Info("snapshot processed",
		"network", network,
		"score_id", score.ID,
		"gdi", score.GDI,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) publish(ctx context.Context, network, topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		w.logger.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := w.bus.Publish(ctx, network, topic, payload); err != nil {
		w.logger.Error("failed to publish event",
			"network", network,
			"topic", topic,
			"error", err,
		)
	}
}

// Stop unsubscribes and waits for in-flight snapshots.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.wg.Wait()

	w.logger.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
