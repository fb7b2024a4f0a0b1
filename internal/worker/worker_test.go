package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/bus"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/cache"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/ingest"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/pipeline"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/repository"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/scoring"
)

var capturedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	bus    *bus.ChannelBus
	repo   *repository.SQLRepository
	cache  *cache.LRUCache
	worker *Worker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := domain.DefaultEngineConfig()
	cfg.Permutations = 99
	cfg.Workers = 2
	engine, err := pipeline.New(cfg, scoring.NewDefaultRegistry(), scoring.NewScorer("test"), pipeline.WithLogger(logger))
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: repository.MemoryPath})
	if err != nil {
		t.Fatalf("repository.New failed: %v", err)
	}

	f := &fixture{
		bus:   bus.NewChannelBus(10),
		repo:  repo,
		cache: cache.NewLRUCache(10),
	}
	f.worker = NewWorker(f.bus, f.repo, f.cache, engine, logger)
	t.Cleanup(func() {
		f.worker.Stop()
		f.bus.Close()
		f.repo.Close()
	})
	return f
}

func (f *fixture) await(t *testing.T, network, topic string) <-chan *domain.Message {
	t.Helper()
	ch := make(chan *domain.Message, 1)
	_, err := f.bus.Subscribe(context.Background(), network, topic, func(ctx context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	return ch
}

func (f *fixture) ingest(t *testing.T, req domain.ScoreRequest) {
	t.Helper()
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := f.bus.Publish(context.Background(), req.Snapshot.Network, domain.TopicSnapshotIngested, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func receive(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func TestWorker_ScoresSnapshot(t *testing.T) {
	f := newFixture(t)
	if err := f.worker.Start(Config{CacheTTL: time.Minute}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	computed := f.await(t, "testnet", domain.TopicScoreComputed)

	snapshot := ingest.NewGenerator(3).Clustered("testnet", 120, capturedAt)
	f.ingest(t, domain.ScoreRequest{Snapshot: *snapshot, PolicyID: domain.PolicyRelativeV0})

	var score domain.CompositeScore
	if err := json.Unmarshal(receive(t, computed).Payload, &score); err != nil {
		t.Fatalf("decode score: %v", err)
	}
	if score.Network != "testnet" || score.Policy.ID != domain.PolicyRelativeV0 {
		t.Errorf("unexpected score: network=%s policy=%s", score.Network, score.Policy.ID)
	}

	ctx := context.Background()
	stored, err := f.repo.GetScore(ctx, score.ID)
	if err != nil {
		t.Fatalf("score not stored: %v", err)
	}
	if stored.GDI != score.GDI {
		t.Errorf("stored GDI %v, published %v", stored.GDI, score.GDI)
	}
	if _, err := f.repo.GetSnapshot(ctx, "testnet", snapshot.Fingerprint()); err != nil {
		t.Errorf("snapshot not stored: %v", err)
	}
	cached, err := f.cache.GetScore(ctx, "testnet", cache.ScoreKey(score.ID))
	if err != nil || cached == nil {
		t.Errorf("score not cached: %v", err)
	}

	if stats := f.worker.GetStats(); stats.Processed != 1 || stats.SubscriptionCount != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestWorker_PublishesFailure(t *testing.T) {
	f := newFixture(t)
	if err := f.worker.Start(Config{Networks: []string{"tiny"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	failed := f.await(t, "tiny", domain.TopicScoreFailed)

	snapshot := domain.NetworkSnapshot{
		Network:    "tiny",
		CapturedAt: capturedAt,
		Nodes: []domain.NodeRecord{
			domain.NewNode("a", 10, 10, "US", "A"),
			domain.NewNode("b", 11, 11, "DE", "B"),
		},
	}
	f.ingest(t, domain.ScoreRequest{Snapshot: snapshot, PolicyID: domain.PolicyAbsoluteV0})

	var failure domain.ScoreFailure
	if err := json.Unmarshal(receive(t, failed).Payload, &failure); err != nil {
		t.Fatalf("decode failure: %v", err)
	}
	if failure.Kind != "upstream" {
		t.Errorf("expected upstream failure, got %q", failure.Kind)
	}
	if len(failure.FailedModules) == 0 || failure.FailedModules[0] != domain.ModuleAutocorrelation {
		t.Errorf("expected autocorrelation to fail, got %v", failure.FailedModules)
	}
	if failure.Fingerprint != snapshot.Fingerprint() {
		t.Errorf("fingerprint mismatch: %s", failure.Fingerprint)
	}
}

func TestWorker_MissingPolicy(t *testing.T) {
	f := newFixture(t)
	f.worker.Start(Config{})
	failed := f.await(t, "testnet", domain.TopicScoreFailed)

	snapshot := ingest.NewGenerator(3).Clustered("testnet", 50, capturedAt)
	f.ingest(t, domain.ScoreRequest{Snapshot: *snapshot})

	var failure domain.ScoreFailure
	if err := json.Unmarshal(receive(t, failed).Payload, &failure); err != nil {
		t.Fatalf("decode failure: %v", err)
	}
	if failure.Kind != "configuration" {
		t.Errorf("expected configuration failure, got %q", failure.Kind)
	}
}

func TestWorker_ProcessRejectsMalformedPayload(t *testing.T) {
	f := newFixture(t)
	err := f.worker.Process(context.Background(), &domain.Message{ID: "m1", Network: "testnet", Payload: []byte("{")})
	if err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestWorker_Stop(t *testing.T) {
	f := newFixture(t)
	if err := f.worker.Start(Config{Networks: []string{"a", "b"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := f.worker.GetStats().SubscriptionCount; got != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", got)
	}
	if err := f.worker.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := f.worker.GetStats().SubscriptionCount; got != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", got)
	}
}
