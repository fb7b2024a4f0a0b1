package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/ingest"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/observability"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/scoring"
)

var capturedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() domain.EngineConfig {
	cfg := domain.DefaultEngineConfig()
	cfg.Permutations = 199
	cfg.Workers = 4
	return cfg
}

func newEngine(t *testing.T, registry *scoring.Registry, opts ...Option) *Engine {
	t.Helper()
	if registry == nil {
		registry = scoring.NewDefaultRegistry()
	}
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	e, err := New(testConfig(), registry, scoring.NewScorer("test"), opts...)
	require.NoError(t, err)
	return e
}

func clusteredSnapshot() *domain.NetworkSnapshot {
	return ingest.NewGenerator(11).Clustered("testnet", 200, capturedAt)
}

func TestScore_BuiltinPolicies(t *testing.T) {
	e := newEngine(t, nil)

	for _, policyID := range []string{domain.PolicyAbsoluteV0, domain.PolicyRelativeV0} {
		t.Run(policyID, func(t *testing.T) {
			score, err := e.Score(context.Background(), &Request{Snapshot: clusteredSnapshot(), PolicyID: policyID})
			require.NoError(t, err)

			assert.Equal(t, "testnet", score.Network)
			assert.Equal(t, policyID, score.Policy.ID)
			assert.Equal(t, 200, score.Metrics.Totals.Total)
			for _, v := range []float64{score.Physical.Score, score.Jurisdictional.Score,
				score.Infrastructure.Score, score.GDI, score.ScaleInvariantGDI} {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 100.0)
			}

			m := score.Metrics
			require.NotNil(t, m.Autocorrelation)
			require.NotNil(t, m.SpatialConcentration)
			require.NotNil(t, m.LocationDiversity)
			require.NotNil(t, m.NearestNeighbor)
			require.NotNil(t, m.CountryDiversity)
			require.NotNil(t, m.OrganizationDiversity)
			assert.Equal(t, 4, m.Jurisdiction.Distinct) // US, GB, JP, DE
			assert.Equal(t, 5, m.Infrastructure.Distinct)
			assert.Less(t, m.NearestNeighbor.Value, 1.0, "city clusters are clustered")
		})
	}
}

func TestScore_Deterministic(t *testing.T) {
	e := newEngine(t, nil)
	req := &Request{Snapshot: clusteredSnapshot(), PolicyID: domain.PolicyAbsoluteV0}

	a, err := e.Score(context.Background(), req)
	require.NoError(t, err)
	b, err := e.Score(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Worker count never changes the result.
	one := testConfig()
	one.Workers = 1
	c, err := e.Score(context.Background(), &Request{Snapshot: clusteredSnapshot(), PolicyID: domain.PolicyAbsoluteV0, Engine: &one})
	require.NoError(t, err)
	assert.Equal(t, a.ID, c.ID)
	assert.Equal(t, a.Physical, c.Physical)
	assert.Equal(t, *a.Metrics.Autocorrelation.PValue, *c.Metrics.Autocorrelation.PValue)
}

func TestScore_IgnoresRecordOrder(t *testing.T) {
	e := newEngine(t, nil)

	forward := clusteredSnapshot()
	reversed := clusteredSnapshot()
	for i, j := 0, len(reversed.Nodes)-1; i < j; i, j = i+1, j-1 {
		reversed.Nodes[i], reversed.Nodes[j] = reversed.Nodes[j], reversed.Nodes[i]
	}

	a, err := e.Score(context.Background(), &Request{Snapshot: forward, PolicyID: domain.PolicyAbsoluteV0})
	require.NoError(t, err)
	b, err := e.Score(context.Background(), &Request{Snapshot: reversed, PolicyID: domain.PolicyAbsoluteV0})
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a, b)
}

func TestScoreID_MatchesScore(t *testing.T) {
	e := newEngine(t, nil)
	req := &Request{Snapshot: clusteredSnapshot(), PolicyID: domain.PolicyRelativeV0, Filter: `country != "JP"`}

	id, err := e.ScoreID(req)
	require.NoError(t, err)
	score, err := e.Score(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, score.ID, id)

	_, err = e.ScoreID(&Request{Snapshot: clusteredSnapshot(), PolicyID: "nope"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	_, err = e.ScoreID(&Request{PolicyID: domain.PolicyRelativeV0})
	assert.Equal(t, "validation", domain.ErrorKind(err))
}

func TestScore_Filter(t *testing.T) {
	e := newEngine(t, nil)

	all, err := e.Score(context.Background(), &Request{Snapshot: clusteredSnapshot(), PolicyID: domain.PolicyRelativeV0})
	require.NoError(t, err)

	filtered, err := e.Score(context.Background(), &Request{
		Snapshot: clusteredSnapshot(),
		PolicyID: domain.PolicyRelativeV0,
		Filter:   `country != "US"`,
	})
	require.NoError(t, err)

	assert.Equal(t, 120, filtered.Metrics.Totals.Total)
	assert.Equal(t, 3, filtered.Metrics.Jurisdiction.Distinct)
	assert.Equal(t, `country != "US"`, filtered.Filter)
	assert.Equal(t, all.SnapshotFingerprint, filtered.SnapshotFingerprint)
	assert.NotEqual(t, all.ID, filtered.ID)

	_, err = e.Score(context.Background(), &Request{Snapshot: clusteredSnapshot(), PolicyID: domain.PolicyRelativeV0, Filter: "country =="})
	assert.Equal(t, "validation", domain.ErrorKind(err))
}

func TestScore_ProviderGrouping(t *testing.T) {
	registry := scoring.NewDefaultRegistry()
	p := scoring.RelativeV0()
	p.ID = "relative-providers"
	p.Infrastructure.Grouping = domain.GroupByProvider
	require.NoError(t, registry.Register(p))

	e := newEngine(t, registry)
	score, err := e.Score(context.Background(), &Request{Snapshot: clusteredSnapshot(), PolicyID: "relative-providers"})
	require.NoError(t, err)

	assert.Equal(t, "provider", score.Metrics.Infrastructure.Attribute)
	// AMAZON-02, OVH, GOOGLE, DIGITALOCEAN and Hetzner map to five providers.
	assert.Equal(t, 5, score.Metrics.Infrastructure.Distinct)
	assert.Equal(t, "provider", score.Metrics.OrganizationDiversity.Attribute)
}

func TestScore_UpstreamFailures(t *testing.T) {
	e := newEngine(t, nil)

	t.Run("too few located nodes", func(t *testing.T) {
		s := &domain.NetworkSnapshot{
			Network:    "tiny",
			CapturedAt: capturedAt,
			Nodes: []domain.NodeRecord{
				domain.NewNode("a", 10, 10, "US", "A"),
				domain.NewNode("b", 11, 11, "DE", "B"),
				{ID: "c", Country: "FR", Organization: "C"},
			},
		}
		_, err := e.Score(context.Background(), &Request{Snapshot: s, PolicyID: domain.PolicyAbsoluteV0})
		require.Error(t, err)
		assert.Equal(t, "upstream", domain.ErrorKind(err))
		assert.ErrorIs(t, err, domain.ErrInsufficientData)
		assert.Equal(t, []string{domain.ModuleAutocorrelation}, domain.FailedModules(err))
	})

	t.Run("no known countries", func(t *testing.T) {
		s := clusteredSnapshot()
		for i := range s.Nodes {
			s.Nodes[i].Country = ""
		}
		_, err := e.Score(context.Background(), &Request{Snapshot: s, PolicyID: domain.PolicyAbsoluteV0})
		require.Error(t, err)

		report := Explain(err)
		assert.Equal(t, "upstream", report.Kind)
		assert.Equal(t, []string{domain.ModuleDiversity, domain.ModuleGrid}, report.FailedModules)
	})
}

func TestScore_RequestErrors(t *testing.T) {
	e := newEngine(t, nil)

	_, err := e.Score(context.Background(), &Request{Snapshot: clusteredSnapshot()})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = e.Score(context.Background(), &Request{Snapshot: clusteredSnapshot(), PolicyID: "nope"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	bad := testConfig()
	bad.GridResolution = 20
	_, err = e.Score(context.Background(), &Request{Snapshot: clusteredSnapshot(), PolicyID: domain.PolicyAbsoluteV0, Engine: &bad})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	invalid := clusteredSnapshot()
	invalid.Nodes[1].ID = invalid.Nodes[0].ID
	_, err = e.Score(context.Background(), &Request{Snapshot: invalid, PolicyID: domain.PolicyAbsoluteV0})
	assert.Equal(t, "validation", domain.ErrorKind(err))
}

func TestScore_Canceled(t *testing.T) {
	e := newEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Score(ctx, &Request{Snapshot: clusteredSnapshot(), PolicyID: domain.PolicyAbsoluteV0})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScore_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewCollector(reg)
	require.NoError(t, err)

	e := newEngine(t, nil, WithMetrics(collector))
	score, err := e.Score(context.Background(), &Request{Snapshot: clusteredSnapshot(), PolicyID: domain.PolicyRelativeV0})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.PipelineRuns.WithLabelValues(domain.PolicyRelativeV0, observability.OutcomeSuccess)))
	assert.Equal(t, score.GDI, testutil.ToFloat64(collector.Scores.WithLabelValues("testnet", domain.IndexGDI)))
	assert.Equal(t, 5, testutil.CollectAndCount(collector.StageDuration))
}
