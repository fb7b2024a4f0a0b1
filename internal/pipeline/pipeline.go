// Package pipeline runs the scoring engine over one snapshot: validation,
// optional node filtering, binning, the parallel leaf modules and the composite.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/autocorr"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/diversity"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/filter"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/grid"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/observability"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/pointpattern"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/provider"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/scoring"
)

var tracer = otel.Tracer("geobeat-pipeline")

// PolicySource resolves scoring policies by ID and version.
type PolicySource interface {
	Get(id, version string) (*domain.ScoringPolicy, error)
}

// Engine scores snapshots. It holds no per-run state and is safe for concurrent use.
type Engine struct {
	cfg      domain.EngineConfig
	policies PolicySource
	scorer   *scoring.Scorer
	metrics  *observability.Collector
	logger   *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMetrics records stage timings and outcomes on c.
func WithMetrics(c *observability.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine with the given default parameters.
func New(cfg domain.EngineConfig, policies PolicySource, scorer *scoring.Scorer, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if policies == nil {
		return nil, fmt.Errorf("policy source is required")
	}
	if scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	e := &Engine{
		cfg:      cfg,
		policies: policies,
		scorer:   scorer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's default parameters.
func (e *Engine) Config() domain.EngineConfig {
	return e.cfg
}

// Request describes one scoring run.
type Request struct {
	Snapshot      *domain.NetworkSnapshot
	PolicyID      string
	PolicyVersion string

	// Filter is an optional CEL node predicate applied before any module runs.
	Filter string

	// Engine overrides the engine defaults for this run when set.
	Engine *domain.EngineConfig
}

// Score runs the full pipeline. Leaf failures are joined into one error made of
// UpstreamFailures; no partial score is returned.
func (e *Engine) Score(ctx context.Context, req *Request) (score *domain.CompositeScore, err error) {
	start := time.Now()
	var policyID string
	if req != nil {
		policyID = req.PolicyID
	}

	ctx, span := tracer.Start(ctx, "pipeline.Score", trace.WithAttributes(
		attribute.String("policy", policyID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.metrics.RecordRun(policyID, err)
	}()

	pl, err := e.prepare(req)
	if err != nil {
		return nil, err
	}
	policy, cfg := pl.policy, pl.cfg

	stageStart := time.Now()
	if err := req.Snapshot.Validate(); err != nil {
		return nil, err
	}
	e.metrics.ObserveStage(observability.StageValidate, time.Since(stageStart))
	span.SetAttributes(
		attribute.String("network", req.Snapshot.Network),
		attribute.Int("nodes", len(req.Snapshot.Nodes)),
	)

	stageStart = time.Now()
	f := pl.filter
	snapshot, err := f.Apply(req.Snapshot)
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveStage(observability.StageFilter, time.Since(stageStart))

	metrics, err := e.Analyze(ctx, snapshot, cfg, policy.Infrastructure.Grouping)
	if err != nil {
		return nil, err
	}

	stageStart = time.Now()
	score, err = e.scorer.Score(&scoring.Input{
		Network:     req.Snapshot.Network,
		CapturedAt:  req.Snapshot.CapturedAt,
		Fingerprint: req.Snapshot.Fingerprint(),
		Filter:      f.String(),
		Engine:      cfg,
		Metrics:     metrics,
	}, policy)
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveStage(observability.StageComposite, time.Since(stageStart))
	e.metrics.SetScore(score)

	e.logger.Info("score computed",
		"network", score.Network,
		"policy", policy.ID,
		"policy_version", policy.Version,
		"score_id", score.ID,
		"gdi", score.GDI,
		"nodes", metrics.Totals.Total,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return score, nil
}

// plan is a request resolved against the registry and engine defaults.
type plan struct {
	policy *domain.ScoringPolicy
	cfg    domain.EngineConfig
	filter *filter.Filter
}

func (e *Engine) prepare(req *Request) (*plan, error) {
	if req == nil || req.Snapshot == nil {
		return nil, &domain.ValidationError{Field: "snapshot", Reason: "is required"}
	}
	if req.PolicyID == "" {
		return nil, &domain.ConfigurationError{Field: "policy", Reason: "is required; no default policy is assumed"}
	}
	policy, err := e.policies.Get(req.PolicyID, req.PolicyVersion)
	if err != nil {
		return nil, err
	}

	cfg := e.cfg
	if req.Engine != nil {
		cfg = *req.Engine
		if cfg.Workers <= 0 {
			cfg.Workers = e.cfg.Workers
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	f, err := filter.Compile(req.Filter)
	if err != nil {
		return nil, err
	}
	return &plan{policy: policy, cfg: cfg, filter: f}, nil
}

// ScoreID returns the ID Score would assign to req without running any module.
// Callers use it to look up cached or stored results.
func (e *Engine) ScoreID(req *Request) (string, error) {
	pl, err := e.prepare(req)
	if err != nil {
		return "", err
	}
	return scoring.ScoreID(&scoring.Input{
		Network:     req.Snapshot.Network,
		Fingerprint: req.Snapshot.Fingerprint(),
		Filter:      pl.filter.String(),
		Engine:      pl.cfg,
	}, pl.policy)
}

// leaf is one independent module run over the shared inputs.
type leaf struct {
	module string
	run    func(ctx context.Context) error
}

// Analyze runs every leaf module over the snapshot. Leaves share read-only
// inputs and write to distinct fields, so they run in parallel.
func (e *Engine) Analyze(ctx context.Context, s *domain.NetworkSnapshot, cfg domain.EngineConfig, grouping domain.Grouping) (domain.LeafMetrics, error) {
	out := domain.LeafMetrics{Totals: s.Totals()}
	locs, ids := s.LocatedNodes()

	stageStart := time.Now()
	binner, err := grid.NewH3Binner(cfg.GridResolution)
	if err != nil {
		return out, err
	}
	cells := grid.Assign(binner, locs)
	e.metrics.ObserveStage(observability.StageBin, time.Since(stageStart))

	countries, unknownCountries := tallyNodes(s, func(n *domain.NodeRecord) string { return n.Country })
	orgAttribute := "organization"
	orgLabel := func(n *domain.NodeRecord) string { return n.Organization }
	if grouping == domain.GroupByProvider {
		orgAttribute = "provider"
		orgLabel = func(n *domain.NodeRecord) string { return provider.Categorize(n.Organization, n.Hosting) }
	}
	orgs, unknownOrgs := tallyNodes(s, orgLabel)
	thresholds := grid.ThresholdsFromConfig(cfg)
	cellAttribute := fmt.Sprintf("h3_r%d", cfg.GridResolution)

	leaves := []leaf{
		{domain.ModuleAutocorrelation, func(ctx context.Context) (err error) {
			out.Autocorrelation, err = autocorr.MoransI(ctx, locs, ids, autocorr.OptionsFromConfig(cfg))
			return err
		}},
		{domain.ModuleGrid, func(context.Context) (err error) {
			out.SpatialConcentration, _, err = grid.SpatialHHI(cells, cfg.GridResolution, thresholds)
			return err
		}},
		{domain.ModuleDiversity, func(context.Context) (err error) {
			out.LocationDiversity, err = diversity.Entropy(cellAttribute, domain.Tally(cells))
			return err
		}},
		{domain.ModuleGrid, func(context.Context) (err error) {
			out.Jurisdiction, err = grid.Profile(domain.ModuleGrid, "country", countries, unknownCountries)
			return err
		}},
		{domain.ModuleDiversity, func(context.Context) (err error) {
			out.CountryDiversity, err = diversity.Entropy("country", countries)
			return err
		}},
		{domain.ModuleGrid, func(context.Context) (err error) {
			out.Infrastructure, err = grid.Profile(domain.ModuleGrid, orgAttribute, orgs, unknownOrgs)
			return err
		}},
		{domain.ModuleDiversity, func(context.Context) (err error) {
			out.OrganizationDiversity, err = diversity.Entropy(orgAttribute, orgs)
			return err
		}},
		{domain.ModulePointPattern, func(context.Context) (err error) {
			out.NearestNeighbor, err = pointpattern.AverageNearestNeighbor(locs, cfg.BruteForceLimit)
			return err
		}},
	}

	stageStart = time.Now()
	var (
		mu       sync.Mutex
		failures []error
	)
	var g errgroup.Group
	for _, l := range leaves {
		g.Go(func() error {
			lctx, span := tracer.Start(ctx, "leaf."+l.module)
			defer span.End()

			if err := l.run(lctx); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.metrics.RecordLeafFailure(l.module, err)
				mu.Lock()
				failures = append(failures, &domain.UpstreamFailure{Module: l.module, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	e.metrics.ObserveStage(observability.StageLeaves, time.Since(stageStart))

	if len(failures) > 0 {
		e.logger.Warn("leaf modules failed",
			"network", s.Network,
			"failed", len(failures),
			"nodes", out.Totals.Total,
			"located", out.Totals.Located,
		)
		return out, errors.Join(sortFailures(failures)...)
	}
	return out, nil
}

// tallyNodes counts non-empty labels and the nodes whose label is unknown.
func tallyNodes(s *domain.NetworkSnapshot, label func(*domain.NodeRecord) string) (domain.CategoryCounts, int) {
	counts := make(domain.CategoryCounts)
	unknown := 0
	for i := range s.Nodes {
		l := label(&s.Nodes[i])
		if l == "" {
			unknown++
			continue
		}
		counts[l]++
	}
	return counts, unknown
}
