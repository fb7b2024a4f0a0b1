package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// scoreNamespace seeds deterministic score IDs.
var scoreNamespace = uuid.MustParse("6f1c2a44-4a2e-5c57-9d0b-3f7e2b8a9c10")

// Input contains everything the composite needs from one engine run.
type Input struct {
	Network     string
	CapturedAt  time.Time
	Fingerprint string
	Filter      string
	Engine      domain.EngineConfig
	Metrics     domain.LeafMetrics
}

// Scorer combines leaf metrics into sub-indices and the composite GDI.
type Scorer struct {
	EngineVersion string
}

// NewScorer creates a scorer that stamps results with the engine version.
func NewScorer(engineVersion string) *Scorer {
	return &Scorer{EngineVersion: engineVersion}
}

// Score evaluates the policy over the leaf metrics. Missing leaves fail the
// composite; no default is substituted.
func (s *Scorer) Score(in *Input, policy *domain.ScoringPolicy) (*domain.CompositeScore, error) {
	if policy == nil {
		return nil, &domain.ConfigurationError{Field: "policy", Reason: "is required"}
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	physical, err := PhysicalIndex(&in.Metrics, &policy.Physical)
	if err != nil {
		return nil, err
	}
	jurisdictional, err := CategoricalIndex(domain.IndexJurisdictional, in.Metrics.Jurisdiction, &policy.Jurisdictional)
	if err != nil {
		return nil, err
	}
	infrastructure, err := CategoricalIndex(domain.IndexInfrastructure, in.Metrics.Infrastructure, &policy.Infrastructure)
	if err != nil {
		return nil, err
	}

	cw := policy.Composite.Weights
	size := NetworkSize(in.Metrics.Totals.Total, policy.Composite.SizeReference)

	gdi := cw.Physical*physical.Score +
		cw.Jurisdictional*jurisdictional.Score +
		cw.Infrastructure*infrastructure.Score +
		cw.NetworkSize*size
	gdi = clamp(gdi, 0, 100)

	invariant := ScaleInvariant(physical.Score, jurisdictional.Score, infrastructure.Score, cw)

	id, err := ScoreID(in, policy)
	if err != nil {
		return nil, err
	}

	return &domain.CompositeScore{
		ID:                  id,
		Network:             in.Network,
		CapturedAt:          in.CapturedAt,
		SnapshotFingerprint: in.Fingerprint,
		Filter:              in.Filter,
		Physical:            *physical,
		Jurisdictional:      *jurisdictional,
		Infrastructure:      *infrastructure,
		NetworkSize:         size,
		GDI:                 gdi,
		ScaleInvariantGDI:   invariant,
		Interpretation:      InterpretComposite(gdi),
		Policy:              *policy,
		Engine:              in.Engine,
		Metrics:             in.Metrics,
		EngineVersion:       s.EngineVersion,
	}, nil
}

// PhysicalIndex blends (1 - Moran's I), the location term, (1 - spatial HHI)
// and the optional nearest-neighbor term.
func PhysicalIndex(m *domain.LeafMetrics, p *domain.PhysicalPolicy) (*domain.SubIndex, error) {
	if err := requireMetric(domain.ModuleAutocorrelation, m.Autocorrelation); err != nil {
		return nil, err
	}
	if err := requireMetric(domain.ModuleGrid, m.SpatialConcentration); err != nil {
		return nil, err
	}
	if err := requireMetric(domain.ModuleDiversity, m.LocationDiversity); err != nil {
		return nil, err
	}
	if p.Weights.NearestNeighbor > 0 {
		if err := requireMetric(domain.ModulePointPattern, m.NearestNeighbor); err != nil {
			return nil, err
		}
	}

	moran := m.Autocorrelation.Value
	effective := m.LocationDiversity.Value
	hhi := m.SpatialConcentration.Value

	var locations float64
	switch p.LocationNormalization {
	case domain.NormalizeAbsolute:
		locations = math.Min(1, effective/p.LocationCap)
	case domain.NormalizeRelative:
		occupied, ok := m.LocationDiversity.Meta("distinct")
		if !ok || occupied <= 0 {
			return nil, &domain.UpstreamFailure{Module: domain.ModuleDiversity,
				Err: fmt.Errorf("%w: location diversity has no occupied cell count", domain.ErrInsufficientData)}
		}
		locations = effective / occupied
	}

	components := []domain.Component{
		component("morans_i", moran, clamp(1-moran, 0, 1), p.Weights.Autocorrelation),
		component("effective_locations", effective, clamp(locations, 0, 1), p.Weights.Locations),
		component("spatial_hhi", hhi, clamp(1-hhi, 0, 1), p.Weights.Concentration),
	}
	if p.Weights.NearestNeighbor > 0 {
		r := m.NearestNeighbor.Value
		components = append(components, component("nearest_neighbor_ratio", r, clamp(r, 0, 1), p.Weights.NearestNeighbor))
	}
	return subIndex(domain.IndexPhysical, components, InterpretPhysical), nil
}

// CategoricalIndex blends (1 - HHI), the logarithmic diversity bonus and the
// dominance penalty of one categorical distribution.
func CategoricalIndex(name string, profile *domain.CategoryProfile, p *domain.CategoricalPolicy) (*domain.SubIndex, error) {
	if profile == nil {
		return nil, &domain.UpstreamFailure{Module: domain.ModuleGrid,
			Err: fmt.Errorf("%w: %s profile missing", domain.ErrInsufficientData, name)}
	}
	w := p.Weights
	components := []domain.Component{
		component("categorical_hhi", profile.HHI, clamp(1-profile.HHI, 0, 1), w.Concentration),
	}
	if w.Diversity > 0 {
		components = append(components, component("diversity_bonus", float64(profile.Distinct),
			DiversityBonus(profile.Distinct, p.DiversityLogDivisor), w.Diversity))
	}
	if w.Penalty > 0 {
		components = append(components, component("dominance_penalty", profile.TopShare,
			Penalty(profile.TopShare, p.PenaltyThreshold, p.PenaltyCeiling), -w.Penalty))
	}
	return subIndex(name, components, InterpretCategorical), nil
}

// DiversityBonus returns min(1, log10(count)/divisor).
func DiversityBonus(count int, divisor float64) float64 {
	if count <= 1 || divisor <= 0 {
		return 0
	}
	return math.Min(1, math.Log10(float64(count))/divisor)
}

// Penalty grows linearly from 0 at the threshold share to 1 at the ceiling.
func Penalty(topShare, threshold, ceiling float64) float64 {
	if ceiling <= threshold {
		return 0
	}
	return clamp((topShare-threshold)/(ceiling-threshold), 0, 1)
}

// NetworkSize returns 100 * min(1, sqrt(total/reference)).
func NetworkSize(total int, reference float64) float64 {
	if reference <= 0 || total <= 0 {
		return 0
	}
	return 100 * math.Min(1, math.Sqrt(float64(total)/reference))
}

// ScaleInvariant blends the sub-indices alone with their weights renormalized.
func ScaleInvariant(physical, jurisdictional, infrastructure float64, w domain.CompositeWeights) float64 {
	sum := w.Physical + w.Jurisdictional + w.Infrastructure
	if sum <= 0 {
		return 0
	}
	v := (w.Physical*physical + w.Jurisdictional*jurisdictional + w.Infrastructure*infrastructure) / sum
	return clamp(v, 0, 100)
}

// ScoreID derives a stable ID from the snapshot fingerprint, policy, engine
// parameters and filter. Identical inputs always map to the same score.
func ScoreID(in *Input, policy *domain.ScoringPolicy) (string, error) {
	engine, err := json.Marshal(in.Engine)
	if err != nil {
		return "", fmt.Errorf("encode engine config: %w", err)
	}
	key := fmt.Sprintf("%s|%s|%s@%s|%s|%s", in.Network, in.Fingerprint, policy.ID, policy.Version, engine, in.Filter)
	return uuid.NewSHA1(scoreNamespace, []byte(key)).String(), nil
}

func requireMetric(module string, m *domain.MetricResult) error {
	if m == nil {
		return &domain.UpstreamFailure{Module: module,
			Err: fmt.Errorf("%w: %s result missing", domain.ErrInsufficientData, module)}
	}
	return nil
}

func component(name string, input, normalized, weight float64) domain.Component {
	return domain.Component{
		Name:         name,
		Input:        input,
		Normalized:   normalized,
		Weight:       weight,
		Contribution: 100 * weight * normalized,
	}
}

func subIndex(name string, components []domain.Component, interpret func(float64) string) *domain.SubIndex {
	raw := 0.0
	for _, c := range components {
		raw += c.Contribution
	}
	score := clamp(raw, 0, 100)
	return &domain.SubIndex{
		Name:           name,
		Score:          score,
		Raw:            raw,
		Interpretation: interpret(score),
		Components:     components,
	}
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
