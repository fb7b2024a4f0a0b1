package domain

import "time"

// CompositeScore is the final artifact of one engine run.
// It carries the policy and engine parameters that produced it; a score is not
// reproducible without them.
type CompositeScore struct {
	ID                  string    `json:"id"`
	Network             string    `json:"network"`
	CapturedAt          time.Time `json:"capturedAt"`
	SnapshotFingerprint string    `json:"snapshotFingerprint"`
	Filter              string    `json:"filter,omitempty"`

	Physical       SubIndex `json:"physical"`
	Jurisdictional SubIndex `json:"jurisdictional"`
	Infrastructure SubIndex `json:"infrastructure"`

	// NetworkSize is the scale-dependent term, reported even when the policy gives it no weight.
	NetworkSize float64 `json:"networkSize"`

	// GDI is the policy blend, including the size term when weighted.
	GDI float64 `json:"gdi"`

	// ScaleInvariantGDI blends only the sub-indices, with their weights renormalized.
	ScaleInvariantGDI float64 `json:"scaleInvariantGdi"`

	Interpretation string `json:"interpretation"`

	Policy  ScoringPolicy `json:"policy"`
	Engine  EngineConfig  `json:"engine"`
	Metrics LeafMetrics   `json:"metrics"`

	EngineVersion string `json:"engineVersion"`
}

// SubIndex is one 0-100 sub-score with its component breakdown.
type SubIndex struct {
	Name           string      `json:"name"`
	Score          float64     `json:"score"`
	Raw            float64     `json:"raw"`
	Interpretation string      `json:"interpretation"`
	Components     []Component `json:"components"`
}

// Component shows how one normalized term contributed to a sub-index.
type Component struct {
	Name         string  `json:"name"`
	Input        float64 `json:"input"`
	Normalized   float64 `json:"normalized"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"` // signed points on the 0-100 scale
}

// Sub-index names.
const (
	IndexPhysical       = "physical_distribution"
	IndexJurisdictional = "jurisdictional_diversity"
	IndexInfrastructure = "infrastructure_heterogeneity"
	IndexNetworkSize    = "network_size"
	IndexGDI            = "gdi"
)

// ScoreSummary is the row stored for history queries.
type ScoreSummary struct {
	ID                string    `json:"id"`
	Network           string    `json:"network"`
	PolicyID          string    `json:"policyId"`
	PolicyVersion     string    `json:"policyVersion"`
	CapturedAt        time.Time `json:"capturedAt"`
	GDI               float64   `json:"gdi"`
	ScaleInvariantGDI float64   `json:"scaleInvariantGdi"`
	Physical          float64   `json:"physical"`
	Jurisdictional    float64   `json:"jurisdictional"`
	Infrastructure    float64   `json:"infrastructure"`
	NetworkSize       float64   `json:"networkSize"`
	TotalNodes        int       `json:"totalNodes"`
}

// Summary projects the score onto its history row.
func (s *CompositeScore) Summary() ScoreSummary {
	return ScoreSummary{
		ID:                s.ID,
		Network:           s.Network,
		PolicyID:          s.Policy.ID,
		PolicyVersion:     s.Policy.Version,
		CapturedAt:        s.CapturedAt,
		GDI:               s.GDI,
		ScaleInvariantGDI: s.ScaleInvariantGDI,
		Physical:          s.Physical.Score,
		Jurisdictional:    s.Jurisdictional.Score,
		Infrastructure:    s.Infrastructure.Score,
		NetworkSize:       s.NetworkSize,
		TotalNodes:        s.Metrics.Totals.Total,
	}
}
