package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// TopN is the number of most concentrated categories reported.
const TopN = 5

// Thresholds are the antitrust-style HHI interpretation cut-offs.
type Thresholds struct {
	Moderate float64
	High     float64
}

// ThresholdsFromConfig reads the thresholds from engine configuration.
func ThresholdsFromConfig(cfg domain.EngineConfig) Thresholds {
	return Thresholds{Moderate: cfg.ConcentrationModerate, High: cfg.ConcentrationHigh}
}

// Concentration is the HHI summary of a categorical distribution.
type Concentration struct {
	HHI        float64
	Normalized *float64
	Occupied   int
	Total      int
	Shares     []domain.CategoryShare
}

// HHI computes Σ s² over the shares of counts, summed in Shares order.
// Empty input is an error; one category yields exactly 1.
func HHI(module string, counts domain.CategoryCounts) (*Concentration, error) {
	shares := counts.Shares()
	if len(shares) == 0 {
		return nil, &domain.InsufficientDataError{Module: module, Required: 1, Got: 0, Detail: "no categorized nodes"}
	}
	c := &Concentration{Occupied: len(shares), Total: counts.Total(), Shares: shares}
	if len(shares) == 1 {
		c.HHI = 1
		return c, nil
	}
	for _, s := range shares {
		c.HHI += s.Share * s.Share
	}
	k := float64(len(shares))
	// Clamp rounding drift so the bounds [1/k, 1] hold exactly.
	c.HHI = math.Min(1, math.Max(1/k, c.HHI))
	c.Normalized = domain.Float((c.HHI - 1/k) / (1 - 1/k))
	return c, nil
}

// Top returns at most n leading shares.
func (c *Concentration) Top(n int) []domain.CategoryShare {
	if n > len(c.Shares) {
		n = len(c.Shares)
	}
	out := make([]domain.CategoryShare, n)
	copy(out, c.Shares[:n])
	return out
}

// Label interprets an HHI value.
func (t Thresholds) Label(hhi float64) string {
	switch {
	case hhi < t.Moderate:
		return "low concentration"
	case hhi < t.High:
		return "moderate concentration"
	default:
		return "high concentration"
	}
}

// SpatialHHI bins the located nodes and reports the HHI over occupied cells.
func SpatialHHI(cells []string, resolution int, t Thresholds) (*domain.MetricResult, domain.CategoryCounts, error) {
	if len(cells) == 0 {
		return nil, nil, &domain.InsufficientDataError{
			Module: domain.ModuleGrid, Required: 1, Got: 0, Detail: "nodes with coordinates",
		}
	}
	counts := domain.Tally(cells)
	c, err := HHI(domain.ModuleGrid, counts)
	if err != nil {
		return nil, nil, err
	}

	res := &domain.MetricResult{
		Metric:         domain.MetricSpatialHHI,
		Attribute:      fmt.Sprintf("h3_r%d", resolution),
		Value:          c.HHI,
		Expected:       domain.Float(1 / float64(c.Occupied)),
		Interpretation: fmt.Sprintf("%s across %d cells", t.Label(c.HHI), c.Occupied),
		Top:            c.Top(TopN),
		Metadata: map[string]float64{
			"occupied_cells":     float64(c.Occupied),
			"nodes":              float64(c.Total),
			"resolution":         float64(resolution),
			"max_share":          c.Shares[0].Share,
			"threshold_moderate": t.Moderate,
			"threshold_high":     t.High,
		},
	}
	if c.Normalized != nil {
		res.Metadata["normalized_hhi"] = *c.Normalized
	}
	return res, counts, nil
}

// Profile summarizes a categorical attribute for composite scoring.
func Profile(module, attribute string, counts domain.CategoryCounts, unknown int) (*domain.CategoryProfile, error) {
	c, err := HHI(module, counts)
	if err != nil {
		var ide *domain.InsufficientDataError
		if errors.As(err, &ide) {
			ide.Detail = fmt.Sprintf("no nodes with a known %s (%d unknown)", attribute, unknown)
		}
		return nil, err
	}
	return &domain.CategoryProfile{
		Attribute: attribute,
		Distinct:  c.Occupied,
		Counted:   c.Total,
		Unknown:   unknown,
		HHI:       c.HHI,
		TopShare:  c.Shares[0].Share,
		Top:       c.Top(TopN),
	}, nil
}
