// Package diversity computes Shannon entropy and the effective number of
// categories for any categorical attribute.
package diversity

import (
	"fmt"
	"math"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// Evenness interpretation cut-offs on D/k.
const (
	VeryEven       = 0.8
	ModeratelyEven = 0.5
)

// Entropy computes H = -Σ p ln p over the shares of counts and the effective
// number D = exp(H). The same function serves countries, organizations and grid
// cells. Zero-count categories are ignored; one category yields H = 0, D = 1.
func Entropy(attribute string, counts domain.CategoryCounts) (*domain.MetricResult, error) {
	shares := counts.Shares()
	k := len(shares)
	if k == 0 {
		return nil, &domain.InsufficientDataError{
			Module:   domain.ModuleDiversity,
			Required: 1,
			Got:      0,
			Detail:   fmt.Sprintf("no nodes with a known %s", attribute),
		}
	}

	var h float64
	for _, s := range shares {
		h -= s.Share * math.Log(s.Share)
	}
	if k == 1 {
		h = 0
	}
	// Clamp rounding drift so 1 <= D <= k holds exactly.
	d := math.Min(float64(k), math.Max(1, math.Exp(h)))
	evenness := d / float64(k)

	res := &domain.MetricResult{
		Metric:         domain.MetricEffectiveNumber,
		Attribute:      attribute,
		Value:          d,
		Interpretation: fmt.Sprintf("%s (%.1f effective of %d)", evennessLabel(evenness), d, k),
		Top:            topShares(shares, 5),
		Metadata: map[string]float64{
			"entropy":  h,
			"distinct": float64(k),
			"evenness": evenness,
			"gap":      float64(k) - d,
			"nodes":    float64(counts.Total()),
		},
	}
	if k > 1 {
		res.Metadata["normalized_entropy"] = h / math.Log(float64(k))
	}
	return res, nil
}

func evennessLabel(e float64) string {
	switch {
	case e > VeryEven:
		return "very even"
	case e > ModeratelyEven:
		return "moderately even"
	default:
		return "uneven"
	}
}

func topShares(shares []domain.CategoryShare, n int) []domain.CategoryShare {
	if n > len(shares) {
		n = len(shares)
	}
	out := make([]domain.CategoryShare, n)
	copy(out, shares[:n])
	return out
}
