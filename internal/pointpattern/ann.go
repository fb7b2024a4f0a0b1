// Package pointpattern tests node locations against complete spatial randomness
// with the Average Nearest Neighbor statistic.
package pointpattern

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/geo"
)

// MinNodes is the smallest input with a definable nearest neighbor.
const MinNodes = 2

// seCoefficient is the standard-error constant of the Clark-Evans test.
const seCoefficient = 0.26136

// AverageNearestNeighbor compares the mean nearest-neighbor distance with its
// expectation under a Poisson process over the bounding box of the nodes:
// D_exp = 0.5/sqrt(n/A), SE = 0.26136/sqrt(n²/A), R = D_obs/D_exp.
func AverageNearestNeighbor(locs []domain.Location, bruteForceLimit int) (*domain.MetricResult, error) {
	n := len(locs)
	if n < MinNodes {
		return nil, &domain.InsufficientDataError{
			Module:   domain.ModulePointPattern,
			Required: MinNodes,
			Got:      n,
			Detail:   "nodes with coordinates",
		}
	}

	box := geo.Bounds(locs)
	area := box.AreaKm2()
	if !(area > 0) {
		return nil, &domain.DegenerateInputError{
			Module: domain.ModulePointPattern,
			Reason: fmt.Sprintf("bounding box has zero area (lat %v..%v, lon %v..%v)",
				box.MinLat, box.MaxLat, box.MinLon, box.MaxLon),
			Nodes: n,
		}
	}

	idx := geo.NewIndex(locs, bruteForceLimit)
	dists := make([]float64, n)
	for i := range dists {
		dists[i] = idx.Nearest(i, 1)[0].DistanceKm
	}
	nf := float64(n)
	observed := floats.Sum(dists) / nf
	expected := 0.5 / math.Sqrt(nf/area)
	se := seCoefficient / math.Sqrt(nf*nf/area)
	ratio := observed / expected
	z := (observed - expected) / se
	p := 2 * (1 - distuv.UnitNormal.CDF(math.Abs(z)))

	return &domain.MetricResult{
		Metric:         domain.MetricNearestNeighbor,
		Value:          ratio,
		Expected:       domain.Float(1),
		PValue:         domain.Float(p),
		ZScore:         domain.Float(z),
		Interpretation: domain.PatternLabel(&p, ratio < 1),
		Metadata: map[string]float64{
			"nodes":             nf,
			"observed_mean_km":  observed,
			"expected_mean_km":  expected,
			"standard_error_km": se,
			"max_nearest_km":    floats.Max(dists),
			"area_km2":          area,
			"density_per_km2":   nf / area,
		},
	}, nil
}
