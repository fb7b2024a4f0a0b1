package autocorr

import (
	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/geo"
)

// LocalDensity returns 1/(1 + d_k) for every node, d_k being the great-circle
// distance in km to its k-th nearest other node. k is reduced to n-1 for small inputs.
func LocalDensity(idx geo.NeighborIndex, k int) []float64 {
	n := idx.Len()
	if k > n-1 {
		k = n - 1
	}
	out := make([]float64, n)
	for i := range out {
		nbrs := idx.Nearest(i, k)
		if len(nbrs) == 0 {
			continue
		}
		out[i] = 1 / (1 + nbrs[len(nbrs)-1].DistanceKm)
	}
	return out
}

// attributeValues resolves the attribute tested for autocorrelation.
func attributeValues(idx geo.NeighborIndex, opts Options) ([]float64, string, error) {
	if opts.Values != nil {
		if len(opts.Values) != idx.Len() {
			return nil, "", &domain.ConfigurationError{Field: "autocorr.values", Value: len(opts.Values),
				Reason: "must have one value per located node"}
		}
		return opts.Values, "custom", nil
	}
	switch opts.Attribute {
	case domain.AttributeUniform:
		out := make([]float64, idx.Len())
		for i := range out {
			out[i] = 1
		}
		return out, string(domain.AttributeUniform), nil
	case domain.AttributeDensity, "":
		return LocalDensity(idx, opts.DensityNeighbors), string(domain.AttributeDensity), nil
	default:
		return nil, "", &domain.ConfigurationError{Field: "engine.attribute", Value: opts.Attribute,
			Reason: "must be density or uniform"}
	}
}
