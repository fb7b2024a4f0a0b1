// Package autocorr measures global spatial autocorrelation (Moran's I) over
// distance-band spatial weights.
package autocorr

import (
	"sort"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/geo"
)

// Weights is a binary distance-band neighbor structure, row-standardized on use:
// w_ij = 1/|N(i)| for j in N(i), so every non-isolated row sums to 1.
type Weights struct {
	ThresholdKm float64

	// Neighbors[i] lists the neighbors of node i in ascending index order.
	Neighbors [][]int

	// Isolated lists nodes with no neighbor inside the threshold.
	Isolated []int
}

// BuildWeights builds the distance-band weights for every indexed node.
func BuildWeights(idx geo.NeighborIndex, thresholdKm float64) *Weights {
	n := idx.Len()
	w := &Weights{
		ThresholdKm: thresholdKm,
		Neighbors:   make([][]int, n),
	}
	for i := 0; i < n; i++ {
		found := idx.Within(i, thresholdKm)
		if len(found) == 0 {
			w.Isolated = append(w.Isolated, i)
			continue
		}
		nbrs := make([]int, len(found))
		for k, f := range found {
			nbrs[k] = f.Index
		}
		sort.Ints(nbrs)
		w.Neighbors[i] = nbrs
	}
	return w
}

// Len returns the number of nodes, isolated ones included.
func (w *Weights) Len() int { return len(w.Neighbors) }

// Connected returns the indices of non-isolated nodes in ascending order.
func (w *Weights) Connected() []int {
	out := make([]int, 0, len(w.Neighbors)-len(w.Isolated))
	for i, nbrs := range w.Neighbors {
		if len(nbrs) > 0 {
			out = append(out, i)
		}
	}
	return out
}

// Links returns the number of nonzero w_ij.
func (w *Weights) Links() int {
	total := 0
	for _, nbrs := range w.Neighbors {
		total += len(nbrs)
	}
	return total
}
