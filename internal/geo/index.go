package geo

import (
	"sort"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// Neighbor is another node found by a search, with its great-circle distance.
type Neighbor struct {
	Index      int
	DistanceKm float64
}

// NeighborIndex answers neighbor queries over a fixed set of locations.
// Results never include the query node itself and are ordered by
// distance, then index, so every implementation returns identical answers.
type NeighborIndex interface {
	// Len returns the number of indexed locations.
	Len() int

	// Within returns every other node at most radiusKm from node i.
	Within(i int, radiusKm float64) []Neighbor

	// Nearest returns the k closest other nodes to node i.
	Nearest(i int, k int) []Neighbor
}

// DefaultBruteForceLimit is the input size above which NewIndex builds a kd-tree.
const DefaultBruteForceLimit = 2048

// NewIndex selects the brute-force index for small inputs and the kd-tree otherwise.
func NewIndex(locs []domain.Location, bruteForceLimit int) NeighborIndex {
	if len(locs) <= bruteForceLimit {
		return NewBruteForce(locs)
	}
	return NewKDTree(locs)
}

// BruteForce scans every pair. It is the reference implementation.
type BruteForce struct {
	locs []domain.Location
}

// NewBruteForce creates a pairwise-scan index.
func NewBruteForce(locs []domain.Location) *BruteForce {
	return &BruteForce{locs: locs}
}

// Len returns the number of indexed locations.
func (b *BruteForce) Len() int { return len(b.locs) }

// Within returns every other node at most radiusKm from node i.
func (b *BruteForce) Within(i int, radiusKm float64) []Neighbor {
	var out []Neighbor
	for j := range b.locs {
		if j == i {
			continue
		}
		if d := Haversine(b.locs[i], b.locs[j]); d <= radiusKm {
			out = append(out, Neighbor{Index: j, DistanceKm: d})
		}
	}
	sortNeighbors(out)
	return out
}

// Nearest returns the k closest other nodes to node i.
func (b *BruteForce) Nearest(i int, k int) []Neighbor {
	out := make([]Neighbor, 0, len(b.locs)-1)
	for j := range b.locs {
		if j == i {
			continue
		}
		out = append(out, Neighbor{Index: j, DistanceKm: Haversine(b.locs[i], b.locs[j])})
	}
	sortNeighbors(out)
	if k < len(out) {
		out = out[:k]
	}
	return out
}

func sortNeighbors(ns []Neighbor) {
	sort.Slice(ns, func(a, b int) bool {
		if ns[a].DistanceKm != ns[b].DistanceKm {
			return ns[a].DistanceKm < ns[b].DistanceKm
		}
		return ns[a].Index < ns[b].Index
	})
}
