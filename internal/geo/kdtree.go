package geo

import (
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// KDTree searches unit-sphere vectors with a gonum kd-tree. Straight-line (chord)
// distance on the sphere orders points the same way as great-circle distance, so
// candidates are pruned by chord and confirmed with Haversine.
type KDTree struct {
	locs   []domain.Location
	points []spherePoint
	tree   *kdtree.Tree
}

// NewKDTree builds a kd-tree index over locs.
func NewKDTree(locs []domain.Location) *KDTree {
	points := make([]spherePoint, len(locs))
	for i, l := range locs {
		points[i] = spherePoint{idx: i, v: unitVector(l)}
	}
	// kdtree.New reorders its input.
	work := make(spherePoints, len(points))
	copy(work, points)
	return &KDTree{
		locs:   locs,
		points: points,
		tree:   kdtree.New(work, false),
	}
}

// Len returns the number of indexed locations.
func (t *KDTree) Len() int { return len(t.locs) }

// Within returns every other node at most radiusKm from node i.
func (t *KDTree) Within(i int, radiusKm float64) []Neighbor {
	c := chordForDistance(radiusKm)
	c += c*1e-9 + 1e-12
	keep := kdtree.NewDistKeeper(c * c)
	t.tree.NearestSet(keep, t.points[i])

	var out []Neighbor
	for _, cd := range keep.Heap {
		if cd.Comparable == nil {
			continue
		}
		j := cd.Comparable.(spherePoint).idx
		if j == i {
			continue
		}
		if d := Haversine(t.locs[i], t.locs[j]); d <= radiusKm {
			out = append(out, Neighbor{Index: j, DistanceKm: d})
		}
	}
	sortNeighbors(out)
	return out
}

// Nearest returns the k closest other nodes to node i.
func (t *KDTree) Nearest(i int, k int) []Neighbor {
	if k <= 0 || len(t.locs) < 2 {
		return nil
	}
	keep := kdtree.NewNKeeper(k + 1)
	t.tree.NearestSet(keep, t.points[i])

	kth := 0.0
	found := 0
	for _, cd := range keep.Heap {
		if cd.Comparable == nil {
			continue
		}
		j := cd.Comparable.(spherePoint).idx
		if j == i {
			continue
		}
		found++
		if d := Haversine(t.locs[i], t.locs[j]); d > kth {
			kth = d
		}
	}
	if found == 0 {
		return nil
	}
	// Re-query by radius so ties at the k-th distance resolve by index,
	// exactly as the pairwise scan does.
	out := t.Within(i, kth)
	if k < len(out) {
		out = out[:k]
	}
	return out
}

type spherePoint struct {
	idx int
	v   [3]float64
}

func (p spherePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.v[d] - c.(spherePoint).v[d]
}

func (p spherePoint) Dims() int { return 3 }

func (p spherePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(spherePoint)
	var sum float64
	for d := range p.v {
		diff := p.v[d] - q.v[d]
		sum += diff * diff
	}
	return sum
}

type spherePoints []spherePoint

func (p spherePoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p spherePoints) Len() int                              { return len(p) }
func (p spherePoints) Pivot(d kdtree.Dim) int                { return spherePlane{Dim: d, spherePoints: p}.Pivot() }
func (p spherePoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// spherePlane pivots spherePoints on one dimension.
type spherePlane struct {
	kdtree.Dim
	spherePoints
}

func (p spherePlane) Less(i, j int) bool {
	return p.spherePoints[i].v[p.Dim] < p.spherePoints[j].v[p.Dim]
}
func (p spherePlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p spherePlane) Slice(start, end int) kdtree.SortSlicer {
	p.spherePoints = p.spherePoints[start:end]
	return p
}
func (p spherePlane) Swap(i, j int) {
	p.spherePoints[i], p.spherePoints[j] = p.spherePoints[j], p.spherePoints[i]
}

var (
	_ kdtree.Interface  = spherePoints(nil)
	_ kdtree.SortSlicer = spherePlane{}
)
