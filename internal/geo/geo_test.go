package geo

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name string
		a, b domain.Location
		want float64
		tol  float64
	}{
		{"same point", domain.Location{Lat: 10, Lon: 20}, domain.Location{Lat: 10, Lon: 20}, 0, 0},
		{"one degree on equator", domain.Location{Lat: 0, Lon: 0}, domain.Location{Lat: 0, Lon: 1}, 111.19, 0.01},
		{"london paris", domain.Location{Lat: 51.5074, Lon: -0.1278}, domain.Location{Lat: 48.8566, Lon: 2.3522}, 343.5, 1},
		{"antipodes", domain.Location{Lat: 0, Lon: 0}, domain.Location{Lat: 0, Lon: 180}, math.Pi * EarthRadiusKm, 1e-6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, tt.tol)
			assert.Equal(t, got, Haversine(tt.b, tt.a))
		})
	}
}

func TestBoundingBoxArea(t *testing.T) {
	b := Bounds([]domain.Location{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}, {Lat: 0.5, Lon: 0.2}})
	assert.Equal(t, BoundingBox{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1}, b)
	assert.InDelta(t, 12363.6, b.AreaKm2(), 1)

	flat := Bounds([]domain.Location{{Lat: 5, Lon: 5}, {Lat: 5, Lon: 5}})
	assert.Equal(t, 0.0, flat.AreaKm2())
}

func randomLocations(n int, seed uint64) []domain.Location {
	rng := rand.New(rand.NewPCG(seed, 1))
	locs := make([]domain.Location, n)
	for i := range locs {
		locs[i] = domain.Location{Lat: rng.Float64()*40 - 20, Lon: rng.Float64()*60 - 30}
	}
	// Coincident nodes are legal input.
	locs[n-1] = locs[0]
	locs[n-2] = locs[1]
	return locs
}

func TestKDTreeMatchesBruteForce(t *testing.T) {
	locs := randomLocations(400, 7)
	brute := NewBruteForce(locs)
	tree := NewKDTree(locs)
	require.Equal(t, brute.Len(), tree.Len())

	for _, radius := range []float64{0, 50, 500, 2500} {
		for i := range locs {
			require.Equal(t, brute.Within(i, radius), tree.Within(i, radius), "within radius=%v node=%d", radius, i)
		}
	}
	for _, k := range []int{1, 5, 12} {
		for i := range locs {
			require.Equal(t, brute.Nearest(i, k), tree.Nearest(i, k), "nearest k=%d node=%d", k, i)
		}
	}
}

func TestNeighborsExcludeSelf(t *testing.T) {
	locs := []domain.Location{{Lat: 1, Lon: 1}, {Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}}
	for _, idx := range []NeighborIndex{NewBruteForce(locs), NewKDTree(locs)} {
		within := idx.Within(0, 1)
		require.Len(t, within, 1)
		assert.Equal(t, 1, within[0].Index)
		assert.Equal(t, 0.0, within[0].DistanceKm)

		nearest := idx.Nearest(2, 5)
		require.Len(t, nearest, 2)
		assert.Equal(t, 0, nearest[0].Index)
		assert.Equal(t, 1, nearest[1].Index)
	}
}

func TestNewIndexSelectsBySize(t *testing.T) {
	locs := randomLocations(10, 3)
	_, isBrute := NewIndex(locs, 10).(*BruteForce)
	assert.True(t, isBrute)
	_, isTree := NewIndex(locs, 9).(*KDTree)
	assert.True(t, isTree)
}

func TestDestinationRoundTrip(t *testing.T) {
	origin := domain.Location{Lat: 48.1, Lon: 11.6}
	for _, bearing := range []float64{0, 45, 137.5, 270} {
		for _, dist := range []float64{0.1, 9, 500} {
			dest := Destination(origin, bearing, dist)
			assert.InDelta(t, dist, Haversine(origin, dest), 1e-6*dist+1e-9)
		}
	}
}
