package grid

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/geo"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/ingest"
)

var captured = time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

func defaultThresholds() Thresholds {
	return ThresholdsFromConfig(domain.DefaultEngineConfig())
}

func TestHHI(t *testing.T) {
	tests := []struct {
		name       string
		counts     domain.CategoryCounts
		want       float64
		normalized *float64
	}{
		{"single category", domain.CategoryCounts{"US": 7}, 1, nil},
		{"two equal", domain.CategoryCounts{"US": 5, "DE": 5}, 0.5, domain.Float(0)},
		{"dominant", domain.CategoryCounts{"US": 3, "DE": 1}, 0.625, domain.Float(0.25)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := HHI("test", tt.counts)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, c.HHI, 1e-12)
			if tt.normalized == nil {
				assert.Nil(t, c.Normalized)
			} else {
				require.NotNil(t, c.Normalized)
				assert.InDelta(t, *tt.normalized, *c.Normalized, 1e-12)
			}
		})
	}

	_, err := HHI("test", domain.CategoryCounts{})
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestThresholdLabels(t *testing.T) {
	th := defaultThresholds()
	assert.Equal(t, "low concentration", th.Label(0.1499))
	assert.Equal(t, "moderate concentration", th.Label(0.15))
	assert.Equal(t, "moderate concentration", th.Label(0.2499))
	assert.Equal(t, "high concentration", th.Label(0.25))
}

func TestBinningIsStableAndOrderIndependent(t *testing.T) {
	b, err := NewH3Binner(5)
	require.NoError(t, err)

	s := ingest.NewGenerator(5).Clustered("eth", 200, captured)
	locs, _ := s.LocatedNodes()
	first := Assign(b, locs)

	reversed := make([]domain.Location, len(locs))
	for i := range locs {
		reversed[len(locs)-1-i] = locs[i]
	}
	second := Assign(b, reversed)
	for i := range first {
		assert.Equal(t, first[i], second[len(locs)-1-i])
		assert.Equal(t, first[i], b.Cell(locs[i]))
	}

	_, err = NewH3Binner(16)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestSpatialHHIClusteredFixture(t *testing.T) {
	s := ingest.CoreAndRing("cluster", domain.Location{Lat: 48.137, Lon: 11.575}, 80, 0.5, 20, 9, captured)
	locs, _ := s.LocatedNodes()
	// Resolution 1 cells have ~418 km edges.
	b, err := NewH3Binner(1)
	require.NoError(t, err)

	res, counts, err := SpatialHHI(Assign(b, locs), b.Resolution(), defaultThresholds())
	require.NoError(t, err)
	assert.Greater(t, res.Value, 0.5)
	assert.Equal(t, 100, counts.Total())
	assert.Contains(t, res.Interpretation, "high concentration")
	assert.LessOrEqual(t, len(res.Top), TopN)
	assert.GreaterOrEqual(t, res.Top[0].Share, 0.8)
}

func TestSpatialHHIUniformLattice(t *testing.T) {
	box := geo.BoundingBox{MinLat: -40, MaxLat: 40, MinLon: -150, MaxLon: 150}
	s := ingest.Lattice("grid", 9, 16, box, captured)
	locs, _ := s.LocatedNodes()
	b, err := NewH3Binner(2)
	require.NoError(t, err)

	res, _, err := SpatialHHI(Assign(b, locs), b.Resolution(), defaultThresholds())
	require.NoError(t, err)

	k := res.Metadata["occupied_cells"]
	assert.Equal(t, 144.0, k)
	assert.InDelta(t, 1/k, res.Value, 1e-12)
	assert.InDelta(t, 0, res.Metadata["normalized_hhi"], 1e-9)
	assert.Contains(t, res.Interpretation, "low concentration")
}

func TestSpatialHHIFailsWithoutNodes(t *testing.T) {
	_, _, err := SpatialHHI(nil, 5, defaultThresholds())
	var ide *domain.InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, domain.ModuleGrid, ide.Module)
}

func TestProfile(t *testing.T) {
	p, err := Profile(domain.ModuleDiversity, "country", domain.CategoryCounts{"US": 6, "DE": 3, "FR": 1}, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Distinct)
	assert.Equal(t, 10, p.Counted)
	assert.Equal(t, 2, p.Unknown)
	assert.InDelta(t, 0.46, p.HHI, 1e-12)
	assert.Equal(t, 0.6, p.TopShare)
	assert.Equal(t, "US", p.Top[0].Label)

	_, err = Profile(domain.ModuleDiversity, "country", domain.CategoryCounts{}, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "4 unknown")
}
