// Package grid bins node locations into H3 hexagonal cells and measures
// concentration with the Herfindahl-Hirschman Index.
package grid

import (
	"github.com/uber/h3-go/v4"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// Binner assigns locations to stable cell identifiers.
type Binner interface {
	Cell(l domain.Location) string
	Resolution() int
}

// H3Binner bins with Uber's H3 discrete global grid.
type H3Binner struct {
	resolution int
}

// NewH3Binner creates a binner at the given H3 resolution (0-15).
func NewH3Binner(resolution int) (*H3Binner, error) {
	if resolution < 0 || resolution > 15 {
		return nil, &domain.ConfigurationError{Field: "engine.gridResolution", Value: resolution, Reason: "must be in [0, 15]"}
	}
	return &H3Binner{resolution: resolution}, nil
}

// Cell returns the H3 cell index of l as a hex string.
func (b *H3Binner) Cell(l domain.Location) string {
	return h3.LatLngToCell(h3.NewLatLng(l.Lat, l.Lon), b.resolution).String()
}

// Resolution returns the H3 resolution.
func (b *H3Binner) Resolution() int { return b.resolution }

// Assign bins every location. The result is index-aligned with locs.
func Assign(b Binner, locs []domain.Location) []string {
	cells := make([]string, len(locs))
	for i, l := range locs {
		cells[i] = b.Cell(l)
	}
	return cells
}
