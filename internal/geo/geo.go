// Package geo provides great-circle geometry and nearest-neighbor search over node locations.
package geo

import (
	"math"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// EarthRadiusKm is the mean Earth radius.
const EarthRadiusKm = 6371.0

const degToRad = math.Pi / 180

// Haversine returns the great-circle distance between two locations in km.
func Haversine(a, b domain.Location) float64 {
	lat1 := a.Lat * degToRad
	lat2 := b.Lat * degToRad
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * degToRad

	s1 := math.Sin(dLat / 2)
	s2 := math.Sin(dLon / 2)
	h := s1*s1 + math.Cos(lat1)*math.Cos(lat2)*s2*s2
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// unitVector maps a location to a point on the unit sphere (ECEF, radius 1).
func unitVector(l domain.Location) [3]float64 {
	lat := l.Lat * degToRad
	lon := l.Lon * degToRad
	cosLat := math.Cos(lat)
	return [3]float64{cosLat * math.Cos(lon), cosLat * math.Sin(lon), math.Sin(lat)}
}

// chordForDistance converts a great-circle distance to the straight-line distance
// between the same points on the unit sphere. The mapping is monotonic.
func chordForDistance(km float64) float64 {
	angle := km / EarthRadiusKm
	if angle >= math.Pi {
		return 2
	}
	return 2 * math.Sin(angle/2)
}

// BoundingBox is the latitude/longitude extent of a set of locations.
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLon float64 `json:"minLon"`
	MaxLon float64 `json:"maxLon"`
}

// Bounds returns the bounding box of locs. It panics on an empty slice.
func Bounds(locs []domain.Location) BoundingBox {
	b := BoundingBox{MinLat: locs[0].Lat, MaxLat: locs[0].Lat, MinLon: locs[0].Lon, MaxLon: locs[0].Lon}
	for _, l := range locs[1:] {
		b.MinLat = math.Min(b.MinLat, l.Lat)
		b.MaxLat = math.Max(b.MaxLat, l.Lat)
		b.MinLon = math.Min(b.MinLon, l.Lon)
		b.MaxLon = math.Max(b.MaxLon, l.Lon)
	}
	return b
}

// AreaKm2 returns the surface area of the box on the sphere:
// R² · Δλ · (sin φmax − sin φmin).
func (b BoundingBox) AreaKm2() float64 {
	dLon := (b.MaxLon - b.MinLon) * degToRad
	dSin := math.Sin(b.MaxLat*degToRad) - math.Sin(b.MinLat*degToRad)
	return EarthRadiusKm * EarthRadiusKm * dLon * dSin
}

// Destination returns the location reached from origin after travelling distanceKm
// along the initial bearing (degrees clockwise from north).
func Destination(origin domain.Location, bearingDeg, distanceKm float64) domain.Location {
	lat1 := origin.Lat * degToRad
	lon1 := origin.Lon * degToRad
	brg := bearingDeg * degToRad
	ang := distanceKm / EarthRadiusKm

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) + math.Cos(lat1)*math.Sin(ang)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(math.Sin(brg)*math.Sin(ang)*math.Cos(lat1), math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2))

	lon := math.Mod(lon2/degToRad+540, 360) - 180
	return domain.Location{Lat: lat2 / degToRad, Lon: lon}
}

// Center returns the midpoint of the box in degrees.
func (b BoundingBox) Center() domain.Location {
	return domain.Location{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}
