package ingest

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/geo"
)

// ClusterCenter is a city used to seed synthetic clusters.
type ClusterCenter struct {
	Name         string
	Country      string
	Organization string
	Location     domain.Location
}

// DefaultClusterCenters are the cities used by Generator.Clustered.
var DefaultClusterCenters = []ClusterCenter{
	{"New York", "US", "AMAZON-02", domain.Location{Lat: 40.7128, Lon: -74.0060}},
	{"London", "GB", "OVH SAS", domain.Location{Lat: 51.5074, Lon: -0.1278}},
	{"Tokyo", "JP", "GOOGLE-CLOUD-PLATFORM", domain.Location{Lat: 35.6762, Lon: 139.6503}},
	{"San Francisco", "US", "DIGITALOCEAN-ASN", domain.Location{Lat: 37.7749, Lon: -122.4194}},
	{"Berlin", "DE", "Hetzner Online GmbH", domain.Location{Lat: 52.5200, Lon: 13.4050}},
}

// Generator produces seeded synthetic snapshots for tests and benchmarks.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator whose output is fixed by seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15))}
}

// Clustered spreads n nodes around the default cluster centers with a normal
// offset of one degree in each axis.
func (g *Generator) Clustered(network string, n int, capturedAt time.Time) *domain.NetworkSnapshot {
	s := &domain.NetworkSnapshot{Network: network, CapturedAt: capturedAt}
	for i := 0; i < n; i++ {
		c := DefaultClusterCenters[i%len(DefaultClusterCenters)]
		lat := clamp(c.Location.Lat+g.rng.NormFloat64(), -90, 90)
		lon := clamp(c.Location.Lon+g.rng.NormFloat64(), -180, 180)
		s.Nodes = append(s.Nodes, domain.NewNode(fmt.Sprintf("%s-node-%d", network, i), lat, lon, c.Country, c.Organization))
	}
	return s
}

// Uniform places n nodes uniformly at random (in area) inside box.
func (g *Generator) Uniform(network string, n int, box geo.BoundingBox, capturedAt time.Time) *domain.NetworkSnapshot {
	s := &domain.NetworkSnapshot{Network: network, CapturedAt: capturedAt}
	sinMin := math.Sin(box.MinLat * math.Pi / 180)
	sinMax := math.Sin(box.MaxLat * math.Pi / 180)
	for i := 0; i < n; i++ {
		lat := math.Asin(sinMin+g.rng.Float64()*(sinMax-sinMin)) * 180 / math.Pi
		lon := box.MinLon + g.rng.Float64()*(box.MaxLon-box.MinLon)
		s.Nodes = append(s.Nodes, domain.NewNode(fmt.Sprintf("%s-node-%d", network, i), lat, lon,
			fmt.Sprintf("C%02d", i%20), fmt.Sprintf("org-%d", i%50)))
	}
	return s
}

// Lattice places rows×cols nodes at evenly spaced grid points spanning box.
// Spacing is even in degrees, so the layout is only uniform on the ground near
// the equator; away from it the columns crowd together as longitude shrinks.
func Lattice(network string, rows, cols int, box geo.BoundingBox, capturedAt time.Time) *domain.NetworkSnapshot {
	s := &domain.NetworkSnapshot{Network: network, CapturedAt: capturedAt}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			lat := box.MinLat + (box.MaxLat-box.MinLat)*float64(r)/float64(max(rows-1, 1))
			lon := box.MinLon + (box.MaxLon-box.MinLon)*float64(c)/float64(max(cols-1, 1))
			s.Nodes = append(s.Nodes, domain.NewNode(fmt.Sprintf("%s-r%d-c%d", network, r, c), lat, lon, "", ""))
		}
	}
	return s
}

// goldenAngle spreads sunflower points evenly over a disk.
const goldenAngle = 137.50776405003785

// CoreAndRing places coreN nodes evenly over a disk of coreRadiusKm around center
// and ringN nodes evenly on a circle of ringRadiusKm. The layout is deterministic.
func CoreAndRing(network string, center domain.Location, coreN int, coreRadiusKm float64, ringN int, ringRadiusKm float64, capturedAt time.Time) *domain.NetworkSnapshot {
	s := &domain.NetworkSnapshot{Network: network, CapturedAt: capturedAt}
	for i := 0; i < coreN; i++ {
		r := coreRadiusKm * math.Sqrt((float64(i)+0.5)/float64(coreN))
		l := geo.Destination(center, math.Mod(float64(i)*goldenAngle, 360), r)
		s.Nodes = append(s.Nodes, domain.NewNode(fmt.Sprintf("%s-core-%d", network, i), l.Lat, l.Lon, "", ""))
	}
	for i := 0; i < ringN; i++ {
		l := geo.Destination(center, 360*float64(i)/float64(ringN), ringRadiusKm)
		s.Nodes = append(s.Nodes, domain.NewNode(fmt.Sprintf("%s-ring-%d", network, i), l.Lat, l.Lon, "", ""))
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
