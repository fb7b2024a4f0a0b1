package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
	"time"
)

// NodeRecord is one observed network node.
// Records are immutable for the duration of an analysis run.
type NodeRecord struct {
	ID string `json:"id" validate:"required,max=256"`

	// Coordinates are nil when the node could not be geolocated.
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`

	// Country is an ISO-3166 code, empty when unknown.
	Country string `json:"country,omitempty" validate:"omitempty,max=64"`

	// Organization is the hosting organization or ASN label, empty when unknown.
	Organization string `json:"organization,omitempty" validate:"omitempty,max=256"`

	// Hosting is set by resolvers that flag datacenter address space.
	Hosting bool `json:"hosting,omitempty"`
}

// HasLocation reports whether both coordinates are present.
func (n *NodeRecord) HasLocation() bool {
	return n.Latitude != nil && n.Longitude != nil
}

// NewNode builds a located NodeRecord.
func NewNode(id string, lat, lon float64, country, organization string) NodeRecord {
	return NodeRecord{
		ID:           id,
		Latitude:     &lat,
		Longitude:    &lon,
		Country:      country,
		Organization: organization,
	}
}

// NetworkSnapshot is the set of nodes of one network captured at one point in time.
type NetworkSnapshot struct {
	Network    string       `json:"network" validate:"required,max=128"`
	CapturedAt time.Time    `json:"capturedAt"`
	Nodes      []NodeRecord `json:"nodes" validate:"dive"`
}

// Location is a coordinate pair in decimal degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LocatedNodes returns the coordinates and ids of nodes that carry both coordinates,
// ordered by node ID so that results never depend on record order.
func (s *NetworkSnapshot) LocatedNodes() ([]Location, []string) {
	order := s.idOrder()
	locs := make([]Location, 0, len(s.Nodes))
	ids := make([]string, 0, len(s.Nodes))
	for _, i := range order {
		n := &s.Nodes[i]
		if !n.HasLocation() {
			continue
		}
		locs = append(locs, Location{Lat: *n.Latitude, Lon: *n.Longitude})
		ids = append(ids, n.ID)
	}
	return locs, ids
}

// idOrder returns node indexes sorted by ID. Ties keep snapshot order.
func (s *NetworkSnapshot) idOrder() []int {
	order := make([]int, len(s.Nodes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return s.Nodes[order[a]].ID < s.Nodes[order[b]].ID
	})
	return order
}

// Totals counts the raw node total and how many nodes lack coordinates, country or organization.
func (s *NetworkSnapshot) Totals() NodeTotals {
	t := NodeTotals{Total: len(s.Nodes)}
	for i := range s.Nodes {
		n := &s.Nodes[i]
		if n.HasLocation() {
			t.Located++
		}
		if n.Country == "" {
			t.MissingCountry++
		}
		if n.Organization == "" {
			t.MissingOrganization++
		}
	}
	t.MissingLocation = t.Total - t.Located
	return t
}

// NodeTotals tracks raw counts next to the counts usable by each module.
type NodeTotals struct {
	Total               int `json:"total"`
	Located             int `json:"located"`
	MissingLocation     int `json:"missingLocation"`
	MissingCountry      int `json:"missingCountry"`
	MissingOrganization int `json:"missingOrganization"`
}

// Fingerprint returns a content hash of the snapshot that does not depend on record order.
func (s *NetworkSnapshot) Fingerprint() string {
	order := s.idOrder()

	h := sha256.New()
	h.Write([]byte(s.Network))
	h.Write([]byte{0})
	h.Write([]byte(s.CapturedAt.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte{0})

	var buf [8]byte
	writeFloat := func(p *float64) {
		if p == nil {
			h.Write([]byte{0})
			return
		}
		h.Write([]byte{1})
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(*p))
		h.Write(buf[:])
	}
	for _, i := range order {
		n := &s.Nodes[i]
		h.Write([]byte(n.ID))
		h.Write([]byte{0})
		writeFloat(n.Latitude)
		writeFloat(n.Longitude)
		h.Write([]byte(n.Country))
		h.Write([]byte{0})
		h.Write([]byte(n.Organization))
		h.Write([]byte{0})
		if n.Hosting {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
