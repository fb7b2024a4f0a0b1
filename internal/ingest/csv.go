// Package ingest reads node snapshots from files and generates synthetic ones.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// Header aliases accepted by ReadCSV, in priority order.
var columnAliases = map[string][]string{
	"id":           {"id", "node_id", "nodeid", "ip", "address"},
	"latitude":     {"latitude", "lat"},
	"longitude":    {"longitude", "lon", "lng"},
	"country":      {"country", "country_code", "countrycode"},
	"organization": {"organization", "org", "asname", "isp"},
	"hosting":      {"hosting"},
}

// ReadCSV parses a node table with a header row. Empty coordinate cells produce
// unlocated nodes; malformed numbers are rejected.
func ReadCSV(r io.Reader, network string, capturedAt time.Time) (*domain.NetworkSnapshot, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := resolveColumns(header)
	for _, required := range []string{"id", "latitude", "longitude"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("CSV header is missing a %s column", required)
		}
	}

	s := &domain.NetworkSnapshot{Network: network, CapturedAt: capturedAt}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		node := domain.NodeRecord{
			ID:           field(rec, cols, "id"),
			Country:      field(rec, cols, "country"),
			Organization: field(rec, cols, "organization"),
		}
		if node.Latitude, err = parseCoordinate(field(rec, cols, "latitude")); err != nil {
			return nil, fmt.Errorf("line %d: latitude: %w", line, err)
		}
		if node.Longitude, err = parseCoordinate(field(rec, cols, "longitude")); err != nil {
			return nil, fmt.Errorf("line %d: longitude: %w", line, err)
		}
		if h := field(rec, cols, "hosting"); h != "" {
			node.Hosting, _ = strconv.ParseBool(h)
		}
		s.Nodes = append(s.Nodes, node)
	}
	return s, nil
}

// ReadJSON decodes a snapshot document. A bare array of nodes is accepted when
// network and capturedAt are supplied by the caller.
func ReadJSON(r io.Reader, network string, capturedAt time.Time) (*domain.NetworkSnapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		s := &domain.NetworkSnapshot{Network: network, CapturedAt: capturedAt}
		if err := json.Unmarshal(data, &s.Nodes); err != nil {
			return nil, fmt.Errorf("failed to decode node array: %w", err)
		}
		return s, nil
	}

	var s domain.NetworkSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s.Network == "" {
		s.Network = network
	}
	if s.CapturedAt.IsZero() {
		s.CapturedAt = capturedAt
	}
	return &s, nil
}

func resolveColumns(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cols := make(map[string]int)
	for name, aliases := range columnAliases {
		for _, a := range aliases {
			if i, ok := index[a]; ok {
				cols[name] = i
				break
			}
		}
	}
	return cols
}

func field(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseCoordinate(s string) (*float64, error) {
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
