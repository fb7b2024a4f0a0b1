package domain

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"
)

func testSnapshot() *NetworkSnapshot {
	return &NetworkSnapshot{
		Network:    "testnet",
		CapturedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Nodes: []NodeRecord{
			NewNode("a", 52.52, 13.40, "DE", "Hetzner"),
			NewNode("b", 40.71, -74.00, "US", "Amazon"),
			{ID: "c"},
		},
	}
}

func TestSnapshotValidate(t *testing.T) {
	lat := 10.0
	tooFar := 91.0

	tests := []struct {
		name    string
		mutate  func(s *NetworkSnapshot)
		wantErr bool
	}{
		{"valid", func(s *NetworkSnapshot) {}, false},
		{"missing network", func(s *NetworkSnapshot) { s.Network = "" }, true},
		{"dotted network", func(s *NetworkSnapshot) { s.Network = "eth.main" }, true},
		{"wildcard network", func(s *NetworkSnapshot) { s.Network = "*" }, true},
		{"zero capturedAt", func(s *NetworkSnapshot) { s.CapturedAt = time.Time{} }, true},
		{"missing id", func(s *NetworkSnapshot) { s.Nodes[2].ID = "" }, true},
		{"duplicate id", func(s *NetworkSnapshot) { s.Nodes[1].ID = "a" }, true},
		{"one coordinate", func(s *NetworkSnapshot) { s.Nodes[2].Latitude = &lat }, true},
		{"latitude out of range", func(s *NetworkSnapshot) { s.Nodes[0].Latitude = &tooFar }, true},
		{"empty node list", func(s *NetworkSnapshot) { s.Nodes = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSnapshot()
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("expected *ValidationError, got %T", err)
				}
				if ErrorKind(err) != "validation" {
					t.Errorf("ErrorKind = %q", ErrorKind(err))
				}
			}
		})
	}
}

func TestNilSnapshotValidate(t *testing.T) {
	var s *NetworkSnapshot
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for nil snapshot")
	}
}

func TestFingerprintIgnoresNodeOrder(t *testing.T) {
	a := testSnapshot()
	b := testSnapshot()
	b.Nodes[0], b.Nodes[2] = b.Nodes[2], b.Nodes[0]

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint depends on node order")
	}

	b.Nodes[1].Country = "CA"
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("fingerprint ignores node content")
	}
}

func TestLocatedNodesOrderedByID(t *testing.T) {
	s := testSnapshot()
	s.Nodes[0], s.Nodes[1] = s.Nodes[1], s.Nodes[0]

	locs, ids := s.LocatedNodes()
	if !reflect.DeepEqual(ids, []string{"a", "b"}) {
		t.Fatalf("ids = %v, want [a b]", ids)
	}
	if locs[0].Lat != 52.52 || locs[1].Lat != 40.71 {
		t.Errorf("locations not aligned with ids: %+v", locs)
	}
}

func TestTotals(t *testing.T) {
	totals := testSnapshot().Totals()
	if totals.Located != 2 {
		t.Errorf("Located = %d, want 2", totals.Located)
	}
	if totals.MissingCountry != 1 || totals.MissingOrganization != 1 {
		t.Errorf("missing counts = %d/%d, want 1/1", totals.MissingCountry, totals.MissingOrganization)
	}
}

func TestTallyAndShares(t *testing.T) {
	counts := Tally([]string{"US", "DE", "US", "", "FR", "DE", "US"})
	if counts.Total() != 6 {
		t.Fatalf("Total = %d, want 6", counts.Total())
	}
	shares := counts.Shares()
	var labels []string
	for _, s := range shares {
		labels = append(labels, s.Label)
	}
	if !reflect.DeepEqual(labels, []string{"US", "DE", "FR"}) {
		t.Errorf("order = %v", labels)
	}
	if math.Abs(shares[0].Share-0.5) > 1e-12 {
		t.Errorf("US share = %v, want 0.5", shares[0].Share)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	insufficient := &InsufficientDataError{Module: ModuleAutocorrelation, Required: 3, Got: 1}
	degenerate := &DegenerateInputError{Module: ModuleGrid, Reason: "single cell", Nodes: 5}
	config := &ConfigurationError{Field: "engine.permutations", Value: -1, Reason: "must be >= 0"}

	tests := []struct {
		err      error
		sentinel error
		kind     string
	}{
		{insufficient, ErrInsufficientData, "insufficient_data"},
		{degenerate, ErrDegenerateInput, "degenerate_input"},
		{config, ErrConfiguration, "configuration"},
		{&UpstreamFailure{Module: ModuleAutocorrelation, Err: insufficient}, ErrUpstream, "upstream"},
		{fmt.Errorf("wrapped: %w", config), ErrConfiguration, "configuration"},
		{errors.New("boom"), nil, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			if tt.sentinel != nil && !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}
			if got := ErrorKind(tt.err); got != tt.kind {
				t.Errorf("ErrorKind = %q, want %q", got, tt.kind)
			}
		})
	}

	if ErrorKind(nil) != "" {
		t.Error("ErrorKind(nil) should be empty")
	}

	// The cause stays reachable through the upstream wrapper.
	uf := &UpstreamFailure{Module: ModuleAutocorrelation, Err: insufficient}
	if !errors.Is(uf, ErrInsufficientData) {
		t.Error("UpstreamFailure should unwrap to its cause")
	}
}

func TestFailedModules(t *testing.T) {
	err := errors.Join(
		&UpstreamFailure{Module: ModuleAutocorrelation, Err: errors.New("a")},
		&UpstreamFailure{Module: ModuleDiversity, Err: errors.New("b")},
	)
	got := FailedModules(fmt.Errorf("score: %w", err))
	want := []string{ModuleAutocorrelation, ModuleDiversity}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FailedModules = %v, want %v", got, want)
	}
	if FailedModules(errors.New("plain")) != nil {
		t.Error("plain errors name no modules")
	}
}

func TestEngineConfigValidate(t *testing.T) {
	cfg := DefaultEngineConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := []func(c *EngineConfig){
		func(c *EngineConfig) { c.DistanceThresholdKm = 0 },
		func(c *EngineConfig) { c.DistanceThresholdKm = math.Inf(1) },
		func(c *EngineConfig) { c.GridResolution = 16 },
		func(c *EngineConfig) { c.Permutations = -1 },
		func(c *EngineConfig) { c.Attribute = "income" },
		func(c *EngineConfig) { c.DensityNeighbors = 0 },
		func(c *EngineConfig) { c.ConcentrationHigh = c.ConcentrationModerate },
	}
	for i, mutate := range bad {
		c := DefaultEngineConfig()
		mutate(&c)
		err := c.Validate()
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("case %d: expected configuration error, got %v", i, err)
		}
	}
}

func TestDefaultAndProConfig(t *testing.T) {
	community := DefaultConfig()
	if community.ScoringMode != ModeSync || community.Cache.Type != "memory" || community.EventBus.Type != "channel" {
		t.Errorf("unexpected community config: %+v", community)
	}
	pro := ProConfig()
	if pro.ScoringMode != ModeAsync || pro.Tier != TierPro {
		t.Errorf("unexpected pro config: mode=%s tier=%s", pro.ScoringMode, pro.Tier)
	}
}
