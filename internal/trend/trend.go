// Package trend reports how a network's scores move over time.
package trend

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// NeutralBand is the largest absolute change, in index points, reported as neutral.
const NeutralBand = 0.5

// DefaultLimit bounds history queries that do not set one.
const DefaultLimit = 100

// Direction of a score change.
type Direction string

const (
	Up      Direction = "up"
	Down    Direction = "down"
	Neutral Direction = "neutral"
)

// Change compares one index between the two most recent scores.
type Change struct {
	Current  float64   `json:"current"`
	Previous float64   `json:"previous"`
	Delta    float64   `json:"delta"`
	Trend    Direction `json:"trend"`
}

// Trend summarizes the recent history of a network under one policy.
type Trend struct {
	Network  string               `json:"network"`
	PolicyID string               `json:"policyId,omitempty"`
	Points   int                  `json:"points"`
	Since    time.Time            `json:"since"`
	Latest   *domain.ScoreSummary `json:"latest,omitempty"`
	Previous *domain.ScoreSummary `json:"previous,omitempty"`

	// Direction and Delta describe the GDI; Indices covers every index.
	Direction Direction         `json:"direction"`
	Delta     float64           `json:"delta"`
	Indices   map[string]Change `json:"indices,omitempty"`
}

// HistoryReader lists stored score summaries newest first.
type HistoryReader interface {
	ListScores(ctx context.Context, network string, policyID string, since time.Time, limit int) ([]*domain.ScoreSummary, error)
}

// Service reads score history from a repository.
type Service struct {
	repo HistoryReader
}

// NewService creates a trend service.
func NewService(repo HistoryReader) *Service {
	return &Service{repo: repo}
}

// History returns up to limit scores for network in chronological order.
func (s *Service) History(ctx context.Context, network, policyID string, since time.Time, limit int) ([]*domain.ScoreSummary, error) {
	if network == "" {
		return nil, fmt.Errorf("network is required")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	summaries, err := s.repo.ListScores(ctx, network, policyID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CapturedAt.Before(summaries[j].CapturedAt)
	})
	return summaries, nil
}

// Trend computes the trend of network under policyID from its stored history.
// Scores from different policies are not comparable, so policyID should be set
// whenever several policies score the same network.
func (s *Service) Trend(ctx context.Context, network, policyID string, since time.Time) (*Trend, error) {
	history, err := s.History(ctx, network, policyID, since, DefaultLimit)
	if err != nil {
		return nil, err
	}
	t := Compute(history)
	t.Network = network
	t.PolicyID = policyID
	t.Since = since
	return t, nil
}

// Compute summarizes a chronological history. Fewer than two points are neutral.
func Compute(history []*domain.ScoreSummary) *Trend {
	t := &Trend{Points: len(history), Direction: Neutral}
	if len(history) == 0 {
		return t
	}
	t.Latest = history[len(history)-1]
	if len(history) < 2 {
		return t
	}
	t.Previous = history[len(history)-2]

	t.Indices = map[string]Change{
		domain.IndexGDI:            compare(t.Latest.GDI, t.Previous.GDI),
		domain.IndexPhysical:       compare(t.Latest.Physical, t.Previous.Physical),
		domain.IndexJurisdictional: compare(t.Latest.Jurisdictional, t.Previous.Jurisdictional),
		domain.IndexInfrastructure: compare(t.Latest.Infrastructure, t.Previous.Infrastructure),
		domain.IndexNetworkSize:    compare(t.Latest.NetworkSize, t.Previous.NetworkSize),
	}
	gdi := t.Indices[domain.IndexGDI]
	t.Direction = gdi.Trend
	t.Delta = gdi.Delta
	return t
}

func compare(current, previous float64) Change {
	return Change{
		Current:  current,
		Previous: previous,
		Delta:    current - previous,
		Trend:    Classify(current - previous),
	}
}

// Classify maps a change in index points to a direction.
func Classify(delta float64) Direction {
	switch {
	case math.Abs(delta) < NeutralBand:
		return Neutral
	case delta > 0:
		return Up
	default:
		return Down
	}
}
