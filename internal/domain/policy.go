package domain

import (
	"fmt"
	"math"
	"time"
)

// ScoringPolicy is a versioned weighting policy for the composite GDI.
// A policy is immutable per (ID, Version): historical scores keep the exact policy they used.
type ScoringPolicy struct {
	ID          string `json:"id" yaml:"id"`
	Version     string `json:"version" yaml:"version"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Physical       PhysicalPolicy    `json:"physical" yaml:"physical"`
	Jurisdictional CategoricalPolicy `json:"jurisdictional" yaml:"jurisdictional"`
	Infrastructure CategoricalPolicy `json:"infrastructure" yaml:"infrastructure"`
	Composite      CompositePolicy   `json:"composite" yaml:"composite"`

	Enabled bool `json:"enabled" yaml:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

// LocationNormalization selects how the effective number of locations enters the PDI.
type LocationNormalization string

const (
	// NormalizeAbsolute caps the effective number at a fixed global footprint.
	NormalizeAbsolute LocationNormalization = "absolute"

	// NormalizeRelative divides the effective number by the occupied cell count.
	NormalizeRelative LocationNormalization = "relative"
)

// Grouping selects the categories used for the infrastructure index.
type Grouping string

const (
	GroupByOrganization Grouping = "organization"
	GroupByProvider     Grouping = "provider"
)

// PhysicalPolicy configures the Physical Distribution Index.
type PhysicalPolicy struct {
	Weights               PhysicalWeights       `json:"weights" yaml:"weights"`
	LocationNormalization LocationNormalization `json:"locationNormalization" yaml:"locationNormalization"`
	LocationCap           float64               `json:"locationCap,omitempty" yaml:"locationCap,omitempty"`
}

// PhysicalWeights blends the spatial terms of the PDI. They sum to 1.
type PhysicalWeights struct {
	Autocorrelation float64 `json:"autocorrelation" yaml:"autocorrelation"`
	Locations       float64 `json:"locations" yaml:"locations"`
	Concentration   float64 `json:"concentration" yaml:"concentration"`
	NearestNeighbor float64 `json:"nearestNeighbor,omitempty" yaml:"nearestNeighbor,omitempty"`
}

// CategoricalPolicy configures the JDI and IHI.
type CategoricalPolicy struct {
	Weights             CategoricalWeights `json:"weights" yaml:"weights"`
	DiversityLogDivisor float64            `json:"diversityLogDivisor,omitempty" yaml:"diversityLogDivisor,omitempty"`
	PenaltyThreshold    float64            `json:"penaltyThreshold,omitempty" yaml:"penaltyThreshold,omitempty"`
	PenaltyCeiling      float64            `json:"penaltyCeiling,omitempty" yaml:"penaltyCeiling,omitempty"`
	Grouping            Grouping           `json:"grouping,omitempty" yaml:"grouping,omitempty"`
}

// CategoricalWeights blends (1 - HHI), the log diversity bonus and the dominance penalty.
// They sum to 1; the penalty weight is subtracted.
type CategoricalWeights struct {
	Concentration float64 `json:"concentration" yaml:"concentration"`
	Diversity     float64 `json:"diversity" yaml:"diversity"`
	Penalty       float64 `json:"penalty" yaml:"penalty"`
}

// CompositePolicy configures the final blend.
type CompositePolicy struct {
	Weights       CompositeWeights `json:"weights" yaml:"weights"`
	SizeReference float64          `json:"sizeReference,omitempty" yaml:"sizeReference,omitempty"`
}

// CompositeWeights blends the sub-indices and the optional network-size term. They sum to 1.
type CompositeWeights struct {
	Physical       float64 `json:"physical" yaml:"physical"`
	Jurisdictional float64 `json:"jurisdictional" yaml:"jurisdictional"`
	Infrastructure float64 `json:"infrastructure" yaml:"infrastructure"`
	NetworkSize    float64 `json:"networkSize,omitempty" yaml:"networkSize,omitempty"`
}

// Built-in policy IDs.
const (
	PolicyAbsoluteV0 = "gdi-v0-absolute"
	PolicyRelativeV0 = "gdi-v0-relative"
)

const weightTolerance = 1e-9

// Validate checks every weight group and threshold of the policy.
func (p *ScoringPolicy) Validate() error {
	if p.ID == "" {
		return &ConfigurationError{Field: "policy.id", Reason: "is required"}
	}
	if p.Version == "" {
		return &ConfigurationError{Field: "policy.version", Reason: "is required"}
	}

	pw := p.Physical.Weights
	if err := checkWeights("physical.weights", []namedWeight{
		{"autocorrelation", pw.Autocorrelation},
		{"locations", pw.Locations},
		{"concentration", pw.Concentration},
		{"nearestNeighbor", pw.NearestNeighbor},
	}); err != nil {
		return err
	}
	switch p.Physical.LocationNormalization {
	case NormalizeAbsolute:
		if !positive(p.Physical.LocationCap) {
			return &ConfigurationError{Field: "physical.locationCap", Value: p.Physical.LocationCap,
				Reason: "must be > 0 for absolute normalization"}
		}
	case NormalizeRelative:
	default:
		return &ConfigurationError{Field: "physical.locationNormalization",
			Value: p.Physical.LocationNormalization, Reason: "must be absolute or relative"}
	}

	if err := p.Jurisdictional.validate("jurisdictional"); err != nil {
		return err
	}
	if err := p.Infrastructure.validate("infrastructure"); err != nil {
		return err
	}

	cw := p.Composite.Weights
	if err := checkWeights("composite.weights", []namedWeight{
		{"physical", cw.Physical},
		{"jurisdictional", cw.Jurisdictional},
		{"infrastructure", cw.Infrastructure},
		{"networkSize", cw.NetworkSize},
	}); err != nil {
		return err
	}
	if cw.Physical+cw.Jurisdictional+cw.Infrastructure <= 0 {
		return &ConfigurationError{Field: "composite.weights", Reason: "sub-index weights are all zero"}
	}
	if cw.NetworkSize > 0 && !positive(p.Composite.SizeReference) {
		return &ConfigurationError{Field: "composite.sizeReference", Value: p.Composite.SizeReference,
			Reason: "must be > 0 when networkSize weight is set"}
	}
	return nil
}

func (c *CategoricalPolicy) validate(prefix string) error {
	w := c.Weights
	if err := checkWeights(prefix+".weights", []namedWeight{
		{"concentration", w.Concentration},
		{"diversity", w.Diversity},
		{"penalty", w.Penalty},
	}); err != nil {
		return err
	}
	if w.Diversity > 0 && !positive(c.DiversityLogDivisor) {
		return &ConfigurationError{Field: prefix + ".diversityLogDivisor", Value: c.DiversityLogDivisor,
			Reason: "must be > 0 when diversity weight is set"}
	}
	if w.Penalty > 0 {
		if c.PenaltyThreshold < 0 || c.PenaltyThreshold >= 1 || math.IsNaN(c.PenaltyThreshold) {
			return &ConfigurationError{Field: prefix + ".penaltyThreshold", Value: c.PenaltyThreshold,
				Reason: "must be in [0, 1)"}
		}
		if !(c.PenaltyCeiling > c.PenaltyThreshold && c.PenaltyCeiling <= 1) {
			return &ConfigurationError{Field: prefix + ".penaltyCeiling", Value: c.PenaltyCeiling,
				Reason: fmt.Sprintf("must be in (%v, 1]", c.PenaltyThreshold)}
		}
	}
	switch c.Grouping {
	case "", GroupByOrganization, GroupByProvider:
	default:
		return &ConfigurationError{Field: prefix + ".grouping", Value: c.Grouping,
			Reason: "must be organization or provider"}
	}
	return nil
}

type namedWeight struct {
	name  string
	value float64
}

func checkWeights(group string, weights []namedWeight) error {
	sum := 0.0
	for _, w := range weights {
		if w.value < 0 || math.IsNaN(w.value) || math.IsInf(w.value, 0) {
			return &ConfigurationError{Field: group + "." + w.name, Value: w.value, Reason: "must be a non-negative number"}
		}
		sum += w.value
	}
	if math.Abs(sum-1) > weightTolerance {
		return &ConfigurationError{Field: group, Value: sum, Reason: "weights must sum to 1"}
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
