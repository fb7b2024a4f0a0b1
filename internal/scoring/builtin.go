package scoring

import "github.com/DecentralizedGeo/geobeat-sub000/internal/domain"

// DefaultSizeReference is the node count at which the network-size term saturates.
const DefaultSizeReference = 50000

// BuiltinPolicies returns the two v0 policies. Neither is a default: the
// methodology leaves open whether the location term is absolute or relative and
// whether network size belongs in the composite, so callers choose explicitly.
func BuiltinPolicies() []*domain.ScoringPolicy {
	return []*domain.ScoringPolicy{AbsoluteV0(), RelativeV0()}
}

// AbsoluteV0 rewards absolute global footprint: the location term saturates at
// 2000 effective cells, categorical indices carry log bonuses and dominance
// penalties, and network size takes 35% of the composite.
func AbsoluteV0() *domain.ScoringPolicy {
	return &domain.ScoringPolicy{
		ID:          domain.PolicyAbsoluteV0,
		Version:     "0.1.0",
		Name:        "GDI v0 (absolute footprint)",
		Description: "Effective locations capped at 2000; diversity bonus and dominance penalties; size term included.",
		Physical: domain.PhysicalPolicy{
			Weights: domain.PhysicalWeights{
				Autocorrelation: 0.4,
				Locations:       0.3,
				Concentration:   0.3,
			},
			LocationNormalization: domain.NormalizeAbsolute,
			LocationCap:           2000,
		},
		Jurisdictional: domain.CategoricalPolicy{
			Weights:             domain.CategoricalWeights{Concentration: 0.30, Diversity: 0.35, Penalty: 0.35},
			DiversityLogDivisor: 2.0,
			PenaltyThreshold:    0.15,
			PenaltyCeiling:      0.50,
		},
		Infrastructure: domain.CategoricalPolicy{
			Weights:             domain.CategoricalWeights{Concentration: 0.30, Diversity: 0.35, Penalty: 0.35},
			DiversityLogDivisor: 3.5,
			PenaltyThreshold:    0.03,
			PenaltyCeiling:      0.20,
			Grouping:            domain.GroupByOrganization,
		},
		Composite: domain.CompositePolicy{
			Weights: domain.CompositeWeights{
				Physical:       0.35,
				Jurisdictional: 0.20,
				Infrastructure: 0.10,
				NetworkSize:    0.35,
			},
			SizeReference: DefaultSizeReference,
		},
		Enabled: true,
	}
}

// RelativeV0 rewards even spread for the network's size: the location term is
// the effective number over occupied cells, categorical indices are 1 - HHI and
// the composite excludes network size.
func RelativeV0() *domain.ScoringPolicy {
	return &domain.ScoringPolicy{
		ID:          domain.PolicyRelativeV0,
		Version:     "0.1.0",
		Name:        "GDI v0 (relative spread)",
		Description: "Effective locations normalized by occupied cells; categorical indices are 1 - HHI; no size term.",
		Physical: domain.PhysicalPolicy{
			Weights: domain.PhysicalWeights{
				Autocorrelation: 0.4,
				Locations:       0.3,
				Concentration:   0.3,
			},
			LocationNormalization: domain.NormalizeRelative,
		},
		Jurisdictional: domain.CategoricalPolicy{
			Weights: domain.CategoricalWeights{Concentration: 1},
		},
		Infrastructure: domain.CategoricalPolicy{
			Weights:  domain.CategoricalWeights{Concentration: 1},
			Grouping: domain.GroupByOrganization,
		},
		Composite: domain.CompositePolicy{
			Weights: domain.CompositeWeights{
				Physical:       0.40,
				Jurisdictional: 0.35,
				Infrastructure: 0.25,
			},
			SizeReference: DefaultSizeReference,
		},
		Enabled: true,
	}
}
