package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

func TestRegistry_Builtins(t *testing.T) {
	r := NewDefaultRegistry()
	if r.Count() != 2 {
		t.Fatalf("expected 2 built-in policies, got %d", r.Count())
	}

	list := r.List()
	assert.Equal(t, domain.PolicyAbsoluteV0, list[0].ID)
	assert.Equal(t, domain.PolicyRelativeV0, list[1].ID)

	for _, p := range BuiltinPolicies() {
		assert.NoError(t, p.Validate(), p.ID)
	}
}

func TestRegistry_Immutable(t *testing.T) {
	r := NewDefaultRegistry()

	// Same content is accepted again.
	require.NoError(t, r.Register(AbsoluteV0()))

	changed := AbsoluteV0()
	changed.Composite.SizeReference = 10000
	err := r.Register(changed)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	got, err := r.Get(domain.PolicyAbsoluteV0, "0.1.0")
	require.NoError(t, err)
	assert.Equal(t, float64(DefaultSizeReference), got.Composite.SizeReference)

	// Mutating a returned copy does not affect the registry.
	got.Name = "mutated"
	again, err := r.Get(domain.PolicyAbsoluteV0, "")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.Name)
}

func TestRegistry_AddAndUnregister(t *testing.T) {
	r := NewDefaultRegistry()

	added, err := r.Add(AbsoluteV0())
	require.NoError(t, err)
	assert.False(t, added, "identical content is already present")

	p := RelativeV0()
	p.ID = "custom"
	added, err = r.Add(p)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 3, r.Count())

	r.Unregister("custom", p.Version)
	_, err = r.Get("custom", "")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Equal(t, 2, r.Count())

	// Unknown entries are ignored.
	r.Unregister("custom", p.Version)
	r.Unregister(domain.PolicyAbsoluteV0, "9.9.9")
	assert.Equal(t, 2, r.Count())
}

func TestRegistry_LatestVersion(t *testing.T) {
	r := NewDefaultRegistry()

	for _, v := range []string{"0.2.0", "0.10.0", "0.9.1"} {
		p := RelativeV0()
		p.Version = v
		require.NoError(t, r.Register(p))
	}

	latest, err := r.Get(domain.PolicyRelativeV0, "")
	require.NoError(t, err)
	assert.Equal(t, "0.10.0", latest.Version)

	_, err = r.Get(domain.PolicyRelativeV0, "9.9.9")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	_, err = r.Get("unknown", "")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestRegistry_LoadSkipsDisabled(t *testing.T) {
	r := NewRegistry()
	disabled := AbsoluteV0()
	disabled.Enabled = false

	require.NoError(t, r.Load([]*domain.ScoringPolicy{disabled, RelativeV0()}))
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *domain.ScoringPolicy)
	}{
		{"weights do not sum to one", func(p *domain.ScoringPolicy) { p.Physical.Weights.Locations = 0.5 }},
		{"negative weight", func(p *domain.ScoringPolicy) {
			p.Jurisdictional.Weights = domain.CategoricalWeights{Concentration: 1.2, Diversity: -0.2}
		}},
		{"ceiling below threshold", func(p *domain.ScoringPolicy) { p.Infrastructure.PenaltyCeiling = 0.01 }},
		{"zero location cap", func(p *domain.ScoringPolicy) { p.Physical.LocationCap = 0 }},
		{"missing size reference", func(p *domain.ScoringPolicy) { p.Composite.SizeReference = 0 }},
		{"unknown grouping", func(p *domain.ScoringPolicy) { p.Infrastructure.Grouping = "asn" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := AbsoluteV0()
			p.Version = "9.0.0"
			tt.mutate(p)
			err := NewRegistry().Register(p)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestParsePolicies(t *testing.T) {
	doc := []byte(`
policies:
  - id: custom
    version: "1.0.0"
    name: Custom
    enabled: true
    physical:
      weights: {autocorrelation: 0.5, locations: 0.25, concentration: 0.25}
      locationNormalization: relative
    jurisdictional:
      weights: {concentration: 1, diversity: 0, penalty: 0}
    infrastructure:
      weights: {concentration: 0.5, diversity: 0, penalty: 0.5}
      penaltyThreshold: 0.05
      penaltyCeiling: 0.25
      grouping: provider
    composite:
      weights: {physical: 0.5, jurisdictional: 0.25, infrastructure: 0.25}
`)
	policies, err := ParsePolicies(doc)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, domain.GroupByProvider, policies[0].Infrastructure.Grouping)
	assert.Equal(t, domain.NormalizeRelative, policies[0].Physical.LocationNormalization)

	_, err = ParsePolicies([]byte("policies:\n  - id: x\n    verison: \"1\"\n"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestMarshalPolicies_Builtins(t *testing.T) {
	data, err := MarshalPolicies(BuiltinPolicies())
	require.NoError(t, err)

	parsed, err := ParsePolicies(data)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, AbsoluteV0(), parsed[0])
	assert.Equal(t, RelativeV0(), parsed[1])
}
