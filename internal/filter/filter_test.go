package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

func snapshot() *domain.NetworkSnapshot {
	return &domain.NetworkSnapshot{
		Network:    "ethereum",
		CapturedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Nodes: []domain.NodeRecord{
			domain.NewNode("a", 40.7, -74.0, "US", "Amazon.com, Inc."),
			domain.NewNode("b", 51.5, -0.1, "GB", "Hetzner Online GmbH"),
			domain.NewNode("c", 35.7, 139.7, "JP", "NTT"),
			{ID: "d", Country: "DE", Organization: "Contabo", Hosting: true},
		},
	}
}

func ids(s *domain.NetworkSnapshot) []string {
	out := make([]string, len(s.Nodes))
	for i, n := range s.Nodes {
		out[i] = n.ID
	}
	return out
}

func TestFilter_Apply(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want []string
	}{
		{"empty keeps all", "", []string{"a", "b", "c", "d"}},
		{"country", `country != "US"`, []string{"b", "c", "d"}},
		{"provider", `provider == "AWS" || provider == "Hetzner"`, []string{"a", "b"}},
		{"located only", "has_location && latitude > 45.0", []string{"b"}},
		{"hosting", "hosting", []string{"d"}},
		{"home", `provider == "Home/ISP"`, []string{"c"}},
		{"network", `network == "ethereum" && id.startsWith("c")`, []string{"c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, f.String())

			in := snapshot()
			out, err := f.Apply(in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(out))
			assert.Len(t, in.Nodes, 4, "input is not modified")
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"syntax", `country ==`},
		{"unknown variable", `asn == 1`},
		{"non-bool", `latitude + 1.0`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.expr)
			require.Error(t, err)
			assert.Equal(t, "validation", domain.ErrorKind(err))
		})
	}
}
