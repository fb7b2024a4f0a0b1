// Package filter selects snapshot nodes with CEL expressions.
//
// Expressions see one node at a time through the variables id, network,
// latitude, longitude, has_location, country, organization, provider and
// hosting, and must return a bool. For example:
//
//	country != "US" && provider != "AWS"
package filter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/provider"
)

// Filter is a compiled node predicate.
type Filter struct {
	expr    string
	program cel.Program
}

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error
)

func nodeEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv(
			cel.Variable("id", cel.StringType),
			cel.Variable("network", cel.StringType),
			cel.Variable("latitude", cel.DoubleType),
			cel.Variable("longitude", cel.DoubleType),
			cel.Variable("has_location", cel.BoolType),
			cel.Variable("country", cel.StringType),
			cel.Variable("organization", cel.StringType),
			cel.Variable("provider", cel.StringType),
			cel.Variable("hosting", cel.BoolType),
		)
	})
	return env, envErr
}

// Compile parses and type-checks a filter expression.
// An empty expression yields a nil Filter, which keeps every node.
func Compile(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	e, err := nodeEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := e.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, &domain.ValidationError{Field: "filter", Reason: issues.Err().Error()}
	}
	if ast.OutputType() != cel.BoolType {
		return nil, &domain.ValidationError{Field: "filter",
			Reason: fmt.Sprintf("expression must return bool, got %s", ast.OutputType())}
	}
	program, err := e.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter program: %w", err)
	}
	return &Filter{expr: expr, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match evaluates the filter against one node.
func (f *Filter) Match(network string, n *domain.NodeRecord) (bool, error) {
	if f == nil {
		return true, nil
	}
	var lat, lon float64
	if n.HasLocation() {
		lat, lon = *n.Latitude, *n.Longitude
	}
	out, _, err := f.program.Eval(map[string]any{
		"id":           n.ID,
		"network":      network,
		"latitude":     lat,
		"longitude":    lon,
		"has_location": n.HasLocation(),
		"country":      n.Country,
		"organization": n.Organization,
		"provider":     provider.Categorize(n.Organization, n.Hosting),
		"hosting":      n.Hosting,
	})
	if err != nil {
		return false, &domain.ValidationError{Field: "filter", Reason: fmt.Sprintf("node %s: %v", n.ID, err)}
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, &domain.ValidationError{Field: "filter", Reason: fmt.Sprintf("node %s: non-bool result", n.ID)}
	}
	return bool(b), nil
}

// Apply returns a copy of the snapshot holding only matching nodes.
// The input snapshot is not modified.
func (f *Filter) Apply(s *domain.NetworkSnapshot) (*domain.NetworkSnapshot, error) {
	if f == nil {
		return s, nil
	}
	out := &domain.NetworkSnapshot{
		Network:    s.Network,
		CapturedAt: s.CapturedAt,
		Nodes:      make([]domain.NodeRecord, 0, len(s.Nodes)),
	}
	for i := range s.Nodes {
		ok, err := f.Match(s.Network, &s.Nodes[i])
		if err != nil {
			return nil, err
		}
		if ok {
			out.Nodes = append(out.Nodes, s.Nodes[i])
		}
	}
	return out, nil
}
