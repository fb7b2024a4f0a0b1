package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is a singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validator exposes the shared validator for request structs in other packages.
func Validator() *validator.Validate {
	return validate
}

// Validate checks the snapshot schema: required fields, coordinate ranges,
// paired coordinates and unique node ids.
func (s *NetworkSnapshot) Validate() error {
	if s == nil {
		return &ValidationError{Field: "snapshot", Reason: "is nil"}
	}
	if err := validate.Struct(s); err != nil {
		return FormatValidationError(err)
	}
	if strings.ContainsAny(s.Network, ". *>\t\n") {
		return &ValidationError{Field: "network", Reason: "must not contain dots, whitespace or wildcards"}
	}
	if s.CapturedAt.IsZero() {
		return &ValidationError{Field: "capturedAt", Reason: "is required"}
	}

	seen := make(map[string]int, len(s.Nodes))
	for i := range s.Nodes {
		n := &s.Nodes[i]
		if (n.Latitude == nil) != (n.Longitude == nil) {
			return &ValidationError{
				Field:  fmt.Sprintf("nodes[%d]", i),
				Reason: fmt.Sprintf("node %q has only one coordinate", n.ID),
			}
		}
		if prev, ok := seen[n.ID]; ok {
			return &ValidationError{
				Field:  fmt.Sprintf("nodes[%d].id", i),
				Reason: fmt.Sprintf("duplicate id %q (first at index %d)", n.ID, prev),
			}
		}
		seen[n.ID] = i
	}
	return nil
}

// ValidationError reports a schema violation in engine input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

// FormatValidationError converts validator field errors into a ValidationError.
func FormatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, trimNamespace(fe.Namespace()))
		switch fe.Tag() {
		case "required":
			reasons = append(reasons, "is required")
		case "gte":
			reasons = append(reasons, fmt.Sprintf("must be >= %s (got %v)", fe.Param(), fe.Value()))
		case "lte":
			reasons = append(reasons, fmt.Sprintf("must be <= %s (got %v)", fe.Param(), fe.Value()))
		case "max":
			reasons = append(reasons, fmt.Sprintf("exceeds maximum length %s", fe.Param()))
		default:
			reasons = append(reasons, fmt.Sprintf("failed %s validation", fe.Tag()))
		}
	}
	return &ValidationError{
		Field:  strings.Join(fields, ", "),
		Reason: strings.Join(reasons, "; "),
	}
}

func trimNamespace(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
