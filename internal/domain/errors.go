package domain

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrDegenerateInput  = errors.New("degenerate input")
	ErrConfiguration    = errors.New("invalid configuration")
	ErrUpstream         = errors.New("upstream metric failed")
)

// Module names used in errors, metrics and reports.
const (
	ModuleAutocorrelation = "autocorrelation"
	ModuleGrid            = "grid_concentration"
	ModuleDiversity       = "diversity"
	ModulePointPattern    = "point_pattern"
	ModuleComposite       = "composite"
)

// InsufficientDataError reports fewer usable nodes or categories than a module requires.
type InsufficientDataError struct {
	Module   string
	Required int
	Got      int
	Detail   string
}

func (e *InsufficientDataError) Error() string {
	msg := fmt.Sprintf("%s: insufficient data: need at least %d, got %d", e.Module, e.Required, e.Got)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// DegenerateInputError reports input for which the statistic is mathematically undefined.
type DegenerateInputError struct {
	Module     string
	Reason     string
	Nodes      int
	Categories int
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("%s: degenerate input: %s (nodes=%d, categories=%d)",
		e.Module, e.Reason, e.Nodes, e.Categories)
}

func (e *DegenerateInputError) Is(target error) bool { return target == ErrDegenerateInput }

// ConfigurationError reports an invalid engine parameter or scoring policy.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// UpstreamFailure wraps the failure of a leaf module seen by the composite scorer.
type UpstreamFailure struct {
	Module string
	Err    error
}

func (e *UpstreamFailure) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Module, e.Err)
}

func (e *UpstreamFailure) Unwrap() error { return e.Err }

func (e *UpstreamFailure) Is(target error) bool { return target == ErrUpstream }

// ErrorKind classifies an error for reports and HTTP responses.
func ErrorKind(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrDegenerateInput):
		return "degenerate_input"
	default:
		return "internal"
	}
}

// FailedModules lists the modules named by UpstreamFailures inside err.
func FailedModules(err error) []string {
	var out []string
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if uf, ok := e.(*UpstreamFailure); ok {
			out = append(out, uf.Module)
			return
		}
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
			return
		}
		walk(errors.Unwrap(e))
	}
	walk(err)
	return out
}
