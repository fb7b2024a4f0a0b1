package pipeline

import (
	"sort"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// sortFailures orders leaf failures by module and message so joined errors
// read the same on every run.
func sortFailures(failures []error) []error {
	sort.SliceStable(failures, func(i, j int) bool {
		a, aok := failures[i].(*domain.UpstreamFailure)
		b, bok := failures[j].(*domain.UpstreamFailure)
		if aok && bok && a.Module != b.Module {
			return a.Module < b.Module
		}
		return failures[i].Error() < failures[j].Error()
	})
	return failures
}

// Report describes a failed run for logs, events and API responses.
type Report struct {
	Kind          string   `json:"kind"`
	FailedModules []string `json:"failedModules,omitempty"`
	Error         string   `json:"error"`
}

// Explain classifies err into a Report.
func Explain(err error) Report {
	return Report{
		Kind:          domain.ErrorKind(err),
		FailedModules: domain.FailedModules(err),
		Error:         err.Error(),
	}
}
