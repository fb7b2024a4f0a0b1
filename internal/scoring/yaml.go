package scoring

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// PolicyFile is the on-disk shape of a policy document.
type PolicyFile struct {
	Policies []*domain.ScoringPolicy `yaml:"policies"`
}

// ParsePolicies decodes a YAML policy document. Unknown keys are rejected so a
// misspelled weight cannot silently fall back to zero.
func ParsePolicies(data []byte) ([]*domain.ScoringPolicy, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc PolicyFile
	if err := dec.Decode(&doc); err != nil {
		return nil, &domain.ConfigurationError{Field: "policies", Reason: fmt.Sprintf("invalid policy document: %v", err)}
	}
	for _, p := range doc.Policies {
		if p == nil {
			return nil, &domain.ConfigurationError{Field: "policies", Reason: "empty policy entry"}
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy %s@%s: %w", p.ID, p.Version, err)
		}
	}
	return doc.Policies, nil
}

// LoadPolicyFile reads and parses a policy document from disk.
func LoadPolicyFile(path string) ([]*domain.ScoringPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "scoring.policyFile", Value: path, Reason: err.Error()}
	}
	return ParsePolicies(data)
}

// MarshalPolicies encodes policies in the document shape ParsePolicies reads.
func MarshalPolicies(policies []*domain.ScoringPolicy) ([]byte, error) {
	return yaml.Marshal(PolicyFile{Policies: policies})
}
