package scoring

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// Registry holds the scoring policies available to the engine, keyed by ID and version.
// A registered (ID, version) never changes, so historical scores stay reproducible.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]map[string]*domain.ScoringPolicy // id -> version -> policy
}

// NewRegistry creates an empty policy registry.
func NewRegistry() *Registry {
	return &Registry{
		policies: make(map[string]map[string]*domain.ScoringPolicy),
	}
}

// NewDefaultRegistry creates a registry holding the built-in policies.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range BuiltinPolicies() {
		// Built-ins are valid by construction.
		_ = r.Register(p)
	}
	return r
}

// Register validates and adds a policy. Re-registering an identical policy is a
// no-op; registering different content under an existing (ID, version) fails.
func (r *Registry) Register(p *domain.ScoringPolicy) error {
	_, err := r.Add(p)
	return err
}

// Add is Register that also reports whether p was newly added, as opposed to
// already present with identical content.
func (r *Registry) Add(p *domain.ScoringPolicy) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(p)
}

// Unregister removes one (ID, version). Callers use it to undo an Add whose
// policy could not be persisted.
func (r *Registry) Unregister(id, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.policies[id]
	if !ok {
		return
	}
	delete(versions, version)
	if len(versions) == 0 {
		delete(r.policies, id)
	}
}

func (r *Registry) registerLocked(p *domain.ScoringPolicy) (bool, error) {
	versions, ok := r.policies[p.ID]
	if !ok {
		versions = make(map[string]*domain.ScoringPolicy)
		r.policies[p.ID] = versions
	}
	if existing, ok := versions[p.Version]; ok {
		if !samePolicy(existing, p) {
			return false, &domain.ConfigurationError{
				Field:  "policy",
				Value:  p.ID + "@" + p.Version,
				Reason: "already registered with different content; publish a new version",
			}
		}
		return false, nil
	}
	cp := *p
	versions[p.Version] = &cp
	return true, nil
}

// Load registers every enabled policy in the slice, stopping at the first invalid one.
func (r *Registry) Load(policies []*domain.ScoringPolicy) error {
	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		if err := r.Register(p); err != nil {
			return fmt.Errorf("policy %s@%s: %w", p.ID, p.Version, err)
		}
	}
	return nil
}

// Get returns the policy with the given ID and version. An empty version
// selects the highest registered version.
func (r *Registry) Get(id, version string) (*domain.ScoringPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.policies[id]
	if !ok || len(versions) == 0 {
		return nil, &domain.ConfigurationError{Field: "policy", Value: id, Reason: "unknown scoring policy"}
	}
	if version == "" {
		version = latestVersion(versions)
	}
	p, ok := versions[version]
	if !ok {
		return nil, &domain.ConfigurationError{Field: "policy.version", Value: id + "@" + version, Reason: "unknown policy version"}
	}
	cp := *p
	return &cp, nil
}

// List returns every registered policy ordered by ID and version.
func (r *Registry) List() []*domain.ScoringPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.ScoringPolicy, 0, len(r.policies))
	for _, versions := range r.policies {
		for _, p := range versions {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ID != result[j].ID {
			return result[i].ID < result[j].ID
		}
		return compareVersions(result[i].Version, result[j].Version) < 0
	})
	return result
}

// Count returns the number of registered (ID, version) pairs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, versions := range r.policies {
		n += len(versions)
	}
	return n
}

func samePolicy(a, b *domain.ScoringPolicy) bool {
	x, y := *a, *b
	x.CreatedAt, y.CreatedAt = time.Time{}, time.Time{}
	x.UpdatedAt, y.UpdatedAt = time.Time{}, time.Time{}
	return reflect.DeepEqual(x, y)
}

func latestVersion(versions map[string]*domain.ScoringPolicy) string {
	latest := ""
	for v := range versions {
		if latest == "" || compareVersions(v, latest) > 0 {
			latest = v
		}
	}
	return latest
}

// compareVersions orders dotted versions numerically where both parts are numbers.
func compareVersions(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "v"), ".")
	bs := strings.Split(strings.TrimPrefix(b, "v"), ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		xn, xerr := strconv.Atoi(x)
		yn, yerr := strconv.Atoi(y)
		switch {
		case xerr == nil && yerr == nil:
			if xn != yn {
				if xn < yn {
					return -1
				}
				return 1
			}
		case x != y:
			return strings.Compare(x, y)
		}
	}
	return 0
}
