package autocorr

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/geo"
)

// MinNodes is the smallest input for which Moran's I is computed.
const MinNodes = 3

// Options configures one autocorrelation run.
type Options struct {
	ThresholdKm      float64
	Permutations     int
	Seed             uint64
	Workers          int
	Attribute        domain.AttributeMode
	DensityNeighbors int
	BruteForceLimit  int

	// Values overrides Attribute with one explicit value per located node.
	Values []float64
}

// OptionsFromConfig maps engine configuration onto Options.
func OptionsFromConfig(cfg domain.EngineConfig) Options {
	return Options{
		ThresholdKm:      cfg.DistanceThresholdKm,
		Permutations:     cfg.Permutations,
		Seed:             cfg.Seed,
		Workers:          cfg.Workers,
		Attribute:        cfg.Attribute,
		DensityNeighbors: cfg.DensityNeighbors,
		BruteForceLimit:  cfg.BruteForceLimit,
	}
}

func (o *Options) normalize() {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.DensityNeighbors <= 0 {
		o.DensityNeighbors = 5
	}
}

// MoransI computes global Moran's I over distance-band weights with a permutation test.
// Isolated nodes are excluded from the statistic and listed in the result.
func MoransI(ctx context.Context, locs []domain.Location, ids []string, opts Options) (*domain.MetricResult, error) {
	opts.normalize()
	n := len(locs)
	if n < MinNodes {
		return nil, &domain.InsufficientDataError{
			Module:   domain.ModuleAutocorrelation,
			Required: MinNodes,
			Got:      n,
			Detail:   "nodes with coordinates",
		}
	}
	if !(opts.ThresholdKm > 0) {
		return nil, &domain.ConfigurationError{Field: "engine.distanceThresholdKm", Value: opts.ThresholdKm, Reason: "must be > 0"}
	}

	idx := geo.NewIndex(locs, opts.BruteForceLimit)
	w := BuildWeights(idx, opts.ThresholdKm)
	connected := w.Connected()
	if len(connected) == 0 {
		return nil, &domain.DegenerateInputError{
			Module: domain.ModuleAutocorrelation,
			Reason: fmt.Sprintf("every node is isolated at %v km", opts.ThresholdKm),
			Nodes:  n,
		}
	}
	if len(connected) < MinNodes {
		return nil, &domain.InsufficientDataError{
			Module:   domain.ModuleAutocorrelation,
			Required: MinNodes,
			Got:      len(connected),
			Detail:   fmt.Sprintf("nodes with a neighbor within %v km; %d isolated", opts.ThresholdKm, len(w.Isolated)),
		}
	}

	values, attrName, err := attributeValues(idx, opts)
	if err != nil {
		return nil, err
	}

	lw := newLinkedWeights(w, connected)
	z := make([]float64, len(connected))
	for p, i := range connected {
		z[p] = values[i]
	}
	constant := true
	for p := range z {
		if z[p] != z[0] {
			constant = false
			break
		}
	}
	mean := stat.Mean(z, nil)
	var den float64
	for p := range z {
		z[p] -= mean
		den += z[p] * z[p]
	}
	if constant || den == 0 || math.IsNaN(den) {
		return nil, &domain.DegenerateInputError{
			Module: domain.ModuleAutocorrelation,
			Reason: fmt.Sprintf("attribute %q has zero variance", attrName),
			Nodes:  len(connected),
		}
	}

	observed := lw.statistic(z, den)
	m := float64(len(connected))
	expected := -1 / (m - 1)

	result := &domain.MetricResult{
		Metric:    domain.MetricMoransI,
		Attribute: attrName,
		Value:     observed,
		Expected:  domain.Float(expected),
		Metadata: map[string]float64{
			"nodes":          float64(n),
			"connected":      m,
			"isolated":       float64(len(w.Isolated)),
			"threshold_km":   opts.ThresholdKm,
			"mean_neighbors": float64(w.Links()) / m,
			"permutations":   float64(opts.Permutations),
		},
	}
	for _, i := range w.Isolated {
		result.Isolated = append(result.Isolated, ids[i])
	}

	if opts.Permutations > 0 {
		perms, err := lw.permute(ctx, z, den, opts)
		if err != nil {
			return nil, err
		}
		applyPermutationTest(result, perms, observed, expected)
	}

	clustered := observed > 0
	result.Interpretation = domain.PatternLabel(result.PValue, clustered)
	if !clustered && result.PValue != nil && *result.PValue < domain.SignificanceModerate {
		result.Interpretation += " (unusual)"
		result.Metadata["unusual"] = 1
	}
	return result, nil
}

// applyPermutationTest records the two-sided pseudo p-value (extremeness measured from
// the analytic expectation, counted with the observed value as one draw) and the
// z-score against the permutation distribution.
func applyPermutationTest(result *domain.MetricResult, perms []float64, observed, expected float64) {
	extreme := math.Abs(observed - expected)
	tol := 1e-12 * math.Max(1, math.Abs(observed))
	atLeast := 0
	for _, v := range perms {
		if math.Abs(v-expected) >= extreme-tol {
			atLeast++
		}
	}
	p := float64(atLeast+1) / float64(len(perms)+1)
	result.PValue = domain.Float(p)

	mean, std := stat.MeanStdDev(perms, nil)
	result.Metadata["permutation_mean"] = mean
	result.Metadata["permutation_std"] = std
	result.Metadata["extreme_permutations"] = float64(atLeast)
	if std > tol {
		result.ZScore = domain.Float((observed - mean) / std)
	}
}

// linkedWeights is the row-standardized weights restricted to connected nodes,
// addressed by position in the connected list.
type linkedWeights struct {
	rows   [][]int
	weight []float64
}

func newLinkedWeights(w *Weights, connected []int) *linkedWeights {
	pos := make(map[int]int, len(connected))
	for p, i := range connected {
		pos[i] = p
	}
	lw := &linkedWeights{
		rows:   make([][]int, len(connected)),
		weight: make([]float64, len(connected)),
	}
	for p, i := range connected {
		nbrs := w.Neighbors[i]
		row := make([]int, len(nbrs))
		for k, j := range nbrs {
			row[k] = pos[j]
		}
		lw.rows[p] = row
		lw.weight[p] = 1 / float64(len(nbrs))
	}
	return lw
}

// statistic evaluates I = (n/S0) · Σ_i Σ_j w_ij z_i z_j / Σ z². Rows sum to 1, so S0 = n.
func (lw *linkedWeights) statistic(z []float64, den float64) float64 {
	var num float64
	for p, row := range lw.rows {
		var lag float64
		for _, q := range row {
			lag += z[q]
		}
		num += lw.weight[p] * z[p] * lag
	}
	return num / den
}

// permute evaluates the statistic under opts.Permutations reshufflings of z.
// Permutation k draws from its own PCG stream seeded with (Seed, k), so results do
// not depend on scheduling or worker count.
func (lw *linkedWeights) permute(ctx context.Context, z []float64, den float64, opts Options) ([]float64, error) {
	out := make([]float64, opts.Permutations)
	chunk := (opts.Permutations + opts.Workers - 1) / opts.Workers

	var wg sync.WaitGroup
	sem := make(chan struct{}, opts.Workers)
	for start := 0; start < opts.Permutations; start += chunk {
		end := min(start+chunk, opts.Permutations)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			shuffled := make([]float64, len(z))
			for k := start; k < end; k++ {
				if ctx.Err() != nil {
					return
				}
				copy(shuffled, z)
				rng := rand.New(rand.NewPCG(opts.Seed, uint64(k)))
				rng.Shuffle(len(shuffled), func(a, b int) {
					shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
				})
				out[k] = lw.statistic(shuffled, den)
			}
		}(start, end)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("permutation test interrupted: %w", err)
	}
	return out, nil
}
