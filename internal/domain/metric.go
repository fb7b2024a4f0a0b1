package domain

// MetricKind names a statistic produced by a leaf module.
type MetricKind string

const (
	MetricMoransI         MetricKind = "morans_i"
	MetricSpatialHHI      MetricKind = "spatial_hhi"
	MetricCategoricalHHI  MetricKind = "categorical_hhi"
	MetricEffectiveNumber MetricKind = "effective_number"
	MetricNearestNeighbor MetricKind = "nearest_neighbor_ratio"
)

// MetricResult is the value object returned by every statistical module.
// Optional statistics are nil when they do not apply.
type MetricResult struct {
	Metric         MetricKind `json:"metric"`
	Attribute      string     `json:"attribute,omitempty"`
	Value          float64    `json:"value"`
	Expected       *float64   `json:"expected,omitempty"`
	PValue         *float64   `json:"pValue,omitempty"`
	ZScore         *float64   `json:"zScore,omitempty"`
	Interpretation string     `json:"interpretation"`

	// Metadata holds numeric diagnostics such as counts and thresholds.
	Metadata map[string]float64 `json:"metadata,omitempty"`

	// Top lists the most concentrated categories or cells.
	Top []CategoryShare `json:"top,omitempty"`

	// Isolated lists node ids with no neighbor inside the distance threshold.
	Isolated []string `json:"isolated,omitempty"`
}

// Meta returns a metadata value and whether it was recorded.
func (m *MetricResult) Meta(key string) (float64, bool) {
	v, ok := m.Metadata[key]
	return v, ok
}

// Float returns a pointer to v for optional MetricResult fields.
func Float(v float64) *float64 {
	return &v
}

// LeafMetrics carries every leaf output that feeds the composite.
type LeafMetrics struct {
	Autocorrelation       *MetricResult `json:"autocorrelation"`
	SpatialConcentration  *MetricResult `json:"spatialConcentration"`
	LocationDiversity     *MetricResult `json:"locationDiversity"`
	NearestNeighbor       *MetricResult `json:"nearestNeighbor"`
	CountryDiversity      *MetricResult `json:"countryDiversity"`
	OrganizationDiversity *MetricResult `json:"organizationDiversity"`

	Jurisdiction   *CategoryProfile `json:"jurisdiction"`
	Infrastructure *CategoryProfile `json:"infrastructure"`

	Totals NodeTotals `json:"totals"`
}

// Significance levels shared by the permutation and analytic tests.
const (
	SignificanceStrong   = 0.01
	SignificanceModerate = 0.05
)

// PatternLabel interprets a test result as clustering, dispersion or randomness.
// Without a p-value only the direction is reported.
func PatternLabel(p *float64, clustered bool) string {
	direction := "dispersion"
	if clustered {
		direction = "clustering"
	}
	switch {
	case p == nil:
		return direction + " (not tested)"
	case *p < SignificanceStrong:
		return "significant " + direction
	case *p < SignificanceModerate:
		return "moderate " + direction
	default:
		return "random"
	}
}
