// Package observability wires Prometheus metrics, OpenTelemetry tracing and
// structured logging for the engine and its HTTP surface.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// Pipeline stages observed by StageDuration.
const (
	StageValidate  = "validate"
	StageFilter    = "filter"
	StageBin       = "bin"
	StageLeaves    = "leaves"
	StageComposite = "composite"
)

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector bundles the engine's Prometheus metrics. A nil Collector records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	PipelineRuns  *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	LeafFailures  *prometheus.CounterVec
	Scores        *prometheus.GaugeVec
	HTTPRequests  *prometheus.CounterVec
}

// NewCollector registers the engine metrics against reg, defaulting to the
// global registry when nil. Registering twice returns the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geobeat_pipeline_runs_total",
		Help: "Scoring pipeline runs, labeled by policy and outcome.",
	}, []string{"policy", "outcome"}), "geobeat_pipeline_runs_total")
	if err != nil {
		return nil, err
	}

	stages, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geobeat_stage_duration_seconds",
		Help:    "Duration of each pipeline stage in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stage"}), "geobeat_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	leaves, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geobeat_leaf_failures_total",
		Help: "Leaf module failures, labeled by module and error kind.",
	}, []string{"module", "kind"}), "geobeat_leaf_failures_total")
	if err != nil {
		return nil, err
	}

	scores, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "geobeat_score",
		Help: "Most recent score per network and index.",
	}, []string{"network", "index"}), "geobeat_score")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geobeat_http_requests_total",
		Help: "HTTP requests, labeled by route pattern, method and status code.",
	}, []string{"route", "method", "code"}), "geobeat_http_requests_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:      gatherer,
		PipelineRuns:  runs,
		StageDuration: stages,
		LeafFailures:  leaves,
		Scores:        scores,
		HTTPRequests:  requests,
	}, nil
}

// Handler exposes the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveStage records how long a pipeline stage took.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRun counts one pipeline run.
func (c *Collector) RecordRun(policyID string, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	c.PipelineRuns.WithLabelValues(policyID, outcome).Inc()
}

// RecordLeafFailure counts a failed leaf module.
func (c *Collector) RecordLeafFailure(module string, err error) {
	if c == nil {
		return
	}
	c.LeafFailures.WithLabelValues(module, domain.ErrorKind(err)).Inc()
}

// SetScore publishes the sub-indices and composite of a score.
func (c *Collector) SetScore(s *domain.CompositeScore) {
	if c == nil || s == nil {
		return
	}
	c.Scores.WithLabelValues(s.Network, domain.IndexPhysical).Set(s.Physical.Score)
	c.Scores.WithLabelValues(s.Network, domain.IndexJurisdictional).Set(s.Jurisdictional.Score)
	c.Scores.WithLabelValues(s.Network, domain.IndexInfrastructure).Set(s.Infrastructure.Score)
	c.Scores.WithLabelValues(s.Network, domain.IndexNetworkSize).Set(s.NetworkSize)
	c.Scores.WithLabelValues(s.Network, domain.IndexGDI).Set(s.GDI)
}

// RecordRequest counts one HTTP request.
func (c *Collector) RecordRequest(route, method string, code int) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(route, method, fmt.Sprintf("%d", code)).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
