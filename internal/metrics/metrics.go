// Package metrics exposes Prometheus instrumentation for the scoring service.
package metrics

import (
	"net/http"
	"time"

	"github.com/opensource-finance/tamweel/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tamweel"

// Metrics holds the service collectors. Each instance owns its registry,
// so several can coexist in one process (tests, embedded servers).
type Metrics struct {
	registry *prometheus.Registry

	Assessments        *prometheus.CounterVec
	AssessmentDuration *prometheus.HistogramVec
	Scores             *prometheus.HistogramVec
	CacheLookups       *prometheus.CounterVec
	Findings           *prometheus.CounterVec
	Errors             *prometheus.CounterVec
	RulesLoaded        prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Assessments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assessments_total",
				Help:      "Total number of scored financing requests",
			},
			[]string{"profile", "classification"},
		),

		AssessmentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "assessment_duration_seconds",
				Help:      "Time taken to assess a financing request",
				Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
			},
			[]string{"profile"},
		),

		Scores: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "risk_score",
				Help:      "Distribution of computed risk scores",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
			[]string{"profile"},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Result cache lookups by outcome",
			},
			[]string{"result"},
		),

		Findings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "screening_findings_total",
				Help:      "Screening rule findings by severity",
			},
			[]string{"severity"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assessment_errors_total",
				Help:      "Rejected or failed assessments by reason",
			},
			[]string{"reason"},
		),

		RulesLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "screening_rules_loaded",
				Help:      "Number of compiled screening rules",
			},
		),
	}
}

// ObserveAssessment records one completed assessment.
func (m *Metrics) ObserveAssessment(a *domain.Assessment, elapsed time.Duration) {
	if m == nil || a == nil || a.Result == nil {
		return
	}
	profile := a.Result.ProfileID
	m.Assessments.WithLabelValues(profile, string(a.Result.Classification)).Inc()
	m.AssessmentDuration.WithLabelValues(profile).Observe(elapsed.Seconds())
	m.Scores.WithLabelValues(profile).Observe(a.Result.Score)
	for _, f := range a.Findings {
		m.Findings.WithLabelValues(f.Severity).Inc()
	}
}

// CacheHit counts a memoized result lookup.
func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheLookups.WithLabelValues("hit").Inc()
	}
}

// CacheMiss counts a lookup that fell through to the scorer.
func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheLookups.WithLabelValues("miss").Inc()
	}
}

// Error counts a failed assessment.
func (m *Metrics) Error(reason string) {
	if m != nil {
		m.Errors.WithLabelValues(reason).Inc()
	}
}

// SetRulesLoaded reports the number of compiled screening rules.
func (m *Metrics) SetRulesLoaded(n int) {
	if m != nil {
		m.RulesLoaded.Set(float64(n))
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
