// Package monitoring exposes Prometheus metrics for source calls, cascade
// outcomes and consensus agreement.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

// Config controls metric collection.
type Config struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// Metrics holds the collectors. A disabled or nil *Metrics is a no-op.
type Metrics struct {
	sourceCalls    *prometheus.CounterVec
	sourceDuration *prometheus.HistogramVec
	cascadeResults *prometheus.CounterVec
	cascadeLevel   *prometheus.CounterVec
	concordance    prometheus.Histogram

	registry *prometheus.Registry
}

// New creates the metric set on a private registry.
func New(cfg Config) *Metrics {
	if !cfg.Enabled {
		return &Metrics{}
	}

	ns := cfg.Namespace
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		sourceCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "source_calls_total",
				Help:      "Geocoding source calls by terminal status",
			},
			[]string{"source", "status"},
		),
		sourceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "source_duration_seconds",
				Help:      "Geocoding source response time in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"source"},
		),
		cascadeResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "cascade_results_total",
				Help:      "Cascade resolutions by category and outcome",
			},
			[]string{"category", "outcome"},
		),
		cascadeLevel: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "cascade_accepted_level_total",
				Help:      "Cascade hits by accepting level",
			},
			[]string{"level"},
		),
		concordance: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "consensus_concordance",
				Help:      "Concordance score of consensus analyses",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		),
	}

	registry.MustRegister(
		m.sourceCalls,
		m.sourceDuration,
		m.cascadeResults,
		m.cascadeLevel,
		m.concordance,
	)
	return m
}

// ObserveSource records one adapter call.
func (m *Metrics) ObserveSource(r geocode.SourceResult) {
	if m == nil || m.sourceCalls == nil {
		return
	}
	m.sourceCalls.WithLabelValues(r.SourceID, string(r.Status)).Inc()
	m.sourceDuration.WithLabelValues(r.SourceID).Observe(float64(r.ResponseTimeMs) / 1000)
}

// ObserveCascade records the outcome of one cascade resolution: "resolved",
// "not_found" or "error". level is the accepting level for resolved items.
func (m *Metrics) ObserveCascade(category geocode.Category, outcome, level string) {
	if m == nil || m.cascadeResults == nil {
		return
	}
	m.cascadeResults.WithLabelValues(string(category), outcome).Inc()
	if level != "" {
		m.cascadeLevel.WithLabelValues(level).Inc()
	}
}

// ObserveConcordance records a consensus concordance score.
func (m *Metrics) ObserveConcordance(score float64) {
	if m == nil || m.concordance == nil {
		return
	}
	m.concordance.Observe(score)
}

// Registry returns the underlying registry, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
