package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fund outcomes.
const (
	OutcomeEnriched   = "enriched"
	OutcomeUnresolved = "unresolved"
	OutcomeFailed     = "failed"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics provides observability for the enrichment pipeline.
type Metrics struct {
	Funds *prometheus.CounterVec

	// End-to-end latency of an enrichment request
	Duration prometheus.Histogram

	CacheLookups *prometheus.CounterVec
}

// New creates and registers the enrichment metrics.
func New() *Metrics {
	return &Metrics{
		Funds: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mfetl_enrichment_funds_total",
			Help: "Funds processed by the enrichment pipeline by outcome",
		}, []string{"outcome"}),

		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mfetl_enrichment_duration_seconds",
			Help:    "Duration of enrichment requests",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mfetl_enrichment_cache_lookups_total",
			Help: "Enrichment cache lookups by result",
		}, []string{"result"}),
	}
}

// IncFund counts one fund outcome.
func (m *Metrics) IncFund(outcome string) {
	if m != nil {
		m.Funds.WithLabelValues(outcome).Inc()
	}
}

// ObserveDuration records how long an enrichment request took.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m != nil {
		m.Duration.Observe(d.Seconds())
	}
}

// IncCacheLookup counts a cache lookup result.
func (m *Metrics) IncCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}
