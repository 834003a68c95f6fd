package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for fund name resolution.
type Metrics struct {
	// Resolutions by winning strategy ("none" for misses)
	Resolutions *prometheus.CounterVec

	ResolveLatency prometheus.Histogram
}

// New creates and registers the resolver metrics.
func New() *Metrics {
	return &Metrics{
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mfetl_resolver_resolutions_total",
			Help: "Fund name resolutions by matching strategy",
		}, []string{"strategy"}),

		ResolveLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mfetl_resolver_resolve_duration_seconds",
			Help:    "Duration of a single fund name resolution",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
	}
}

// ObserveResolution records the strategy that produced a result and how long it took.
func (m *Metrics) ObserveResolution(strategy string, d time.Duration) {
	if m != nil {
		m.Resolutions.WithLabelValues(strategy).Inc()
		m.ResolveLatency.Observe(d.Seconds())
	}
}
