package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFallback = "fallback"
	OutcomeFailure  = "failure"
)

// Metrics provides observability for the scheme registry.
type Metrics struct {
	SnapshotEntries prometheus.Gauge
	Refreshes       *prometheus.CounterVec
	RefreshLatency  prometheus.Histogram
}

// New creates and registers the registry metrics.
func New() *Metrics {
	return &Metrics{
		SnapshotEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mfetl_registry_snapshot_entries",
			Help: "Number of schemes in the active registry snapshot",
		}),
		Refreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mfetl_registry_refresh_total",
			Help: "Registry refresh attempts by outcome",
		}, []string{"outcome"}),
		RefreshLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mfetl_registry_refresh_duration_seconds",
			Help:    "Duration of registry refreshes",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// ObserveRefresh records one refresh. Safe on a nil receiver.
func (m *Metrics) ObserveRefresh(outcome string, entries int, d time.Duration) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(outcome).Inc()
	m.RefreshLatency.Observe(d.Seconds())
	if entries > 0 {
		m.SnapshotEntries.Set(float64(entries))
	}
}
