package job

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the registry's Prometheus collectors.
type Metrics struct {
	polls     *prometheus.CounterVec
	evictions *prometheus.CounterVec
	active    prometheus.Gauge
}

// NewMetrics registers the collectors with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		polls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaflow_polls_total",
			Help: "Job status fetches by outcome.",
		}, []string{"outcome"}),
		evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaflow_evictions_total",
			Help: "Jobs removed from the registry by reason.",
		}, []string{"reason"}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mediaflow_active_jobs",
			Help: "Tracked jobs that are still pending or processing.",
		}),
	}
}

func (m *Metrics) poll(outcome string) {
	if m != nil {
		m.polls.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) evicted(reason string) {
	if m != nil {
		m.evictions.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) setActive(n int) {
	if m != nil {
		m.active.Set(float64(n))
	}
}
