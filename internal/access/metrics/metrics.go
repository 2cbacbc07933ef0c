package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Resolutions *prometheus.CounterVec
	Latency     prometheus.Histogram
	Policies    prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pidgate_access_resolutions_total",
			Help: "PID to address resolution attempts, by outcome",
		}, []string{"outcome"}),
		Latency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pidgate_access_resolution_duration_seconds",
			Help:    "Time spent authorizing, decrypting and auditing a resolution",
			Buckets: prometheus.DefBuckets,
		}),
		Policies: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pidgate_access_policies",
			Help: "Number of stored access policies",
		}),
	}
}

func (m *Metrics) ObserveResolution(outcome string, start time.Time) {
	m.Resolutions.WithLabelValues(outcome).Inc()
	m.Latency.Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetPolicies(n int) {
	m.Policies.Set(float64(n))
}
