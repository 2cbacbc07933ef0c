package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Transitions *prometheus.CounterVec
	Active      prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pidgate_session_transitions_total",
			Help: "Cross-device session state transitions, by target status",
		}, []string{"status"}),
		Active: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pidgate_sessions_active",
			Help: "Sessions with a pending expiry timer",
		}),
	}
}

func (m *Metrics) IncrementTransition(status string) {
	m.Transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) SetActive(n int) {
	m.Active.Set(float64(n))
}
