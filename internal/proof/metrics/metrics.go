package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks proof generation and verification by kind.
type Metrics struct {
	Generated *prometheus.CounterVec
	Verified  *prometheus.CounterVec
	Duration  *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		Generated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pidgate_proofs_generated_total",
			Help: "Proofs generated, by kind and outcome",
		}, []string{"kind", "outcome"}),
		Verified: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pidgate_proofs_verified_total",
			Help: "Proof verifications, by kind and reason (ok when valid)",
		}, []string{"kind", "reason"}),
		Duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pidgate_proof_duration_seconds",
			Help:    "Duration of proof generation and verification",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"kind", "op"}),
	}
}

// ObserveGenerate records one generation attempt.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveGenerate(kind string, err error, start time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Generated.WithLabelValues(kind, outcome).Inc()
	m.Duration.WithLabelValues(kind, "generate").Observe(time.Since(start).Seconds())
}

// ObserveVerify records one verification.
func (m *Metrics) ObserveVerify(kind, reason string, start time.Time) {
	if reason == "" {
		reason = "ok"
	}
	m.Verified.WithLabelValues(kind, reason).Inc()
	m.Duration.WithLabelValues(kind, "verify").Observe(time.Since(start).Seconds())
}
