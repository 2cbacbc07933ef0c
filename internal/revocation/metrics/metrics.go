package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks revocations and fail-closed checks.
type Metrics struct {
	Revocations   prometheus.Counter
	ListVersion   prometheus.Gauge
	ListEntries   prometheus.Gauge
	UntrustedHits prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Revocations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pidgate_revocations_total",
			Help: "Total number of PIDs revoked",
		}),
		ListVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pidgate_revocation_list_version",
			Help: "Version of the latest published revocation list",
		}),
		ListEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pidgate_revocation_list_entries",
			Help: "Entries in the latest published revocation list",
		}),
		UntrustedHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pidgate_revocation_untrusted_checks_total",
			Help: "Revocation checks denied because the list could not be authenticated",
		}),
	}
}

func (m *Metrics) ObservePublish(version uint64, entries int) {
	m.ListVersion.Set(float64(version))
	m.ListEntries.Set(float64(entries))
}

func (m *Metrics) IncrementRevocations() {
	m.Revocations.Inc()
}

func (m *Metrics) IncrementUntrusted() {
	m.UntrustedHits.Inc()
}
