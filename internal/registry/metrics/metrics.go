package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks registry growth and root acceptance.
type Metrics struct {
	LeavesAppended *prometheus.CounterVec
	RootVersion    *prometheus.GaugeVec
	LeafCount      *prometheus.GaugeVec
	RootRejections *prometheus.CounterVec
}

// New registers the registry metrics with the default registerer.
func New() *Metrics {
	return &Metrics{
		LeavesAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pidgate_registry_leaves_appended_total",
			Help: "Total number of PID commitments appended to a registry",
		}, []string{"scope"}),
		RootVersion: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pidgate_registry_root_version",
			Help: "Version of the latest published registry root",
		}, []string{"scope"}),
		LeafCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pidgate_registry_leaf_count",
			Help: "Number of leaves under the latest published registry root",
		}, []string{"scope"}),
		RootRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pidgate_registry_root_rejections_total",
			Help: "Presented roots rejected by the root authority, by reason",
		}, []string{"reason"}),
	}
}

// ObservePublish records a newly published root.
func (m *Metrics) ObservePublish(scope string, appended int, version uint64, leaves int) {
	m.LeavesAppended.WithLabelValues(scope).Add(float64(appended))
	m.RootVersion.WithLabelValues(scope).Set(float64(version))
	m.LeafCount.WithLabelValues(scope).Set(float64(leaves))
}

// IncrementRootRejection records a rejected root.
func (m *Metrics) IncrementRootRejection(reason string) {
	m.RootRejections.WithLabelValues(reason).Inc()
}
