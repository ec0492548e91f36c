package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Manager) initStorageMetrics() {
	m.snapshotWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_snapshot_writes_total",
			Help: "Total snapshot writes by backend and status",
		},
		[]string{"backend", "status"},
	)

	m.registry.MustRegister(m.snapshotWrites)
}

// RecordSnapshotWrite records one snapshot write.
func (m *Manager) RecordSnapshotWrite(backend, status string) {
	if !m.enabled {
		return
	}
	m.snapshotWrites.WithLabelValues(backend, status).Inc()
}
