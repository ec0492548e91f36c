package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Manager) initEventMetrics() {
	m.eventPublish = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_event_publish_total",
			Help: "Total lifecycle event publishes by event type and status",
		},
		[]string{"event", "status"},
	)

	m.eventRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "saga_event_publish_retries_total",
			Help: "Total number of lifecycle event publish retries",
		},
	)

	m.eventDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "saga_event_bus_degraded",
			Help: "Whether the event transport is currently degraded (1=degraded)",
		},
	)

	m.registry.MustRegister(m.eventPublish)
	m.registry.MustRegister(m.eventRetries)
	m.registry.MustRegister(m.eventDegraded)
}

// RecordEventPublish records one publish outcome.
func (m *Manager) RecordEventPublish(eventType, status string) {
	if !m.enabled {
		return
	}
	m.eventPublish.WithLabelValues(eventType, status).Inc()
}

// RecordEventRetry records one publish retry.
func (m *Manager) RecordEventRetry() {
	if !m.enabled {
		return
	}
	m.eventRetries.Inc()
}

// SetEventBusDegraded sets the degraded gauge.
func (m *Manager) SetEventBusDegraded(active bool) {
	if !m.enabled {
		return
	}
	if active {
		m.eventDegraded.Set(1)
		return
	}
	m.eventDegraded.Set(0)
}
