package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/orsa-go/orsa/pkg/saga"
)

var _ saga.MetricsRecorder = (*Manager)(nil)

func (m *Manager) initSagaMetrics(cfg Config) {
	m.sagaExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_executions_total",
			Help: "Total number of saga executions by terminal status",
		},
		[]string{"status"},
	)

	m.sagaDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saga_duration_seconds",
			Help:    "Saga execution duration in seconds",
			Buckets: cfg.SagaDurationBuckets,
		},
		[]string{"status"},
	)

	m.sagaActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "saga_active_count",
			Help: "Current number of running saga executions",
		},
	)

	m.stepRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "saga_step_retries_total",
			Help: "Total number of step attempts after the first",
		},
	)

	m.sagaRollbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_rollbacks_total",
			Help: "Total number of rollback invocations by status",
		},
		[]string{"status"},
	)

	m.sagaRestores = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_restores_total",
			Help: "Total number of saga restore attempts by status",
		},
		[]string{"status"},
	)

	m.registry.MustRegister(m.sagaExecutions)
	m.registry.MustRegister(m.sagaDuration)
	m.registry.MustRegister(m.sagaActive)
	m.registry.MustRegister(m.stepRetries)
	m.registry.MustRegister(m.sagaRollbacks)
	m.registry.MustRegister(m.sagaRestores)
}

// RecordSagaExecution records one saga execution outcome.
func (m *Manager) RecordSagaExecution(status string) {
	if !m.enabled {
		return
	}
	m.sagaExecutions.WithLabelValues(status).Inc()
}

// RecordSagaDuration records saga execution latency.
func (m *Manager) RecordSagaDuration(status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.sagaDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// IncActiveSagas increments current active saga count.
func (m *Manager) IncActiveSagas() {
	if !m.enabled {
		return
	}
	m.sagaActive.Inc()
}

// DecActiveSagas decrements current active saga count.
func (m *Manager) DecActiveSagas() {
	if !m.enabled {
		return
	}
	m.sagaActive.Dec()
}

// RecordStepRetry records one step retry.
func (m *Manager) RecordStepRetry() {
	if !m.enabled {
		return
	}
	m.stepRetries.Inc()
}

// RecordRollback records one rollback outcome.
func (m *Manager) RecordRollback(status string) {
	if !m.enabled {
		return
	}
	m.sagaRollbacks.WithLabelValues(status).Inc()
}

// RecordSagaRestore records one restore outcome.
func (m *Manager) RecordSagaRestore(status string) {
	if !m.enabled {
		return
	}
	m.sagaRestores.WithLabelValues(status).Inc()
}
