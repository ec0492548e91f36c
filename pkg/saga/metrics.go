package saga

import "time"

// MetricsRecorder records saga runtime metrics.
type MetricsRecorder interface {
	RecordSagaExecution(status string)
	RecordSagaDuration(status string, duration time.Duration)
	IncActiveSagas()
	DecActiveSagas()
	RecordStepRetry()
	RecordRollback(status string)
	RecordSagaRestore(status string)
}

type nopMetricsRecorder struct{}

func (nopMetricsRecorder) RecordSagaExecution(string)               {}
func (nopMetricsRecorder) RecordSagaDuration(string, time.Duration) {}
func (nopMetricsRecorder) IncActiveSagas()                          {}
func (nopMetricsRecorder) DecActiveSagas()                          {}
func (nopMetricsRecorder) RecordStepRetry()                         {}
func (nopMetricsRecorder) RecordRollback(string)                    {}
func (nopMetricsRecorder) RecordSagaRestore(string)                 {}

// Status labels used with MetricsRecorder.
const (
	statusSuccess = "success"
	statusFailure = "failure"
)
