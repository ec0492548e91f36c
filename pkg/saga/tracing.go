package saga

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const sagaTracerName = "orsa.saga"

const (
	spanSagaExecute  = "saga.execute"
	spanSagaStep     = "saga.step"
	spanSagaRollback = "saga.rollback"
	spanSagaRestore  = "saga.restore"
)

func sagaTracer() trace.Tracer {
	return otel.Tracer(sagaTracerName)
}
