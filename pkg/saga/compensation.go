package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orsa-go/orsa/pkg/logger"
)

// compensate walks the execution list backwards from the entry before failed and
// runs every rollback that belongs to a step. The failing step's own rollback sits
// after it and is never reached. A rollback declared before any step belongs to
// none and is skipped. Rollback failures are recorded and the walk continues.
func (e *Engine) compensate(ctx context.Context, def *Definition, failed int) []*RollbackError {
	var errs []*RollbackError
	for i := failed - 1; i >= 0; i-- {
		c := def.callees[i]
		if c.kind != KindRollback || c.compensates == "" {
			continue
		}
		e.setCurrent(i)
		if err := e.runRollback(ctx, c); err != nil {
			errs = append(errs, &RollbackError{Step: c.compensates, Rollback: c.name, Err: err})
		}
	}
	return errs
}

func (e *Engine) runRollback(ctx context.Context, c *callee) error {
	ctx, span := sagaTracer().Start(ctx, spanSagaRollback, trace.WithAttributes(
		attribute.String("saga.name", e.Name()),
		attribute.String("saga.uid", e.uid),
		attribute.String("saga.rollback", c.name),
		attribute.String("saga.step", c.compensates),
	))
	defer span.End()

	_, attempts, err := c.invoke(ctx, e.invocation())
	span.SetAttributes(attribute.Int("saga.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.RecordRollback(statusFailure)
		e.log.ErrorContext(ctx, "rollback failed",
			logger.StepKey, c.compensates,
			"rollback", c.name,
			"attempts", attempts,
			"error", err,
		)
		return err
	}

	e.metrics.RecordRollback(statusSuccess)
	e.log.InfoContext(ctx, "rollback completed", logger.StepKey, c.compensates, "rollback", c.name)
	return nil
}
