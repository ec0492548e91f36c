package saga

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-retry"

	"github.com/orsa-go/orsa/pkg/logger"
)

// callee is one entry of a saga's execution list: a step or a rollback with its
// bound parameters and retry policy.
type callee struct {
	name     string
	kind     Kind
	fn       StepFunc
	params   []Param
	retry    RetryPolicy
	blocking bool
	// compensates names the step a rollback follows.
	compensates string
}

// invocation carries what a callee needs from the running engine.
type invocation struct {
	call    map[string]any
	results map[string]any
	log     logger.Logger
	pool    *WorkerPool
	metrics MetricsRecorder
}

// invoke runs the function under the retry policy, binding the parameters afresh
// before every attempt. It returns the result, the number of attempts made and the
// error of the last attempt. A binding error ends the loop without a retry.
// A cancelled wait between attempts still reports the step's own error.
func (c *callee) invoke(ctx context.Context, inv invocation) (any, int, error) {
	var (
		result   any
		attempts int
		lastErr  error
	)
	err := retry.Do(ctx, c.retry.backoff(), func(ctx context.Context) error {
		in, bindErr := bind(c.name, c.params, inv.call, inv.results)
		if bindErr != nil {
			lastErr = bindErr
			return bindErr
		}

		attempts++
		if attempts > 1 {
			inv.metrics.RecordStepRetry()
			inv.log.DebugContext(ctx, "retrying", logger.StepKey, c.name, "attempt", attempts)
		}
		v, callErr := c.call(ctx, in, inv.pool)
		if callErr != nil {
			lastErr = callErr
			inv.log.WarnContext(ctx, "attempt failed",
				logger.StepKey, c.name,
				"kind", c.kind.String(),
				"attempt", attempts,
				"error", callErr,
			)
			return retry.RetryableError(callErr)
		}
		result = v
		return nil
	})
	if err != nil {
		if lastErr != nil {
			return nil, attempts, lastErr
		}
		return nil, attempts, err
	}
	return result, attempts, nil
}

func (c *callee) call(ctx context.Context, in Inputs, pool *WorkerPool) (any, error) {
	if !c.blocking || pool == nil {
		return c.safeCall(ctx, in)
	}

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	submitted := pool.Submit(ctx, func() {
		v, err := c.safeCall(ctx, in)
		done <- outcome{value: v, err: err}
	})
	if !submitted {
		return c.safeCall(ctx, in)
	}
	o := <-done
	return o.value, o.err
}

func (c *callee) safeCall(ctx context.Context, in Inputs) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s %q panicked: %v", c.kind, c.name, r)
		}
	}()
	return c.fn(ctx, in)
}
