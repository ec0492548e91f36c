package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/orsa-go/orsa/pkg/logger"
	"github.com/orsa-go/orsa/pkg/saga"
)

// Demo declarations served by the admin API. They stand in for real
// integrations and are registered under "exchange" and "order".

var errExchangeLimit = errors.New("amount exceeds exchange limit")

const exchangeLimit = 1000

// stepRetry is read every time a demo saga declares its steps, so a config
// reload applies to the next submitted saga.
var stepRetry atomic.Pointer[saga.RetryPolicy]

func init() {
	p := saga.DefaultRetryPolicy()
	stepRetry.Store(&p)
}

func setStepRetry(p saga.RetryPolicy) { stepRetry.Store(&p) }

func currentRetry() saga.RetryPolicy { return *stepRetry.Load() }

// exchangeDeclaration moves money between two currency accounts. Amounts above
// exchangeLimit fail the conversion and refund the withdrawal.
func exchangeDeclaration() *saga.Declaration {
	return saga.Declare("exchange", func(d *saga.Definition, in saga.Inputs) error {
		amount := saga.Value[float64](in, "amount")
		from := saga.Value[string](in, "from")
		to := saga.Value[string](in, "to")
		retry := saga.WithRetry(currentRetry())

		withdraw := d.Step("withdraw", func(ctx context.Context, _ saga.Inputs) (any, error) {
			logger.FromContext(ctx).InfoContext(ctx, "withdraw", "amount", amount, "currency", from)
			return "wd-" + uuid.NewString()[:8], nil
		}, retry)
		d.Rollback(func(ctx context.Context, in saga.Inputs) error {
			logger.FromContext(ctx).InfoContext(ctx, "refund", "withdrawal", in.Get("withdrawal"))
			return nil
		}, saga.WithParams(saga.Result("withdrawal", withdraw)))

		converted := d.Step("convert", func(context.Context, saga.Inputs) (any, error) {
			if amount > exchangeLimit {
				return nil, fmt.Errorf("%w: %.2f %s", errExchangeLimit, amount, from)
			}
			return amount * 0.9, nil
		}, retry)

		d.Step("deposit", func(_ context.Context, in saga.Inputs) (any, error) {
			return fmt.Sprintf("%.2f %s", saga.Value[float64](in, "converted"), to), nil
		}, retry, saga.WithParams(saga.Result("converted", converted)))
		return nil
	}, saga.Params("amount", "from", "to"))
}

var errOutOfStock = errors.New("item out of stock")

// orderDeclaration reserves stock, charges and ships. Its readiness check
// rejects an order for an empty sku before anything is reserved, and the catch
// hook logs the failed step after rollbacks ran.
func orderDeclaration() *saga.Declaration {
	return saga.Declare("order", func(d *saga.Definition, in saga.Inputs) error {
		sku := saga.Value[string](in, "sku")
		qty := saga.Value[int](in, "qty")

		d.Readiness(func(context.Context) error {
			if sku == "" || qty <= 0 {
				return fmt.Errorf("order needs a sku and a positive qty")
			}
			return nil
		})

		reserve := d.Step("reserve", func(context.Context, saga.Inputs) (any, error) {
			if qty > 100 {
				return nil, errOutOfStock
			}
			return fmt.Sprintf("%s x%d", sku, qty), nil
		})
		d.Rollback(func(context.Context, saga.Inputs) error { return nil })

		charge := d.Step("charge", func(context.Context, saga.Inputs) (any, error) {
			return "ch-" + uuid.NewString()[:8], nil
		}, saga.WithRetry(currentRetry()), saga.Blocking())
		d.Rollback(func(context.Context, saga.Inputs) error { return nil })

		d.Step("ship", func(_ context.Context, in saga.Inputs) (any, error) {
			return fmt.Sprintf("shipped %s (%s)", in.Get("reservation"), in.Get("charge")), nil
		}, saga.WithParams(saga.Result("reservation", reserve), saga.Result("charge", charge)))

		d.Catch(func(ctx context.Context, step string, err error) error {
			logger.FromContext(ctx).WarnContext(ctx, "order aborted", logger.StepKey, step, "error", err)
			return nil
		})
		return nil
	}, saga.Params("sku", "qty"))
}

func registerDemo(r *saga.Registry) error {
	return errors.Join(r.Register(exchangeDeclaration()), r.Register(orderDeclaration()))
}
