// Package saga runs sagas: ordered steps with registered compensations that are
// rolled back most-recent-first when a later step fails.
package saga

import (
	"context"
	"fmt"
)

// StepFunc executes a forward step and returns its result.
type StepFunc func(ctx context.Context, in Inputs) (any, error)

// RollbackFunc undoes the effect of the step it follows.
type RollbackFunc func(ctx context.Context, in Inputs) error

// ReadinessFunc is checked once before the first step runs.
type ReadinessFunc func(ctx context.Context) error

// CatchFunc observes a failure after rollbacks finished.
type CatchFunc func(ctx context.Context, step string, err error) error

// Kind distinguishes forward steps from rollbacks in the execution list.
type Kind int

const (
	KindStep Kind = iota
	KindRollback
)

func (k Kind) String() string {
	switch k {
	case KindStep:
		return "step"
	case KindRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// StepRef identifies a step declared on a Definition. Pass it to Result to
// depend on that step's output.
type StepRef struct {
	def   *Definition
	index int
	name  string
}

// Name returns the referenced step name.
func (r StepRef) Name() string { return r.name }

// Valid reports whether r was returned by Definition.Step.
func (r StepRef) Valid() bool { return r.def != nil }

type stepConfig struct {
	name     string
	retry    RetryPolicy
	params   []Param
	blocking bool
}

// StepOption configures a step or rollback registration.
type StepOption func(cfg *stepConfig) error

// WithRetry sets the retry policy.
func WithRetry(policy RetryPolicy) StepOption {
	return func(cfg *stepConfig) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		cfg.retry = policy
		return nil
	}
}

// WithAttempts is shorthand for WithRetry(Retries(n)).
func WithAttempts(n int) StepOption {
	return WithRetry(Retries(n))
}

// WithParams declares the named inputs the function receives.
func WithParams(params ...Param) StepOption {
	return func(cfg *stepConfig) error {
		for _, p := range params {
			if p.name == "" {
				return fmt.Errorf("parameter name cannot be empty")
			}
		}
		cfg.params = append(cfg.params, params...)
		return nil
	}
}

// WithName overrides the generated rollback name.
func WithName(name string) StepOption {
	return func(cfg *stepConfig) error {
		if name == "" {
			return fmt.Errorf("name cannot be empty")
		}
		cfg.name = name
		return nil
	}
}

// Blocking marks a function that makes long synchronous calls. When the saga runs
// under a Manager it is executed on the manager's worker pool.
func Blocking() StepOption {
	return func(cfg *stepConfig) error {
		cfg.blocking = true
		return nil
	}
}
