package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orsa-go/orsa/pkg/logger"
)

// committer is notified after every step commit.
type committer interface {
	commit(ctx context.Context, e *Engine)
}

// EngineOption configures an Engine.
type EngineOption func(e *Engine)

// WithEngineLogger sets the engine logger.
func WithEngineLogger(l logger.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.baseLog = l
		}
	}
}

// WithEngineMetrics sets the metrics recorder.
func WithEngineMetrics(m MetricsRecorder) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithUID fixes the instance uid instead of generating one.
func WithUID(uid string) EngineOption {
	return func(e *Engine) {
		if uid != "" {
			e.uid = uid
		}
	}
}

// WithResults seeds the result map. Steps whose name is present are skipped.
func WithResults(results map[string]any) EngineOption {
	return func(e *Engine) {
		e.results = copyResultMap(results)
		e.restored = len(results) > 0
	}
}

// Engine executes one saga instance: it declares the steps, runs them in order
// and on failure rolls back every registered compensation before the failing step.
type Engine struct {
	uid     string
	decl    *Declaration
	call    Args
	values  map[string]any
	baseLog logger.Logger
	log     logger.Logger
	metrics MetricsRecorder

	pool      *WorkerPool
	committer committer
	fsm       *stateless.StateMachine
	ran       atomic.Bool

	mu           sync.RWMutex
	steps        []string
	results      map[string]any
	lastCommit   string
	current      int
	restored     bool
	failure      *StepExecutionError
	rollbackErrs []*RollbackError
	startedAt    time.Time
	finishedAt   time.Time
}

// NewEngine prepares an execution of decl with the given call arguments.
func NewEngine(decl *Declaration, call Args, opts ...EngineOption) *Engine {
	e := &Engine{
		uid:     uuid.NewString(),
		decl:    decl,
		call:    call.clone(),
		metrics: nopMetricsRecorder{},
		results: map[string]any{},
		current: -1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.baseLog == nil {
		e.baseLog = logger.Global()
	}
	e.values = e.call.expand(decl.params)
	e.log = logger.ForSaga(e.baseLog, decl.name, e.uid)
	e.fsm = newStateMachine(e.log)
	return e
}

// UID returns the instance identifier.
func (e *Engine) UID() string { return e.uid }

// Name returns the declaration key.
func (e *Engine) Name() string { return e.decl.name }

// TaskName is the name the manager lists the engine under.
func (e *Engine) TaskName() string { return e.decl.name + ":" + e.uid }

// Declaration returns the blueprint this engine executes.
func (e *Engine) Declaration() *Declaration { return e.decl }

// Call returns a copy of the call arguments.
func (e *Engine) Call() Args { return e.call.clone() }

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return e.fsm.MustState().(State)
}

// Restored reports whether the engine was seeded with committed results.
func (e *Engine) Restored() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.restored
}

// Results returns a copy of the committed step results.
func (e *Engine) Results() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyResultMap(e.results)
}

// Steps returns the declared step names once the declaration ran.
func (e *Engine) Steps() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.steps...)
}

// LastCommitted returns the name of the step committed most recently by this
// engine, or "" before the first commit.
func (e *Engine) LastCommitted() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastCommit
}

// CurrentStep returns the execution list index being run or rolled back.
func (e *Engine) CurrentStep() (int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current, e.current >= 0
}

// Failure returns the recorded step failure, if any.
func (e *Engine) Failure() *StepExecutionError {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.failure
}

// RollbackErrors returns the compensations that failed.
func (e *Engine) RollbackErrors() []*RollbackError {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*RollbackError(nil), e.rollbackErrs...)
}

// StartedAt and FinishedAt are zero until the engine reaches that point.
func (e *Engine) StartedAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.startedAt
}

func (e *Engine) FinishedAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.finishedAt
}

// Snapshot captures the persisted form of the engine.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	call := e.call.clone()
	src := e.decl.source
	return &Snapshot{
		UID:              e.uid,
		Args:             call.Positional,
		Kwargs:           call.Named,
		SourceModule:     src.Module,
		SourceEntryPoint: src.EntryPoint,
		SourceFile:       src.File,
		Results:          copyResultMap(e.results),
		UpdatedAt:        time.Now().UTC(),
	}
}

// Run declares and executes the saga. It returns nil when every step committed
// and otherwise the error of the failing step, after rollbacks and the catch hook ran.
// An engine runs at most once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	ctx, span := sagaTracer().Start(ctx, spanSagaExecute, trace.WithAttributes(
		attribute.String("saga.name", e.Name()),
		attribute.String("saga.uid", e.uid),
		attribute.Bool("saga.restored", e.Restored()),
	))
	defer span.End()

	start := time.Now()
	e.mu.Lock()
	e.startedAt = start
	e.mu.Unlock()

	e.metrics.IncActiveSagas()
	defer e.metrics.DecActiveSagas()

	err := e.run(ctx)

	status := statusSuccess
	if err != nil {
		status = statusFailure
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.metrics.RecordSagaExecution(status)
	e.metrics.RecordSagaDuration(status, time.Since(start))

	e.mu.Lock()
	e.finishedAt = time.Now()
	e.current = -1
	e.mu.Unlock()
	return err
}

func (e *Engine) run(ctx context.Context) error {
	def, err := e.declare(ctx)
	if err != nil {
		e.fire(ctx, triggerAbort)
		e.log.ErrorContext(ctx, "saga declaration failed", "error", err)
		return err
	}
	e.fire(ctx, triggerDeclared)

	if def.readiness != nil {
		if err := def.readiness(ctx); err != nil {
			e.fire(ctx, triggerAbort)
			e.log.WarnContext(ctx, "saga not ready", "error", err)
			return err
		}
	}

	e.fire(ctx, triggerStart)
	e.log.InfoContext(ctx, "saga started", "steps", len(e.Steps()))

	for i, c := range def.callees {
		if c.kind != KindStep {
			continue
		}
		if e.committed(c.name) {
			e.log.DebugContext(ctx, "step already committed, skipping", logger.StepKey, c.name)
			continue
		}

		e.setCurrent(i)
		result, attempts, err := e.runStep(ctx, c)
		if err != nil {
			return e.fail(ctx, def, i, c, attempts, err)
		}

		e.mu.Lock()
		e.results[c.name] = result
		e.lastCommit = c.name
		e.mu.Unlock()
		e.log.InfoContext(ctx, "step committed", logger.StepKey, c.name, "attempts", attempts)

		if e.committer != nil {
			e.committer.commit(ctx, e)
		}
	}

	e.setCurrent(-1)
	e.fire(ctx, triggerComplete)
	e.log.InfoContext(ctx, "saga completed")
	return nil
}

func (e *Engine) declare(ctx context.Context) (*Definition, error) {
	if e.decl.fn == nil {
		return nil, fmt.Errorf("declare saga %q: %w", e.Name(), ErrNilStepFunc)
	}
	def := newDefinition(e.Name(), e.log)
	if err := e.decl.fn(def, newInputs(e.values, e.call.Positional)); err != nil {
		return nil, fmt.Errorf("declare saga %q: %w", e.Name(), err)
	}
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("declare saga %q: %w", e.Name(), err)
	}

	e.mu.Lock()
	e.steps = def.StepNames()
	e.mu.Unlock()
	e.log.DebugContext(ctx, "saga declared", "entries", def.Len())
	return def, nil
}

func (e *Engine) runStep(ctx context.Context, c *callee) (any, int, error) {
	ctx, span := sagaTracer().Start(ctx, spanSagaStep, trace.WithAttributes(
		attribute.String("saga.name", e.Name()),
		attribute.String("saga.uid", e.uid),
		attribute.String("saga.step", c.name),
	))
	defer span.End()

	result, attempts, err := c.invoke(ctx, e.invocation())
	span.SetAttributes(attribute.Int("saga.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, attempts, err
}

// fail rolls back, runs the catch hook and returns the step error. Rollbacks and
// the catch hook run even when ctx was cancelled.
func (e *Engine) fail(ctx context.Context, def *Definition, index int, c *callee, attempts int, err error) error {
	e.mu.Lock()
	e.failure = &StepExecutionError{Saga: e.Name(), Step: c.name, Attempts: attempts, Err: err}
	e.mu.Unlock()
	e.log.ErrorContext(ctx, "step failed, rolling back",
		logger.StepKey, c.name,
		"attempts", attempts,
		"error", err,
	)
	e.fire(ctx, triggerStepFailed)

	rbCtx := context.WithoutCancel(ctx)
	rbErrs := e.compensate(rbCtx, def, index)

	e.mu.Lock()
	e.rollbackErrs = rbErrs
	e.mu.Unlock()
	e.fire(ctx, triggerRolledBack)

	if def.catch != nil {
		if catchErr := def.catch(rbCtx, c.name, err); catchErr != nil {
			e.log.ErrorContext(ctx, "catch hook failed", logger.StepKey, c.name, "error", catchErr)
			return errors.Join(err, catchErr)
		}
	}
	return err
}

func (e *Engine) fire(ctx context.Context, trigger string) {
	if err := e.fsm.FireCtx(ctx, trigger); err != nil {
		e.log.ErrorContext(ctx, "invalid state transition", "trigger", trigger, "error", err)
	}
}

func (e *Engine) invocation() invocation {
	e.mu.RLock()
	results := copyResultMap(e.results)
	e.mu.RUnlock()
	return invocation{
		call:    e.values,
		results: results,
		log:     e.log,
		pool:    e.pool,
		metrics: e.metrics,
	}
}

func (e *Engine) committed(step string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.results[step]
	return ok
}

func (e *Engine) setCurrent(i int) {
	e.mu.Lock()
	e.current = i
	e.mu.Unlock()
}
