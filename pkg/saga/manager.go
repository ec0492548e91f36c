package saga

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/orsa-go/orsa/pkg/logger"
)

// ErrSagaNotFound is returned when a saga instance cannot be located.
var ErrSagaNotFound = errors.New("saga instance not found")

// Lifecycle and persistence hooks. Every hook runs on the manager loop goroutine,
// one at a time.
type (
	StartupFunc  func(ctx context.Context, m *Manager) error
	ShutdownFunc func(ctx context.Context, m *Manager) error
	MonitorFunc  func(ctx context.Context, m *Manager, active []string)
	StoreFunc    func(ctx context.Context, m *Manager, e *Engine) error
	CompleteFunc func(ctx context.Context, m *Manager, e *Engine) error
	AbortFunc    func(ctx context.Context, m *Manager, e *Engine, err error) error
)

const (
	managerIdle int32 = iota
	managerRunning
	managerStopping
	managerStopped
)

const (
	defaultStopTimeout = 30 * time.Second
	defaultHistory     = 100
)

// ManagerOption configures a Manager.
type ManagerOption func(m *Manager)

// WithLogger sets the manager logger. Engines scheduled by the manager inherit it.
func WithLogger(l logger.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r MetricsRecorder) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// WithRegistry sets the registry used by Restore.
func WithRegistry(r *Registry) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithStopTimeout bounds how long Stop waits before cancelling running sagas.
func WithStopTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d >= 0 {
			m.stopTimeout = d
		}
	}
}

// WithScheduleRate throttles Schedule to r sagas per second. Zero disables throttling.
func WithScheduleRate(r float64, burst int) ManagerOption {
	return func(m *Manager) {
		if r <= 0 {
			m.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithBlockingWorkers sizes the pool that runs Blocking steps.
func WithBlockingWorkers(n int) ManagerOption {
	return func(m *Manager) {
		m.pool = NewWorkerPool(n)
	}
}

// WithHistory sets how many finished sagas are kept for Get and List.
func WithHistory(n int) ManagerOption {
	return func(m *Manager) {
		if n >= 0 {
			m.historySize = n
		}
	}
}

type task struct {
	name   string
	engine *Engine
	handle *Handle
	err    error
}

type commitRequest struct {
	engine *Engine
	done   chan struct{}
}

// Manager owns the background execution context: a single loop goroutine that
// launches scheduled sagas, receives their completions and runs every hook.
type Manager struct {
	log         logger.Logger
	metrics     MetricsRecorder
	registry    *Registry
	stopTimeout time.Duration
	limiter     *rate.Limiter
	pool        *WorkerPool
	historySize int

	hookMu        sync.RWMutex
	onStartup     StartupFunc
	onShutdown    ShutdownFunc
	onMonitor     MonitorFunc
	monitorPeriod time.Duration
	onStore       StoreFunc
	onComplete    CompleteFunc
	onAbort       AbortFunc

	state atomic.Int32

	reqMu   sync.Mutex
	pending []*task
	wake    chan struct{}

	commits  chan commitRequest
	finished chan *task

	activeMu sync.RWMutex
	active   map[string]*task
	history  []*Engine

	runCtx      context.Context
	cancelRun   context.CancelFunc
	stopCh      chan struct{}
	stopOnce    sync.Once
	doneOnce    sync.Once
	loopDone    chan struct{}
	shutdownErr error
}

// NewManager creates a stopped manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		log:         logger.Global(),
		metrics:     nopMetricsRecorder{},
		registry:    DefaultRegistry,
		stopTimeout: defaultStopTimeout,
		pool:        NewWorkerPool(4),
		historySize: defaultHistory,
		wake:        make(chan struct{}, 1),
		commits:     make(chan commitRequest),
		finished:    make(chan *task),
		active:      make(map[string]*task),
		stopCh:      make(chan struct{}),
		loopDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.log = m.log.With("component", "saga-manager")
	return m
}

// Logger returns the manager logger.
func (m *Manager) Logger() logger.Logger { return m.log }

// Registry returns the registry used by Restore.
func (m *Manager) Registry() *Registry { return m.registry }

// Metrics returns the metrics recorder handed to scheduled engines.
func (m *Manager) Metrics() MetricsRecorder { return m.metrics }

// Running reports whether the manager accepts work.
func (m *Manager) Running() bool { return m.state.Load() == managerRunning }

// OnStartup sets the hook run inside the loop before any saga is launched.
func (m *Manager) OnStartup(fn StartupFunc) {
	m.hookMu.Lock()
	m.onStartup = fn
	m.hookMu.Unlock()
}

// OnShutdown sets the hook run after the last saga finished.
func (m *Manager) OnShutdown(fn ShutdownFunc) {
	m.hookMu.Lock()
	m.onShutdown = fn
	m.hookMu.Unlock()
}

// OnMonitor sets the hook called every period with the names of running sagas.
// It must be registered before Start.
func (m *Manager) OnMonitor(fn MonitorFunc, period time.Duration) {
	m.hookMu.Lock()
	m.onMonitor = fn
	m.monitorPeriod = period
	m.hookMu.Unlock()
}

// OnSagaStore sets the hook called after every step commit.
func (m *Manager) OnSagaStore(fn StoreFunc) {
	m.hookMu.Lock()
	m.onStore = fn
	m.hookMu.Unlock()
}

// OnSagaComplete sets the hook called when a saga finished successfully.
func (m *Manager) OnSagaComplete(fn CompleteFunc) {
	m.hookMu.Lock()
	m.onComplete = fn
	m.hookMu.Unlock()
}

// OnSagaAbort sets the hook called when a saga failed.
func (m *Manager) OnSagaAbort(fn AbortFunc) {
	m.hookMu.Lock()
	m.onAbort = fn
	m.hookMu.Unlock()
}

// Start launches the loop and blocks until the startup hook returned.
// A failing startup hook stops the manager and its error is returned.
func (m *Manager) Start(ctx context.Context) error {
	if !m.state.CompareAndSwap(managerIdle, managerRunning) {
		if m.state.Load() == managerRunning {
			return ErrManagerRunning
		}
		return ErrManagerStopped
	}

	m.runCtx, m.cancelRun = context.WithCancel(context.WithoutCancel(ctx))
	m.pool.Start()

	started := make(chan error, 1)
	go m.loop(started)
	return <-started
}

// Stop stops accepting work, waits for running sagas up to the stop timeout,
// cancels the ones still running and runs the shutdown hook. It is safe to call
// more than once and returns the shutdown hook error. Stop must not be called
// from a hook.
func (m *Manager) Stop(ctx context.Context) error {
	m.reqMu.Lock()
	switch m.state.Load() {
	case managerIdle:
		m.state.Store(managerStopped)
		m.reqMu.Unlock()
		m.closeDone()
		return nil
	case managerRunning:
		m.state.Store(managerStopping)
	}
	m.reqMu.Unlock()

	m.stopOnce.Do(func() { close(m.stopCh) })

	select {
	case <-m.loopDone:
		return m.shutdownErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the loop exited, or when a manager that never started
// is stopped.
func (m *Manager) Done() <-chan struct{} { return m.loopDone }

func (m *Manager) closeDone() {
	m.doneOnce.Do(func() { close(m.loopDone) })
}

// Schedule hands e to the loop and returns immediately. The outcome is reported
// through the returned handle and the complete or abort hook. A uid that is
// still pending or running is rejected with ErrSagaRunning.
func (m *Manager) Schedule(ctx context.Context, e *Engine) (*Handle, error) {
	if e == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if m.state.Load() != managerRunning {
		return nil, ErrManagerStopped
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("schedule saga %q: %w", e.Name(), err)
		}
	}

	e.pool = m.pool
	e.committer = m
	t := &task{name: e.TaskName(), engine: e, handle: newHandle(e)}

	m.reqMu.Lock()
	if m.state.Load() != managerRunning {
		m.reqMu.Unlock()
		return nil, ErrManagerStopped
	}
	if m.scheduledLocked(e.UID()) {
		m.reqMu.Unlock()
		return nil, fmt.Errorf("schedule saga %q: %w: %s", e.Name(), ErrSagaRunning, e.UID())
	}
	m.pending = append(m.pending, t)
	m.reqMu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	m.log.DebugContext(ctx, "saga scheduled", logger.SagaKey, e.Name(), logger.UIDKey, e.UID())
	return t.handle, nil
}

// Active returns the task names of running sagas in sorted order.
func (m *Manager) Active() []string {
	m.activeMu.RLock()
	defer m.activeMu.RUnlock()
	names := make([]string, 0, len(m.active))
	for name := range m.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a running or recently finished engine by uid.
func (m *Manager) Get(uid string) (*Engine, error) {
	m.activeMu.RLock()
	defer m.activeMu.RUnlock()
	for _, t := range m.active {
		if t.engine.UID() == uid {
			return t.engine, nil
		}
	}
	for _, e := range m.history {
		if e.UID() == uid {
			return e, nil
		}
	}
	return nil, ErrSagaNotFound
}

// ListFilter narrows List results.
type ListFilter struct {
	Name   string
	State  State
	Limit  int
	Offset int
}

// List returns running sagas followed by finished ones, most recent first, and
// the total number of matches before pagination.
func (m *Manager) List(filter ListFilter) ([]*Engine, int) {
	m.activeMu.RLock()
	all := make([]*Engine, 0, len(m.active)+len(m.history))
	for _, name := range sortedKeys(m.active) {
		all = append(all, m.active[name].engine)
	}
	for i := len(m.history) - 1; i >= 0; i-- {
		all = append(all, m.history[i])
	}
	m.activeMu.RUnlock()

	matched := all[:0]
	for _, e := range all {
		if filter.Name != "" && e.Name() != filter.Name {
			continue
		}
		if filter.State != "" && e.State() != filter.State {
			continue
		}
		matched = append(matched, e)
	}

	total := len(matched)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Offset > total {
		filter.Offset = total
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total
}

// scheduledLocked reports whether uid is pending or running. reqMu must be held.
func (m *Manager) scheduledLocked(uid string) bool {
	for _, p := range m.pending {
		if p.engine.UID() == uid {
			return true
		}
	}
	m.activeMu.RLock()
	defer m.activeMu.RUnlock()
	for _, a := range m.active {
		if a.engine.UID() == uid {
			return true
		}
	}
	return false
}

func (m *Manager) loop(started chan<- error) {
	defer m.closeDone()
	ctx := context.WithoutCancel(m.runCtx)

	if err := m.runStartup(ctx); err != nil {
		m.log.Error("startup hook failed", "error", err)
		started <- err
		m.finish(ctx)
		return
	}
	started <- nil
	m.log.Info("saga manager started")

	var tick <-chan time.Time
	m.hookMu.RLock()
	monitor, period := m.onMonitor, m.monitorPeriod
	m.hookMu.RUnlock()
	if monitor != nil && period > 0 {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	var (
		stopCh    = m.stopCh
		stopTimer *time.Timer
		deadline  <-chan time.Time
		stopping  bool
	)
	for !stopping || !m.idle() {
		select {
		case <-m.wake:
			m.launchPending()
		case req := <-m.commits:
			m.runStore(ctx, req.engine)
			close(req.done)
		case t := <-m.finished:
			m.complete(ctx, t)
		case <-tick:
			m.runMonitor(ctx)
		case <-stopCh:
			stopCh = nil
			stopping = true
			m.log.Info("saga manager stopping", "active", len(m.Active()))
			stopTimer = time.NewTimer(m.stopTimeout)
			deadline = stopTimer.C
		case <-deadline:
			deadline = nil
			m.log.Warn("stop timeout reached, cancelling running sagas", "active", m.Active())
			m.cancelRun()
		}
	}
	if stopTimer != nil {
		stopTimer.Stop()
	}
	m.finish(ctx)
}

func (m *Manager) idle() bool {
	m.reqMu.Lock()
	pending := len(m.pending)
	m.reqMu.Unlock()

	m.activeMu.RLock()
	defer m.activeMu.RUnlock()
	return pending == 0 && len(m.active) == 0
}

// launchPending moves the queued tasks to active under reqMu so Schedule never
// sees a task in neither set.
func (m *Manager) launchPending() {
	m.reqMu.Lock()
	batch := m.pending
	m.pending = nil
	m.activeMu.Lock()
	for _, t := range batch {
		m.active[t.name] = t
	}
	m.activeMu.Unlock()
	m.reqMu.Unlock()

	for _, t := range batch {
		go func(t *task) {
			t.err = t.engine.Run(m.runCtx)
			m.finished <- t
		}(t)
	}
}

// commit forwards a step commit to the loop and waits until the store hook ran.
func (m *Manager) commit(ctx context.Context, e *Engine) {
	m.hookMu.RLock()
	hook := m.onStore
	m.hookMu.RUnlock()
	if hook == nil {
		return
	}

	req := commitRequest{engine: e, done: make(chan struct{})}
	select {
	case m.commits <- req:
	case <-m.loopDone:
		return
	}
	<-req.done
}

func (m *Manager) complete(ctx context.Context, t *task) {
	m.activeMu.Lock()
	delete(m.active, t.name)
	if m.historySize > 0 {
		m.history = append(m.history, t.engine)
		if over := len(m.history) - m.historySize; over > 0 {
			m.history = append([]*Engine(nil), m.history[over:]...)
		}
	}
	m.activeMu.Unlock()

	m.hookMu.RLock()
	onComplete, onAbort := m.onComplete, m.onAbort
	m.hookMu.RUnlock()

	if t.err != nil {
		m.log.Warn("saga aborted", logger.SagaKey, t.engine.Name(), logger.UIDKey, t.engine.UID(), "error", t.err)
		if onAbort != nil {
			m.guard("abort", func() error { return onAbort(ctx, m, t.engine, t.err) })
		}
	} else {
		m.log.Info("saga finished", logger.SagaKey, t.engine.Name(), logger.UIDKey, t.engine.UID())
		if onComplete != nil {
			m.guard("complete", func() error { return onComplete(ctx, m, t.engine) })
		}
	}
	t.handle.resolve(t.err)
}

func (m *Manager) runStartup(ctx context.Context) error {
	m.hookMu.RLock()
	fn := m.onStartup
	m.hookMu.RUnlock()
	if fn == nil {
		return nil
	}
	return m.guard("startup", func() error { return fn(ctx, m) })
}

func (m *Manager) runStore(ctx context.Context, e *Engine) {
	m.hookMu.RLock()
	fn := m.onStore
	m.hookMu.RUnlock()
	if fn == nil {
		return
	}
	m.guard("store", func() error { return fn(ctx, m, e) })
}

func (m *Manager) runMonitor(ctx context.Context) {
	m.hookMu.RLock()
	fn := m.onMonitor
	m.hookMu.RUnlock()
	if fn == nil {
		return
	}
	active := m.Active()
	m.guard("monitor", func() error {
		fn(ctx, m, active)
		return nil
	})
}

func (m *Manager) finish(ctx context.Context) {
	m.reqMu.Lock()
	m.state.Store(managerStopped)
	batch := m.pending
	m.pending = nil
	m.reqMu.Unlock()
	for _, t := range batch {
		t.handle.resolve(ErrManagerStopped)
	}

	m.hookMu.RLock()
	fn := m.onShutdown
	m.hookMu.RUnlock()
	if fn != nil {
		m.shutdownErr = m.guard("shutdown", func() error { return fn(ctx, m) })
	}

	m.pool.Stop()
	m.cancelRun()
	m.log.Info("saga manager stopped")
}

// guard runs a hook, logging its error and turning a panic into an error so the
// loop keeps serving.
func (m *Manager) guard(hook string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s hook panicked: %v", hook, r)
		}
		if err != nil {
			m.log.Error("hook failed", "hook", hook, "error", err)
		}
	}()
	return fn()
}

func sortedKeys(tasks map[string]*task) []string {
	keys := make([]string, 0, len(tasks))
	for k := range tasks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Handle tracks one scheduled saga.
type Handle struct {
	engine *Engine
	done   chan struct{}
	once   sync.Once
	err    error
}

func newHandle(e *Engine) *Handle {
	return &Handle{engine: e, done: make(chan struct{})}
}

func resolvedHandle(e *Engine, err error) *Handle {
	h := newHandle(e)
	h.resolve(err)
	return h
}

// Engine returns the engine executing the saga.
func (h *Handle) Engine() *Engine { return h.engine }

// UID returns the saga instance uid.
func (h *Handle) UID() string { return h.engine.UID() }

// Done is closed once the saga finished and its complete or abort hook ran.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the saga error once Done is closed, nil before.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the saga finished or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) resolve(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}
