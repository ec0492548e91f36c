package saga

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orsa-go/orsa/pkg/logger"
)

func newTestManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	base := []ManagerOption{
		WithLogger(logger.Discard()),
		WithRegistry(NewRegistry()),
		WithStopTimeout(time.Second),
	}
	return NewManager(append(base, opts...)...)
}

func stopManager(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func waitHandle(t *testing.T, h *Handle) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-h.Done():
		return h.Err()
	case <-ctx.Done():
		t.Fatal("saga did not finish in time")
		return nil
	}
}

func TestManagerLifecycleHooks(t *testing.T) {
	m := newTestManager(t)
	log := &eventLog{}
	var completed, aborted atomic.Int32
	var abortErr error

	m.OnStartup(func(context.Context, *Manager) error {
		log.add("startup")
		return nil
	})
	m.OnShutdown(func(context.Context, *Manager) error {
		log.add("shutdown")
		return nil
	})
	m.OnSagaComplete(func(_ context.Context, _ *Manager, e *Engine) error {
		completed.Add(1)
		if e.Results()["B"] != 15 {
			t.Errorf("complete hook saw results %v", e.Results())
		}
		return nil
	})
	m.OnSagaAbort(func(_ context.Context, _ *Manager, e *Engine, err error) error {
		aborted.Add(1)
		abortErr = err
		if _, ok := e.Results()["B"]; ok {
			t.Errorf("aborted saga committed B")
		}
		return nil
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if log.String() != "startup" {
		t.Fatalf("startup hook did not run before Start returned: %s", log.String())
	}

	o, err := Orchestrate(exchangeDeclaration(&eventLog{}), WithManager(m))
	if err != nil {
		t.Fatalf("Orchestrate() error = %v", err)
	}
	if _, ok := m.Registry().Lookup("exchange"); !ok {
		t.Fatal("Orchestrate did not register the declaration")
	}

	ok, err := o.Invoke(context.Background(), 45)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	bad, err := o.Invoke(context.Background(), 1003)
	if err != nil {
		t.Fatalf("Invoke() error = %v, failures are reported through the handle", err)
	}

	if err := waitHandle(t, ok); err != nil {
		t.Fatalf("saga error = %v", err)
	}
	if err := waitHandle(t, bad); err != errAmountTooLarge {
		t.Fatalf("saga error = %v, want errAmountTooLarge", err)
	}
	if completed.Load() != 1 || aborted.Load() != 1 {
		t.Fatalf("complete=%d abort=%d, want one each", completed.Load(), aborted.Load())
	}
	if abortErr != errAmountTooLarge {
		t.Fatalf("abort hook error = %v", abortErr)
	}

	stopManager(t, m)
	if log.String() != "startup,shutdown" {
		t.Fatalf("events = %s", log.String())
	}
	if m.Running() {
		t.Fatal("manager still running after Stop")
	}
}

func TestManagerStoreHookPerCommitAndSerialized(t *testing.T) {
	m := newTestManager(t)
	var (
		mu       sync.Mutex
		perSaga  = map[string][]int{}
		inFlight atomic.Int32
		overlap  atomic.Bool
	)
	m.OnSagaStore(func(_ context.Context, _ *Manager, e *Engine) error {
		if inFlight.Add(1) > 1 {
			overlap.Store(true)
		}
		defer inFlight.Add(-1)
		time.Sleep(time.Millisecond)

		snap := e.Snapshot()
		mu.Lock()
		perSaga[snap.UID] = append(perSaga[snap.UID], len(snap.Results))
		mu.Unlock()
		return nil
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stopManager(t, m)

	o, err := Orchestrate(exchangeDeclaration(&eventLog{}), WithManager(m))
	if err != nil {
		t.Fatalf("Orchestrate() error = %v", err)
	}
	handles := make([]*Handle, 0, 5)
	for i := 0; i < 5; i++ {
		h, err := o.Invoke(context.Background(), i)
		if err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
		handles = append(handles, h)
	}
	for _, h := range handles {
		if err := waitHandle(t, h); err != nil {
			t.Fatalf("saga error = %v", err)
		}
	}

	if overlap.Load() {
		t.Fatal("store hooks ran concurrently")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(perSaga) != 5 {
		t.Fatalf("store hook saw %d sagas, want 5", len(perSaga))
	}
	for uid, counts := range perSaga {
		if len(counts) != 2 || counts[0] != 1 || counts[1] != 2 {
			t.Fatalf("saga %s store notifications = %v, want [1 2]", uid, counts)
		}
	}
}

func TestManagerMonitorListsActiveSagas(t *testing.T) {
	m := newTestManager(t)
	release := make(chan struct{})
	seen := make(chan []string, 16)

	m.OnMonitor(func(_ context.Context, _ *Manager, active []string) {
		select {
		case seen <- active:
		default:
		}
	}, 5*time.Millisecond)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stopManager(t, m)

	decl := Declare("waiting", func(d *Definition, _ Inputs) error {
		d.Step("wait", func(ctx context.Context, _ Inputs) (any, error) {
			<-release
			return nil, nil
		})
		return nil
	})
	o, err := Orchestrate(decl, WithManager(m))
	if err != nil {
		t.Fatalf("Orchestrate() error = %v", err)
	}
	h, err := o.Invoke(context.Background())
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	want := "waiting:" + h.UID()
	deadline := time.After(2 * time.Second)
	for found := false; !found; {
		select {
		case active := <-seen:
			for _, name := range active {
				if strings.HasPrefix(name, "@") {
					t.Fatalf("monitor listed itself: %v", active)
				}
				if name == want {
					found = true
				}
			}
		case <-deadline:
			t.Fatalf("monitor never reported %s", want)
		}
	}

	close(release)
	if err := waitHandle(t, h); err != nil {
		t.Fatalf("saga error = %v", err)
	}
	if len(m.Active()) != 0 {
		t.Fatalf("Active() = %v after completion", m.Active())
	}
}

func TestManagerStartStopStates(t *testing.T) {
	m := newTestManager(t)
	e := newTestEngine(exchangeDeclaration(&eventLog{}), Positional(1))
	if _, err := m.Schedule(context.Background(), e); !errors.Is(err, ErrManagerStopped) {
		t.Fatalf("Schedule() before Start error = %v", err)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrManagerRunning) {
		t.Fatalf("second Start() error = %v", err)
	}

	stopManager(t, m)
	stopManager(t, m)

	if _, err := m.Schedule(context.Background(), e); !errors.Is(err, ErrManagerStopped) {
		t.Fatalf("Schedule() after Stop error = %v", err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrManagerStopped) {
		t.Fatalf("Start() after Stop error = %v", err)
	}
}

func TestManagerStopWaitsForRunningSagas(t *testing.T) {
	m := newTestManager(t)
	var completed atomic.Bool
	m.OnSagaComplete(func(context.Context, *Manager, *Engine) error {
		completed.Store(true)
		return nil
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	decl := Declare("slow", func(d *Definition, _ Inputs) error {
		d.Step("sleep", func(context.Context, Inputs) (any, error) {
			time.Sleep(30 * time.Millisecond)
			return "done", nil
		})
		return nil
	})
	o, err := Orchestrate(decl, WithManager(m))
	if err != nil {
		t.Fatalf("Orchestrate() error = %v", err)
	}
	if _, err := o.Invoke(context.Background()); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	stopManager(t, m)
	if !completed.Load() {
		t.Fatal("Stop returned before the running saga completed")
	}
}

func TestManagerStopTimeoutCancelsSagas(t *testing.T) {
	m := newTestManager(t, WithStopTimeout(10*time.Millisecond))
	abortErr := make(chan error, 1)
	m.OnSagaAbort(func(_ context.Context, _ *Manager, _ *Engine, err error) error {
		abortErr <- err
		return nil
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	decl := Declare("stuck", func(d *Definition, _ Inputs) error {
		d.Step("block", func(ctx context.Context, _ Inputs) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		return nil
	})
	o, err := Orchestrate(decl, WithManager(m))
	if err != nil {
		t.Fatalf("Orchestrate() error = %v", err)
	}
	h, err := o.Invoke(context.Background())
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	stopManager(t, m)
	if err := <-abortErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("abort error = %v, want context.Canceled", err)
	}
	if !errors.Is(h.Err(), context.Canceled) {
		t.Fatalf("handle error = %v", h.Err())
	}
}

func TestManagerStartupFailure(t *testing.T) {
	m := newTestManager(t)
	boom := errors.New("startup failed")
	shutdown := false
	m.OnStartup(func(context.Context, *Manager) error { return boom })
	m.OnShutdown(func(context.Context, *Manager) error {
		shutdown = true
		return nil
	})

	if err := m.Start(context.Background()); err != boom {
		t.Fatalf("Start() error = %v, want startup error", err)
	}
	<-m.Done()
	if !shutdown {
		t.Fatal("shutdown hook did not run after failed startup")
	}
	if m.Running() {
		t.Fatal("manager running after failed startup")
	}
}

func TestManagerHookPanicIsContained(t *testing.T) {
	m := newTestManager(t)
	var calls atomic.Int32
	m.OnSagaComplete(func(context.Context, *Manager, *Engine) error {
		if calls.Add(1) == 1 {
			panic("hook bug")
		}
		return nil
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stopManager(t, m)

	o, err := Orchestrate(exchangeDeclaration(&eventLog{}), WithManager(m))
	if err != nil {
		t.Fatalf("Orchestrate() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		h, err := o.Invoke(context.Background(), 1)
		if err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
		if err := waitHandle(t, h); err != nil {
			t.Fatalf("saga error = %v", err)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("complete hook called %d times, want 2", calls.Load())
	}
}

func TestManagerGetAndList(t *testing.T) {
	m := newTestManager(t, WithHistory(2))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stopManager(t, m)

	o, err := Orchestrate(exchangeDeclaration(&eventLog{}), WithManager(m))
	if err != nil {
		t.Fatalf("Orchestrate() error = %v", err)
	}
	var uids []string
	for _, amount := range []int{1, 2, 5000} {
		h, err := o.Invoke(context.Background(), amount)
		if err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
		_ = waitHandle(t, h)
		uids = append(uids, h.UID())
	}

	if _, err := m.Get(uids[0]); !errors.Is(err, ErrSagaNotFound) {
		t.Fatalf("Get(oldest) error = %v, want evicted", err)
	}
	e, err := m.Get(uids[2])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.State() != StateFailed {
		t.Fatalf("State() = %s", e.State())
	}

	all, total := m.List(ListFilter{})
	if total != 2 || all[0].UID() != uids[2] {
		t.Fatalf("List() total = %d first = %v", total, all[0].UID())
	}
	failed, total := m.List(ListFilter{State: StateFailed})
	if total != 1 || failed[0].UID() != uids[2] {
		t.Fatalf("List(failed) total = %d", total)
	}
	page, total := m.List(ListFilter{Limit: 1, Offset: 1})
	if total != 2 || len(page) != 1 || page[0].UID() != uids[1] {
		t.Fatalf("List(page) = %d items of %d", len(page), total)
	}
}

func TestManagerScheduleRateLimit(t *testing.T) {
	m := newTestManager(t, WithScheduleRate(1, 1))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stopManager(t, m)

	o, err := Orchestrate(exchangeDeclaration(&eventLog{}), WithManager(m))
	if err != nil {
		t.Fatalf("Orchestrate() error = %v", err)
	}
	if _, err := o.Invoke(context.Background(), 1); err != nil {
		t.Fatalf("first Invoke() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := o.Invoke(ctx, 2); err == nil {
		t.Fatal("expected the second invocation to be throttled")
	}
}

func TestManagerBlockingStepsUseWorkerPool(t *testing.T) {
	m := newTestManager(t, WithBlockingWorkers(2))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stopManager(t, m)

	decl := Declare("blocking", func(d *Definition, _ Inputs) error {
		d.Step("io", func(context.Context, Inputs) (any, error) {
			time.Sleep(2 * time.Millisecond)
			return "read", nil
		}, Blocking())
		return nil
	})
	o, err := Orchestrate(decl, WithManager(m))
	if err != nil {
		t.Fatalf("Orchestrate() error = %v", err)
	}
	h, err := o.Invoke(context.Background())
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if err := waitHandle(t, h); err != nil {
		t.Fatalf("saga error = %v", err)
	}
	if m.pool.Processed() != 1 {
		t.Fatalf("pool processed %d jobs, want 1", m.pool.Processed())
	}
}

func TestManagerRejectsDuplicateUID(t *testing.T) {
	m := newTestManager(t)
	var completes atomic.Int32
	m.OnSagaComplete(func(context.Context, *Manager, *Engine) error {
		completes.Add(1)
		return nil
	})

	gate := make(chan struct{})
	decl := Declare("dup", func(d *Definition, _ Inputs) error {
		d.Step("wait", func(context.Context, Inputs) (any, error) {
			<-gate
			return "ok", nil
		})
		return nil
	})
	m.Registry().MustRegister(decl)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	snap := &Snapshot{UID: "u1", SourceEntryPoint: "dup", Results: map[string]any{}}
	first, err := m.Restore(context.Background(), snap)
	if err != nil {
		t.Fatalf("first Restore() error = %v", err)
	}
	_, err = m.Restore(context.Background(), snap)
	var restoreErr *RestoreError
	if !errors.As(err, &restoreErr) || !errors.Is(err, ErrSagaRunning) {
		t.Fatalf("second Restore() error = %v, want ErrSagaRunning", err)
	}
	if _, err := m.Schedule(context.Background(), newTestEngine(decl, Args{}, WithUID("u1"))); !errors.Is(err, ErrSagaRunning) {
		t.Fatalf("Schedule() error = %v, want ErrSagaRunning", err)
	}
	if got := m.Active(); len(got) != 1 || got[0] != "dup:u1" {
		t.Fatalf("Active() = %v", got)
	}

	close(gate)
	if err := waitHandle(t, first); err != nil {
		t.Fatalf("saga error = %v", err)
	}

	again, err := m.Schedule(context.Background(), newTestEngine(decl, Args{}, WithUID("u1")))
	if err != nil {
		t.Fatalf("Schedule() after finish error = %v", err)
	}
	if err := waitHandle(t, again); err != nil {
		t.Fatalf("second run error = %v", err)
	}

	stopManager(t, m)
	if n := completes.Load(); n != 2 {
		t.Fatalf("complete hook ran %d times, want 2", n)
	}
}

func TestManagerStopBeforeStartClosesDone(t *testing.T) {
	m := newTestManager(t)
	stopManager(t, m)

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() not closed after stopping an unstarted manager")
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrManagerStopped) {
		t.Fatalf("Start() after Stop error = %v", err)
	}
}
