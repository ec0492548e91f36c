package storage

import (
	"context"

	"github.com/orsa-go/orsa/pkg/logger"
	"github.com/orsa-go/orsa/pkg/saga"
)

// WriteRecorder records snapshot write outcomes per backend.
type WriteRecorder interface {
	RecordSnapshotWrite(backend, status string)
}

type nopWriteRecorder struct{}

func (nopWriteRecorder) RecordSnapshotWrite(string, string) {}

// Persistence connects a Store to a saga.Manager. Every commit saves the
// saga's snapshot and a finished saga, completed or aborted, has its snapshot
// removed, so the store only ever holds sagas that can be resumed.
type Persistence struct {
	store   Store
	backend string
	metrics WriteRecorder
	log     logger.Logger
}

// PersistenceOption configures a Persistence.
type PersistenceOption func(p *Persistence)

// WithWriteRecorder sets the metrics recorder for snapshot writes.
func WithWriteRecorder(r WriteRecorder) PersistenceOption {
	return func(p *Persistence) {
		if r != nil {
			p.metrics = r
		}
	}
}

// WithPersistenceLogger sets the logger.
func WithPersistenceLogger(l logger.Logger) PersistenceOption {
	return func(p *Persistence) {
		if l != nil {
			p.log = l
		}
	}
}

// NewPersistence wraps store. backend labels metrics and log lines.
func NewPersistence(store Store, backend string, opts ...PersistenceOption) *Persistence {
	p := &Persistence{
		store:   store,
		backend: backend,
		metrics: nopWriteRecorder{},
		log:     logger.Global(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("component", "saga-persistence", "backend", backend)
	return p
}

// Store returns the wrapped store.
func (p *Persistence) Store() Store { return p.store }

// Backend returns the backend label.
func (p *Persistence) Backend() string { return p.backend }

// Attach registers the store, complete and abort hooks on m.
func (p *Persistence) Attach(m *saga.Manager) {
	m.OnSagaStore(p.SaveHook)
	m.OnSagaComplete(p.CompleteHook)
	m.OnSagaAbort(p.AbortHook)
}

// SaveHook is a saga.StoreFunc that saves the engine's current snapshot.
func (p *Persistence) SaveHook(ctx context.Context, _ *saga.Manager, e *saga.Engine) error {
	snap := e.Snapshot()
	if err := p.store.Save(ctx, snap); err != nil {
		p.metrics.RecordSnapshotWrite(p.backend, "failure")
		p.log.ErrorContext(ctx, "snapshot save failed", logger.SagaKey, e.Name(), logger.UIDKey, e.UID(), "error", err)
		return err
	}
	p.metrics.RecordSnapshotWrite(p.backend, "success")
	p.log.DebugContext(ctx, "snapshot saved", logger.SagaKey, e.Name(), logger.UIDKey, e.UID(), "committed", len(snap.Results))
	return nil
}

// CompleteHook is a saga.CompleteFunc that drops the snapshot of a finished saga.
func (p *Persistence) CompleteHook(ctx context.Context, _ *saga.Manager, e *saga.Engine) error {
	return p.drop(ctx, e)
}

// AbortHook is a saga.AbortFunc that drops the snapshot of an aborted saga.
// Its rollbacks already ran, so resuming it would repeat committed work.
func (p *Persistence) AbortHook(ctx context.Context, _ *saga.Manager, e *saga.Engine, _ error) error {
	return p.drop(ctx, e)
}

func (p *Persistence) drop(ctx context.Context, e *saga.Engine) error {
	if err := p.store.Delete(ctx, e.UID()); err != nil {
		p.log.ErrorContext(ctx, "snapshot delete failed", logger.SagaKey, e.Name(), logger.UIDKey, e.UID(), "error", err)
		return err
	}
	return nil
}

// RestoreAll resumes every persisted saga on m. Call it from the manager's
// startup hook.
func (p *Persistence) RestoreAll(ctx context.Context, m *saga.Manager) (int, error) {
	return m.RestoreAll(ctx, p.store)
}
