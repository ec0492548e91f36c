package saga

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orsa-go/orsa/pkg/logger"
)

// SnapshotLister yields the snapshots of sagas that had not finished.
type SnapshotLister interface {
	List(ctx context.Context) ([]*Snapshot, error)
}

// Restore rebuilds the saga recorded in snap and schedules it. The declaration is
// found in the manager's registry by the snapshot's entry point; steps with a
// recorded result are skipped when the saga runs again.
func (m *Manager) Restore(ctx context.Context, snap *Snapshot) (*Handle, error) {
	uid, entry := "", ""
	if snap != nil {
		uid, entry = snap.UID, snap.SourceEntryPoint
	}
	ctx, span := sagaTracer().Start(ctx, spanSagaRestore, trace.WithAttributes(
		attribute.String("saga.uid", uid),
		attribute.String("saga.entry_point", entry),
	))
	defer span.End()

	h, err := m.restore(ctx, snap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.metrics.RecordSagaRestore(statusFailure)
		return nil, &RestoreError{UID: uid, EntryPoint: entry, Err: err}
	}
	m.metrics.RecordSagaRestore(statusSuccess)
	m.log.InfoContext(ctx, "saga restored",
		logger.SagaKey, h.Engine().Name(),
		logger.UIDKey, uid,
		"committed", len(snap.Results),
	)
	return h, nil
}

func (m *Manager) restore(ctx context.Context, snap *Snapshot) (*Handle, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	decl, ok := m.registry.Lookup(snap.SourceEntryPoint)
	if !ok {
		return nil, ErrDeclarationNotFound
	}
	e := NewEngine(decl, snap.Call(),
		WithUID(snap.UID),
		WithResults(snap.Results),
		WithEngineLogger(m.log),
		WithEngineMetrics(m.metrics),
	)
	return m.Schedule(ctx, e)
}

// RestoreAll restores every snapshot src lists. Snapshots that cannot be restored
// are logged and skipped; their errors are joined into the returned error.
func (m *Manager) RestoreAll(ctx context.Context, src SnapshotLister) (int, error) {
	snaps, err := src.List(ctx)
	if err != nil {
		return 0, err
	}
	m.log.InfoContext(ctx, "saga restore scan started", "snapshots", len(snaps))

	restored := 0
	var errs []error
	for _, snap := range snaps {
		if _, err := m.Restore(ctx, snap); err != nil {
			m.log.WarnContext(ctx, "skipping snapshot", "error", err)
			errs = append(errs, err)
			continue
		}
		restored++
	}
	m.log.InfoContext(ctx, "saga restore scan completed", "restored", restored, "skipped", len(errs))
	return restored, errors.Join(errs...)
}
