package saga

import (
	"context"
	"fmt"
)

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(o *Orchestrator)

// WithManager runs invocations on m instead of the caller's goroutine.
func WithManager(m *Manager) OrchestratorOption {
	return func(o *Orchestrator) {
		o.manager = m
	}
}

// WithEngineOptions applies opts to every engine the orchestrator creates.
func WithEngineOptions(opts ...EngineOption) OrchestratorOption {
	return func(o *Orchestrator) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// Orchestrator turns a declaration into something callable.
type Orchestrator struct {
	decl       *Declaration
	manager    *Manager
	engineOpts []EngineOption
}

// Orchestrate wraps decl. With a manager the declaration is registered in the
// manager's registry so its snapshots can be restored.
func Orchestrate(decl *Declaration, options ...OrchestratorOption) (*Orchestrator, error) {
	if decl == nil {
		return nil, fmt.Errorf("saga declaration cannot be nil")
	}
	o := &Orchestrator{decl: decl}
	for _, option := range options {
		if option != nil {
			option(o)
		}
	}
	if o.manager != nil {
		if err := o.manager.Registry().Register(decl); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Declaration returns the wrapped declaration.
func (o *Orchestrator) Declaration() *Declaration { return o.decl }

// Invoke starts a saga with positional arguments. See InvokeArgs.
func (o *Orchestrator) Invoke(ctx context.Context, args ...any) (*Handle, error) {
	return o.InvokeArgs(ctx, Positional(args...))
}

// InvokeArgs starts a saga. Without a manager the saga runs to completion on the
// calling goroutine and its error is returned. With a manager it is scheduled and
// the returned handle reports the outcome; only scheduling errors are returned.
func (o *Orchestrator) InvokeArgs(ctx context.Context, call Args) (*Handle, error) {
	e := o.NewEngine(call)
	if o.manager == nil {
		err := e.Run(ctx)
		return resolvedHandle(e, err), err
	}
	return o.manager.Schedule(ctx, e)
}

// NewEngine builds an engine for call without running it.
func (o *Orchestrator) NewEngine(call Args) *Engine {
	opts := make([]EngineOption, 0, len(o.engineOpts)+2)
	if o.manager != nil {
		opts = append(opts, WithEngineLogger(o.manager.Logger()), WithEngineMetrics(o.manager.Metrics()))
	}
	opts = append(opts, o.engineOpts...)
	return NewEngine(o.decl, call, opts...)
}
