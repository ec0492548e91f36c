package saga

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/orsa-go/orsa/pkg/logger"
)

// DeclareFunc registers the steps of one saga instance on d. It runs once per
// execution, so the step list may depend on the call inputs.
type DeclareFunc func(d *Definition, in Inputs) error

// Source locates the code that declared a saga. EntryPoint is the registry key
// used to find the declaration again when a snapshot is restored.
type Source struct {
	Module     string `json:"source_module"`
	EntryPoint string `json:"source_entry_point"`
	File       string `json:"source_file"`
}

// Declaration is a named, reusable saga blueprint.
type Declaration struct {
	name   string
	params []string
	fn     DeclareFunc
	source Source
}

// DeclarationOption configures a Declaration.
type DeclarationOption func(d *Declaration)

// Params names the positional call arguments in order.
func Params(names ...string) DeclarationOption {
	return func(d *Declaration) {
		d.params = append(d.params, names...)
	}
}

// WithSource overrides the source locator derived from fn.
func WithSource(src Source) DeclarationOption {
	return func(d *Declaration) {
		d.source = src
	}
}

// Declare creates a declaration keyed by name.
func Declare(name string, fn DeclareFunc, opts ...DeclarationOption) *Declaration {
	d := &Declaration{
		name:   name,
		fn:     fn,
		source: sourceOf(fn),
	}
	d.source.EntryPoint = name
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.source.EntryPoint == "" {
		d.source.EntryPoint = name
	}
	return d
}

// Name returns the declaration key.
func (d *Declaration) Name() string { return d.name }

// Params returns the positional parameter names.
func (d *Declaration) Params() []string { return append([]string(nil), d.params...) }

// Source returns the source locator.
func (d *Declaration) Source() Source { return d.source }

func sourceOf(fn DeclareFunc) Source {
	if fn == nil {
		return Source{}
	}
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return Source{}
	}
	file, _ := f.FileLine(f.Entry())
	module := f.Name()
	// "github.com/x/y/pkg.Func" -> "github.com/x/y/pkg"
	if slash := strings.LastIndex(module, "/"); slash >= 0 {
		if dot := strings.Index(module[slash:], "."); dot >= 0 {
			module = module[:slash+dot]
		}
	} else if dot := strings.Index(module, "."); dot >= 0 {
		module = module[:dot]
	}
	return Source{Module: module, File: file}
}

// Definition collects the execution list of one saga instance. A step's rollback
// is registered right after it, so the list alternates steps and the rollbacks
// that undo them.
type Definition struct {
	name      string
	log       logger.Logger
	callees   []*callee
	index     map[string]int
	readiness ReadinessFunc
	catch     CatchFunc
	errs      []error
}

func newDefinition(name string, log logger.Logger) *Definition {
	return &Definition{
		name:  name,
		log:   log,
		index: make(map[string]int),
	}
}

// Step appends a forward step and returns a reference usable with Result.
func (d *Definition) Step(name string, fn StepFunc, opts ...StepOption) StepRef {
	cfg, err := applyStepOptions(opts)
	if err != nil {
		d.errs = append(d.errs, fmt.Errorf("step %q: %w", name, err))
	}
	switch {
	case name == "":
		d.errs = append(d.errs, fmt.Errorf("step name cannot be empty"))
		return StepRef{}
	case fn == nil:
		d.errs = append(d.errs, fmt.Errorf("step %q: %w", name, ErrNilStepFunc))
		return StepRef{}
	}
	if _, exists := d.index[name]; exists {
		d.errs = append(d.errs, fmt.Errorf("step %q: %w", name, ErrDuplicateStep))
		return StepRef{}
	}
	if err := d.checkRefs(name, cfg.params); err != nil {
		d.errs = append(d.errs, err)
	}

	ref := StepRef{def: d, index: len(d.callees), name: name}
	d.index[name] = ref.index
	d.callees = append(d.callees, &callee{
		name:     name,
		kind:     KindStep,
		fn:       fn,
		params:   cfg.params,
		retry:    cfg.retry,
		blocking: cfg.blocking,
	})
	return ref
}

// Rollback registers the compensation of the most recently declared step.
// Without a preceding step the rollback is never run.
func (d *Definition) Rollback(fn RollbackFunc, opts ...StepOption) {
	cfg, err := applyStepOptions(opts)
	compensates := d.lastStep()
	if cfg.name == "" {
		cfg.name = "rollback"
		if compensates != "" {
			cfg.name = "rollback_" + compensates
		}
	}
	if err != nil {
		d.errs = append(d.errs, fmt.Errorf("rollback %q: %w", cfg.name, err))
	}
	if fn == nil {
		d.errs = append(d.errs, fmt.Errorf("rollback %q: %w", cfg.name, ErrNilStepFunc))
		return
	}
	if err := d.checkRefs(cfg.name, cfg.params); err != nil {
		d.errs = append(d.errs, err)
	}
	d.callees = append(d.callees, &callee{
		name:        cfg.name,
		kind:        KindRollback,
		fn:          func(ctx context.Context, in Inputs) (any, error) { return nil, fn(ctx, in) },
		params:      cfg.params,
		retry:       cfg.retry,
		blocking:    cfg.blocking,
		compensates: compensates,
	})
}

// Readiness sets the check run before the first step. The last call wins.
func (d *Definition) Readiness(fn ReadinessFunc) {
	if d.readiness != nil {
		d.logger().Debug("readiness check replaced", logger.SagaKey, d.name)
	}
	d.readiness = fn
}

// Catch sets the hook run after rollbacks when a step fails. The last call wins.
func (d *Definition) Catch(fn CatchFunc) {
	if d.catch != nil {
		d.logger().Debug("catch hook replaced", logger.SagaKey, d.name)
	}
	d.catch = fn
}

// Err returns every registration error joined, or nil.
func (d *Definition) Err() error {
	return errors.Join(d.errs...)
}

// Len returns the number of entries in the execution list.
func (d *Definition) Len() int { return len(d.callees) }

// StepNames returns the forward step names in declaration order.
func (d *Definition) StepNames() []string {
	names := make([]string, 0, len(d.callees))
	for _, c := range d.callees {
		if c.kind == KindStep {
			names = append(names, c.name)
		}
	}
	return names
}

func (d *Definition) logger() logger.Logger {
	if d.log == nil {
		return logger.Global()
	}
	return d.log
}

func (d *Definition) lastStep() string {
	for i := len(d.callees) - 1; i >= 0; i-- {
		if d.callees[i].kind == KindStep {
			return d.callees[i].name
		}
	}
	return ""
}

// checkRefs rejects result params that point at a step not yet declared on d.
func (d *Definition) checkRefs(owner string, params []Param) error {
	for _, p := range params {
		if p.source != sourceResult {
			continue
		}
		if p.ref.def != d || p.ref.index >= len(d.callees) {
			return fmt.Errorf("%q parameter %q: %w", owner, p.name, ErrForwardReference)
		}
	}
	return nil
}

func applyStepOptions(opts []StepOption) (stepConfig, error) {
	cfg := stepConfig{retry: DefaultRetryPolicy()}
	var errs []error
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			errs = append(errs, err)
		}
	}
	return cfg, errors.Join(errs...)
}
