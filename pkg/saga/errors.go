package saga

import (
	"errors"
	"fmt"
)

var (
	// ErrForwardReference is returned when a step depends on a step that was not declared before it.
	ErrForwardReference = errors.New("dependency references a step that is not declared earlier")
	// ErrDuplicateStep is returned when two steps of one saga share a name.
	ErrDuplicateStep = errors.New("duplicate step name")
	// ErrNilStepFunc is returned when a step or rollback is registered without a function.
	ErrNilStepFunc = errors.New("step function cannot be nil")
	// ErrAlreadyRun is returned when an engine is run twice.
	ErrAlreadyRun = errors.New("saga already executed")
	// ErrManagerStopped is returned when work is submitted to a stopped manager.
	ErrManagerStopped = errors.New("saga manager is stopped")
	// ErrManagerRunning is returned when Start is called twice.
	ErrManagerRunning = errors.New("saga manager already started")
	// ErrDeclarationNotFound is returned when a snapshot names an unregistered declaration.
	ErrDeclarationNotFound = errors.New("saga declaration not registered")
	// ErrSagaRunning is returned when a saga is scheduled while another with the same uid
	// is still pending or running.
	ErrSagaRunning = errors.New("saga with this uid is already running")
	// ErrDuplicateDeclaration is returned when a different declaration is registered under a used key.
	ErrDuplicateDeclaration = errors.New("saga declaration already registered")
)

// BindingError reports a step parameter that could not be resolved.
type BindingError struct {
	Step  string
	Param string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("step %q: missing argument %q", e.Step, e.Param)
}

// StepExecutionError records which step failed and after how many attempts.
// Run returns the step's own error; this wrapper is kept on the engine.
type StepExecutionError struct {
	Saga     string
	Step     string
	Attempts int
	Err      error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("saga %q step %q failed after %d attempt(s): %v", e.Saga, e.Step, e.Attempts, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// RollbackError records a compensation that failed during the reverse walk.
// Step is the step the rollback undoes.
type RollbackError struct {
	Step     string
	Rollback string
	Err      error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback %q of step %q failed: %v", e.Rollback, e.Step, e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }

// RestoreError reports a snapshot that could not be turned back into a running saga.
type RestoreError struct {
	UID        string
	EntryPoint string
	Err        error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore saga %s (%s): %v", e.UID, e.EntryPoint, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }
