package saga

import (
	"context"

	"github.com/qmuntal/stateless"

	"github.com/orsa-go/orsa/pkg/logger"
)

// State is the lifecycle stage of one saga execution.
type State string

const (
	StateBuilding    State = "building"
	StateReady       State = "ready"
	StateRunning     State = "running"
	StateRollingBack State = "rolling_back"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// IsTerminal reports whether the state is terminal.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

const (
	triggerDeclared   = "declared"
	triggerStart      = "start"
	triggerComplete   = "complete"
	triggerStepFailed = "step_failed"
	triggerRolledBack = "rolled_back"
	triggerAbort      = "abort"
)

// newStateMachine builds the transition table of one engine:
//
//	building --declared--> ready --start--> running --complete--> completed
//	running --step_failed--> rolling_back --rolled_back--> failed
//	building|ready --abort--> failed
func newStateMachine(log logger.Logger) *stateless.StateMachine {
	sm := stateless.NewStateMachine(StateBuilding)

	sm.Configure(StateBuilding).
		Permit(triggerDeclared, StateReady).
		Permit(triggerAbort, StateFailed)

	sm.Configure(StateReady).
		Permit(triggerStart, StateRunning).
		Permit(triggerAbort, StateFailed)

	sm.Configure(StateRunning).
		Permit(triggerComplete, StateCompleted).
		Permit(triggerStepFailed, StateRollingBack)

	sm.Configure(StateRollingBack).
		Permit(triggerRolledBack, StateFailed)

	sm.Configure(StateCompleted)
	sm.Configure(StateFailed)

	sm.OnTransitioned(func(ctx context.Context, t stateless.Transition) {
		log.DebugContext(ctx, "state transition",
			"from", t.Source,
			"to", t.Destination,
			"trigger", t.Trigger,
		)
	})
	return sm
}
