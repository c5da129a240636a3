package orchestrator

import (
	"context"
	"time"

	"github.com/riddopic/distcloud/internal/model"
	"github.com/riddopic/distcloud/internal/rpc"
	"github.com/riddopic/distcloud/pkg/logging"
)

const component = "orchestrator"

// StepExecutor drives one subcloud (or the SystemController) through a
// single strategy kind's named state sequence. This is the idiomatic
// expression of the source's OrchThread subclass hierarchy (§9): one
// implementation per StrategyKind, selected by the engine at dispatch
// time and driven by the shared skeleton in runStep.
type StepExecutor interface {
	// Kind is the strategy type this executor drives.
	Kind() model.StrategyKind

	// StartingState is the first named state a dispatched step enters,
	// persisted by the engine before Execute is called.
	StartingState() model.StepState

	// Execute runs the kind's state sequence to completion, persisting
	// step.State/Details/StartedAt via deps.Gateway.UpdateStep as it
	// progresses. It returns nil only once step.State has been left in
	// a terminal state (normally "complete"); any returned error is
	// recorded by runStep as a failed transition.
	Execute(ctx context.Context, deps *Deps, strategy *model.SwUpdateStrategy, step *model.StrategyStep) error
}

// persistState sets step.State (and optionally Details) and persists it,
// logging but not failing the step on a transient store error — matching
// the teacher's posture of logging infrastructure failures without
// aborting in-flight work that can still make progress.
func persistState(ctx context.Context, deps *Deps, step *model.StrategyStep, state model.StepState, details string) {
	old := step.State
	step.State = state
	step.Details = details
	now := time.Now()
	if step.StartedAt == nil && state != model.StepInitial {
		step.StartedAt = &now
	}
	if step.FinishedAt == nil && state.IsTerminal() {
		step.FinishedAt = &now
	}
	if err := deps.Gateway.UpdateStep(ctx, step); err != nil {
		logging.Warn(component, "failed to persist step %d state %s: %v", step.ID, state, err)
		return
	}
	if deps.Hub != nil {
		deps.Hub.Publish(rpc.Event{
			Kind:       rpc.EventStepTransition,
			SubcloudID: stepSortID(step),
			Region:     step.Region,
			Old:        string(old),
			New:        string(state),
			Details:    details,
			Timestamp:  time.Now(),
		})
	}
}

// runStep is the shared skeleton driving whichever executor is bound to
// a strategy's kind. It recovers from a panicking executor (an
// unexpected driver or logic fault) and always releases the worker
// claim, matching "on any worker exception: transition to failed with
// the exception message" (§4.3).
func runStep(ctx context.Context, deps *Deps, executor StepExecutor, strategy *model.SwUpdateStrategy, step *model.StrategyStep, ws *WorkerSet) {
	defer ws.Finish(step.Region)
	defer func() {
		if r := recover(); r != nil {
			persistState(ctx, deps, step, model.StepFailed, errorString(r))
		}
	}()

	if err := executor.Execute(ctx, deps, strategy, step); err != nil {
		persistState(ctx, deps, step, model.StepFailed, err.Error())
	}
}

func errorString(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "panic in step executor"
}
