package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	derrors "github.com/riddopic/distcloud/internal/errors"
	"github.com/riddopic/distcloud/internal/lock"
	"github.com/riddopic/distcloud/internal/model"
	"github.com/riddopic/distcloud/internal/rpc"
	"github.com/riddopic/distcloud/internal/store"
	"github.com/riddopic/distcloud/pkg/logging"
)

// kindEndpoints maps a strategy kind to the endpoint type its candidate
// subcloud selection and out-of-sync check are based on.
var kindEndpoints = map[model.StrategyKind]model.EndpointType{
	model.KindPatch:      model.EndpointPatching,
	model.KindUpgrade:    model.EndpointLoad,
	model.KindFirmware:   model.EndpointFirmware,
	model.KindKubernetes: model.EndpointKubernetes,
	model.KindKubeRootCA: model.EndpointKubeRootCA,
}

// Engine runs the long-running loop for one strategy kind (§4.3). A
// deployment runs one Engine per kind, each bound to its StepExecutor.
type Engine struct {
	gateway  store.Gateway
	deps     *Deps
	executor StepExecutor
	lock     lock.Locker
	ws       *WorkerSet
	tick     time.Duration
}

// New returns an Engine bound to executor's kind.
func New(gateway store.Gateway, deps *Deps, executor StepExecutor, strategyLock lock.Locker) *Engine {
	tick := deps.Cfg.TickInterval
	if tick <= 0 {
		tick = 10 * time.Second
	}
	return &Engine{
		gateway:  gateway,
		deps:     deps,
		executor: executor,
		lock:     strategyLock,
		ws:       NewWorkerSet(),
		tick:     tick,
	}
}

// Run blocks, ticking the main loop until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				logging.Warn(component, "tick failed for kind %s: %v", e.executor.Kind(), err)
			}
		}
	}
}

// Tick runs one pass of the main loop: read the strategy, dispatch to
// apply/abort/delete based on its state, or sleep if absent or not this
// engine's kind (§4.3 "Main loop").
func (e *Engine) Tick(ctx context.Context) error {
	if err := e.lock.Lock(ctx); err != nil {
		return err
	}
	defer e.lock.Unlock()

	strategy, err := e.gateway.GetStrategy(ctx)
	if err != nil {
		if derrors.Is(err, derrors.NotFound) {
			return nil
		}
		return err
	}
	if strategy.Type != e.executor.Kind() {
		return nil
	}

	switch strategy.State {
	case model.StrategyApplying, model.StrategyAborting:
		return e.apply(ctx, strategy)
	case model.StrategyAbortRequested:
		return e.abort(ctx, strategy)
	case model.StrategyDeleting:
		return e.delete(ctx, strategy)
	}
	return nil
}

// CreateStrategy computes the candidate subcloud set and persists a new
// strategy plus one step per member (§4.3 "Strategy creation").
func (e *Engine) CreateStrategy(ctx context.Context, kind model.StrategyKind, applyType model.ApplyType, maxParallel int, stopOnFailure bool, extraArgs map[string]string, includeSystemController bool) (*model.SwUpdateStrategy, error) {
	if err := e.lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer e.lock.Unlock()

	if _, err := e.gateway.GetStrategy(ctx); err == nil {
		return nil, fmt.Errorf("a strategy already exists: %w", derrors.BadRequest)
	}

	if applyType != model.ApplySerial && applyType != model.ApplyParallel {
		return nil, fmt.Errorf("invalid apply type %q: %w", applyType, derrors.BadRequest)
	}
	if maxParallel < 1 || maxParallel > 100 {
		return nil, fmt.Errorf("max parallel subclouds %d outside [1,100]: %w", maxParallel, derrors.BadRequest)
	}

	endpoint, ok := kindEndpoints[kind]
	if !ok {
		return nil, fmt.Errorf("unknown strategy kind %q: %w", kind, derrors.BadRequest)
	}

	subclouds, err := e.gateway.ListSubclouds(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []*model.Subcloud
	for _, sc := range subclouds {
		if sc.Management != model.ManagementManaged || sc.Availability != model.AvailabilityOnline {
			continue
		}
		status, err := e.gateway.GetEndpointStatus(ctx, sc.ID, endpoint)
		if err != nil {
			if derrors.Is(err, derrors.NotFound) {
				continue
			}
			return nil, err
		}
		switch status.Status {
		case model.SyncOutOfSync:
			candidates = append(candidates, sc)
		case model.SyncUnknown:
			return nil, fmt.Errorf("subcloud %d has unknown %s sync status: %w", sc.ID, endpoint, derrors.BadRequest)
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	strategy := &model.SwUpdateStrategy{
		Type:                 kind,
		SubcloudApplyType:    applyType,
		MaxParallelSubclouds: maxParallel,
		StopOnFailure:        stopOnFailure,
		State:                model.StrategyInitial,
		ExtraArgs:            extraArgs,
	}
	if err := e.gateway.CreateStrategy(ctx, strategy); err != nil {
		return nil, err
	}

	stage := 1
	if includeSystemController {
		if err := e.gateway.CreateStep(ctx, &model.StrategyStep{
			StrategyID: strategy.ID,
			SubcloudID: nil,
			Region:     model.SystemControllerRegionName,
			Stage:      1,
			State:      model.StepInitial,
		}); err != nil {
			return nil, err
		}
		stage = 2
	}

	switch applyType {
	case model.ApplySerial:
		for _, sc := range candidates {
			id := sc.ID
			if err := e.gateway.CreateStep(ctx, &model.StrategyStep{
				StrategyID: strategy.ID,
				SubcloudID: &id,
				Region:     sc.RegionName,
				Stage:      stage,
				State:      model.StepInitial,
			}); err != nil {
				return nil, err
			}
			stage++
		}
	default: // parallel
		size := maxParallel
		if size <= 0 {
			size = 1
		}
		for i, sc := range candidates {
			id := sc.ID
			if err := e.gateway.CreateStep(ctx, &model.StrategyStep{
				StrategyID: strategy.ID,
				SubcloudID: &id,
				Region:     sc.RegionName,
				Stage:      stage + i/size,
				State:      model.StepInitial,
			}); err != nil {
				return nil, err
			}
		}
	}

	return strategy, nil
}

// ApplyStrategy moves an initial strategy of this engine's kind into
// applying, so the next Tick picks it up and starts dispatching steps.
func (e *Engine) ApplyStrategy(ctx context.Context) error {
	if err := e.lock.Lock(ctx); err != nil {
		return err
	}
	defer e.lock.Unlock()

	strategy, err := e.gateway.GetStrategy(ctx)
	if err != nil {
		return err
	}
	if strategy.Type != e.executor.Kind() {
		return fmt.Errorf("strategy is not of kind %s: %w", e.executor.Kind(), derrors.BadRequest)
	}
	if strategy.State != model.StrategyInitial {
		return fmt.Errorf("strategy is not in initial state: %w", derrors.BadRequest)
	}
	return e.finalize(ctx, model.StrategyApplying)
}

// AbortStrategy requests that an in-flight strategy of this engine's
// kind stop dispatching new steps; steps already running complete, but
// every remaining initial step is marked aborted on the next Tick.
func (e *Engine) AbortStrategy(ctx context.Context) error {
	if err := e.lock.Lock(ctx); err != nil {
		return err
	}
	defer e.lock.Unlock()

	strategy, err := e.gateway.GetStrategy(ctx)
	if err != nil {
		return err
	}
	if strategy.Type != e.executor.Kind() {
		return fmt.Errorf("strategy is not of kind %s: %w", e.executor.Kind(), derrors.BadRequest)
	}
	if strategy.State != model.StrategyApplying {
		return fmt.Errorf("strategy is not applying: %w", derrors.BadRequest)
	}
	return e.finalize(ctx, model.StrategyAbortRequested)
}

// DeleteStrategy requests removal of a strategy of this engine's kind
// that is still initial or has already reached a terminal state; the
// next Tick deletes its steps and the strategy itself.
func (e *Engine) DeleteStrategy(ctx context.Context) error {
	if err := e.lock.Lock(ctx); err != nil {
		return err
	}
	defer e.lock.Unlock()

	strategy, err := e.gateway.GetStrategy(ctx)
	if err != nil {
		return err
	}
	if strategy.Type != e.executor.Kind() {
		return fmt.Errorf("strategy is not of kind %s: %w", e.executor.Kind(), derrors.BadRequest)
	}
	if strategy.State != model.StrategyInitial && !strategy.State.IsTerminal() {
		return fmt.Errorf("strategy is neither initial nor in a terminal state: %w", derrors.BadRequest)
	}
	return e.finalize(ctx, model.StrategyDeleting)
}

// apply implements the §4.3 "apply() algorithm" scan.
func (e *Engine) apply(ctx context.Context, strategy *model.SwUpdateStrategy) error {
	steps, err := e.gateway.ListSteps(ctx)
	if err != nil {
		return err
	}
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].Stage != steps[j].Stage {
			return steps[i].Stage < steps[j].Stage
		}
		return stepSortID(steps[i]) < stepSortID(steps[j])
	})

	var anyFailed, anyAborted bool
	currentStage := -1
	stageSettled := func(stage int) bool {
		for _, s := range steps {
			if s.Stage == stage && !s.State.IsTerminal() {
				return false
			}
		}
		return true
	}

scan:
	for _, step := range steps {
		switch step.State {
		case model.StepComplete:
			continue
		case model.StepAborted:
			anyAborted = true
			continue
		case model.StepFailed:
			anyFailed = true
			if step.IsSystemController() {
				return e.finalize(ctx, model.StrategyFailed)
			}
			if !strategy.StopOnFailure {
				// A non-blocking failure: keep scanning for the first
				// non-terminal step so other stages can still progress.
				continue
			}
			if stageSettled(step.Stage) {
				return e.finalize(ctx, model.StrategyFailed)
			}
			// Wait for the rest of this stage to settle before failing.
			currentStage = step.Stage
			break scan
		default:
			currentStage = step.Stage
			break scan
		}
	}

	if currentStage == -1 {
		switch {
		case anyFailed:
			return e.finalize(ctx, model.StrategyFailed)
		case anyAborted:
			return e.finalize(ctx, model.StrategyAborted)
		default:
			return e.finalize(ctx, model.StrategyComplete)
		}
	}

	for _, step := range steps {
		if step.Stage != currentStage || step.State != model.StepInitial {
			continue
		}
		if step.SubcloudID != nil {
			sc, err := e.gateway.GetSubcloud(ctx, *step.SubcloudID)
			if err != nil {
				return err
			}
			if sc.Management != model.ManagementManaged {
				persistState(ctx, e.deps, step, model.StepFailed, fmt.Sprintf("subcloud %d is unmanaged", sc.ID))
				continue
			}
		}
		e.dispatch(ctx, strategy, step)
	}

	return nil
}

// dispatch transitions step to the kind's starting state and launches a
// worker keyed by region, unless one is already running for that region.
func (e *Engine) dispatch(ctx context.Context, strategy *model.SwUpdateStrategy, step *model.StrategyStep) {
	if !e.ws.TryStart(step.Region) {
		return
	}
	persistState(ctx, e.deps, step, e.executor.StartingState(), "")
	go runStep(ctx, e.deps, e.executor, strategy, step, e.ws)
}

func stepSortID(s *model.StrategyStep) int {
	if s.SubcloudID != nil {
		return *s.SubcloudID
	}
	return -1
}

func (e *Engine) finalize(ctx context.Context, state model.StrategyState) error {
	if err := e.gateway.UpdateStrategyState(ctx, state); err != nil {
		return err
	}
	if e.deps.Hub != nil {
		e.deps.Hub.Publish(rpc.Event{
			Kind:      rpc.EventStrategyTransition,
			New:       string(state),
			Timestamp: time.Now(),
		})
	}
	return nil
}

// abort marks every initial step as aborted and moves the strategy to
// aborting; in-flight workers run to completion (§4.3 "abort()").
func (e *Engine) abort(ctx context.Context, strategy *model.SwUpdateStrategy) error {
	steps, err := e.gateway.ListSteps(ctx)
	if err != nil {
		return err
	}
	for _, step := range steps {
		if step.State == model.StepInitial {
			persistState(ctx, e.deps, step, model.StepAborted, "")
		}
	}
	return e.gateway.UpdateStrategyState(ctx, model.StrategyAborting)
}

// delete destroys all steps then the strategy (§4.3 "delete()").
func (e *Engine) delete(ctx context.Context, strategy *model.SwUpdateStrategy) error {
	if err := e.gateway.DeleteSteps(ctx); err != nil {
		return err
	}
	return e.gateway.DeleteStrategy(ctx)
}
