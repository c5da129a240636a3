package orchestrator

import (
	"context"
	"fmt"

	"github.com/riddopic/distcloud/internal/model"
)

// Named states for the patch strategy kind.
const (
	PatchUpdatingPatches  model.StepState = "updating_patches"
	PatchCreatingStrategy model.StepState = "creating_strategy"
	PatchApplyingStrategy model.StepState = "applying_strategy"
	PatchFinishing        model.StepState = "finishing"
)

// PatchExecutor drives the patch strategy kind's step sequence:
// updating_patches → creating_strategy → applying_strategy → finishing
// → complete (§4.3).
type PatchExecutor struct{}

func (PatchExecutor) Kind() model.StrategyKind        { return model.KindPatch }
func (PatchExecutor) StartingState() model.StepState  { return PatchUpdatingPatches }

func (PatchExecutor) Execute(ctx context.Context, deps *Deps, strategy *model.SwUpdateStrategy, step *model.StrategyStep) error {
	persistState(ctx, deps, step, PatchUpdatingPatches, "")

	region := step.Region
	masterPatches, err := deps.Patching.QueryPatches(ctx, model.SystemControllerRegionName, nil)
	if err != nil {
		return fmt.Errorf("query master patches: %w", err)
	}
	scPatches, err := deps.Patching.QueryPatches(ctx, region, nil)
	if err != nil {
		return fmt.Errorf("query subcloud patches: %w", err)
	}

	masterByID := make(map[string]model.Patch, len(masterPatches))
	for _, p := range masterPatches {
		masterByID[p.ID] = p
	}

	var toApply []string
	for _, p := range scPatches {
		if p.State == model.PatchUnknown {
			return fmt.Errorf("patch %s on subcloud %s is in state Unknown", p.ID, region)
		}
		if p.State == model.PatchCommitted {
			if master, ok := masterByID[p.ID]; !ok || master.State != model.PatchCommitted {
				return fmt.Errorf("patch %s is committed on subcloud %s but not on the master", p.ID, region)
			}
		}
	}

	scByID := make(map[string]model.Patch, len(scPatches))
	for _, p := range scPatches {
		scByID[p.ID] = p
	}
	for _, p := range masterPatches {
		if p.State != model.PatchApplied && p.State != model.PatchCommitted {
			continue
		}
		if _, present := scByID[p.ID]; !present {
			toApply = append(toApply, p.ID)
		}
	}

	for _, patchID := range toApply {
		if err := deps.Patching.ApplyPatch(ctx, region, patchID); err != nil {
			return fmt.Errorf("apply patch %s: %w", patchID, err)
		}
	}

	persistState(ctx, deps, step, PatchCreatingStrategy, "")
	persistState(ctx, deps, step, PatchApplyingStrategy, "")
	if err := runVimStrategy(ctx, deps, region, map[string]string{"strategy": "sw-patch"}); err != nil {
		return err
	}

	persistState(ctx, deps, step, PatchFinishing, "")
	persistState(ctx, deps, step, model.StepComplete, "")
	return nil
}
