package orchestrator

import (
	"context"
	"errors"

	"github.com/riddopic/distcloud/internal/model"
)

// Named states for the upgrade strategy kind.
const (
	UpgradeInstallingLicense   model.StepState = "installing_license"
	UpgradeMigratingData       model.StepState = "migrating_data"
	UpgradeActivatingUpgrade   model.StepState = "activating_upgrade"
	UpgradeCompletingUpgrade   model.StepState = "completing_upgrade"
	UpgradeCreatingStrategy    model.StepState = "creating_strategy"
	UpgradeApplyingStrategy    model.StepState = "applying_strategy"
)

// UpgradeExecutor drives the upgrade strategy kind. installing_license
// has no defined external behavior in the source this module was
// distilled from; per the decided Open Question (§9, DESIGN.md) it
// fails immediately rather than silently no-opping.
type UpgradeExecutor struct{}

func (UpgradeExecutor) Kind() model.StrategyKind       { return model.KindUpgrade }
func (UpgradeExecutor) StartingState() model.StepState { return UpgradeInstallingLicense }

func (UpgradeExecutor) Execute(ctx context.Context, deps *Deps, strategy *model.SwUpdateStrategy, step *model.StrategyStep) error {
	persistState(ctx, deps, step, UpgradeInstallingLicense, "installing_license: not implemented")
	return errors.New("installing_license: not implemented")
}
