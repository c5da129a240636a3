package orchestrator

import (
	"context"
	"fmt"

	"github.com/riddopic/distcloud/internal/model"
)

// Named states for the firmware strategy kind.
const (
	FirmwareUpdatingHosts    model.StepState = "firmware_updating_hosts"
	FirmwareCreatingStrategy model.StepState = "creating_strategy"
	FirmwareApplyingStrategy model.StepState = "applying_strategy"
)

// FirmwareExecutor drives the firmware strategy kind's step sequence:
// firmware_updating_hosts → creating_strategy → applying_strategy →
// complete (§4.3), pushing the master's device image set to the
// subcloud ahead of the VIM strategy sub-loop.
type FirmwareExecutor struct{}

func (FirmwareExecutor) Kind() model.StrategyKind       { return model.KindFirmware }
func (FirmwareExecutor) StartingState() model.StepState { return FirmwareUpdatingHosts }

func (FirmwareExecutor) Execute(ctx context.Context, deps *Deps, strategy *model.SwUpdateStrategy, step *model.StrategyStep) error {
	persistState(ctx, deps, step, FirmwareUpdatingHosts, "")

	region := step.Region
	master, err := deps.Firmware.DeviceImageFingerprints(ctx, model.SystemControllerRegionName)
	if err != nil {
		return fmt.Errorf("master device image fingerprints: %w", err)
	}

	if err := deps.Firmware.ApplyDeviceImages(ctx, region, master); err != nil {
		return fmt.Errorf("apply device images: %w", err)
	}

	persistState(ctx, deps, step, FirmwareCreatingStrategy, "")
	persistState(ctx, deps, step, FirmwareApplyingStrategy, "")
	if err := runVimStrategy(ctx, deps, region, map[string]string{"strategy": "fw-update"}); err != nil {
		return err
	}

	persistState(ctx, deps, step, model.StepComplete, "")
	return nil
}
