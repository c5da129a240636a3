package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/riddopic/distcloud/internal/model"
)

// Named states for the kubernetes strategy kind.
const (
	KubePreCheck            model.StepState = "kube_upgrade_pre_check"
	KubeCreatingVimStrategy model.StepState = "kube_creating_vim_kube_upgrade_strategy"
	KubeApplyingVimStrategy model.StepState = "kube_applying_vim_kube_upgrade_strategy"
)

// targetVersionArg is the extra-args key a strategy create call uses to
// pin a specific kube target version, overriding the system controller's
// active version.
const targetVersionArg = "target_version"

// KubernetesExecutor drives the kubernetes strategy kind:
// kube_upgrade_pre_check → kube_creating_vim_kube_upgrade_strategy →
// kube_applying_vim_kube_upgrade_strategy → complete, applying the
// pre-check rule set verbatim from §4.3.
type KubernetesExecutor struct{}

func (KubernetesExecutor) Kind() model.StrategyKind       { return model.KindKubernetes }
func (KubernetesExecutor) StartingState() model.StepState { return KubePreCheck }

func (KubernetesExecutor) Execute(ctx context.Context, deps *Deps, strategy *model.SwUpdateStrategy, step *model.StrategyStep) error {
	persistState(ctx, deps, step, KubePreCheck, "")

	region := step.Region

	upgrades, err := deps.Sysinv.ListKubeUpgrades(ctx, region)
	if err != nil {
		return fmt.Errorf("list kube upgrades: %w", err)
	}

	targetVersion := strategy.ExtraArgs[targetVersionArg]

	if len(upgrades) > 0 {
		existing := upgrades[len(upgrades)-1]
		if targetVersion == "" {
			v, err := systemControllerActiveKubeVersion(ctx, deps)
			if err != nil {
				return err
			}
			targetVersion = v
		}
		if !kubeVersionGTE(targetVersion, existing.ToVersion) {
			persistState(ctx, deps, step, model.StepComplete, "skipped: target version not newer than existing kube-upgrade")
			return nil
		}
	} else {
		if targetVersion == "" {
			v, err := systemControllerActiveKubeVersion(ctx, deps)
			if err != nil {
				return err
			}
			targetVersion = v
		}

		versions, err := deps.Sysinv.ListKubeVersions(ctx, region)
		if err != nil {
			return fmt.Errorf("list kube versions: %w", err)
		}
		available := false
		for _, v := range versions {
			if kubeVersionGTE(v.Version, targetVersion) {
				available = true
				break
			}
		}
		if !available {
			persistState(ctx, deps, step, model.StepComplete, "skipped: no available kube version meets target")
			return nil
		}
	}

	persistState(ctx, deps, step, KubeCreatingVimStrategy, "")
	persistState(ctx, deps, step, KubeApplyingVimStrategy, "")
	if err := runVimStrategy(ctx, deps, region, map[string]string{"strategy": "kube-upgrade", "to_version": targetVersion}); err != nil {
		return err
	}

	persistState(ctx, deps, step, model.StepComplete, "")
	return nil
}

func systemControllerActiveKubeVersion(ctx context.Context, deps *Deps) (string, error) {
	versions, err := deps.Sysinv.ListKubeVersions(ctx, model.SystemControllerRegionName)
	if err != nil {
		return "", fmt.Errorf("list system controller kube versions: %w", err)
	}
	for _, v := range versions {
		if v.Active {
			return v.Version, nil
		}
	}
	return "", fmt.Errorf("system controller has no active kube version")
}

// kubeVersionGTE compares a >= b on major.minor only, ignoring micro,
// per §4.2/§4.3.
func kubeVersionGTE(a, b string) bool {
	am, an := kubeMajorMinor(a)
	bm, bn := kubeMajorMinor(b)
	if am != bm {
		return am > bm
	}
	return an >= bn
}

func kubeMajorMinor(v string) (int, int) {
	v = strings.TrimPrefix(v, "v")
	parts := strings.SplitN(v, ".", 3)
	major, minor := 0, 0
	if len(parts) > 0 {
		major, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(parts[1])
	}
	return major, minor
}
