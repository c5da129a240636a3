package orchestrator

import (
	"context"
	"fmt"

	"github.com/riddopic/distcloud/internal/model"
)

// Named states for the kube-rootca strategy kind.
const (
	KubeRootCAUpdatingHosts model.StepState = "kube_rootca_updating_hosts"
	KubeRootCAUpdatingPods  model.StepState = "kube_rootca_updating_pods"
)

// KubeRootCAExecutor drives the kube-rootca strategy kind's step
// sequence: kube_rootca_updating_hosts → kube_rootca_updating_pods →
// complete (§4.3). Unlike patch/upgrade/firmware/kubernetes this kind
// has no VIM strategy sub-loop: the rollout is driven directly through
// the trust-bundle and pod-restart calls.
type KubeRootCAExecutor struct{}

func (KubeRootCAExecutor) Kind() model.StrategyKind       { return model.KindKubeRootCA }
func (KubeRootCAExecutor) StartingState() model.StepState { return KubeRootCAUpdatingHosts }

func (KubeRootCAExecutor) Execute(ctx context.Context, deps *Deps, strategy *model.SwUpdateStrategy, step *model.StrategyStep) error {
	persistState(ctx, deps, step, KubeRootCAUpdatingHosts, "")

	region := step.Region
	fingerprint, err := deps.RootCA.RootCAFingerprint(ctx, model.SystemControllerRegionName)
	if err != nil {
		return fmt.Errorf("master root CA fingerprint: %w", err)
	}

	if err := deps.RootCA.UpdateHostTrustBundles(ctx, region, fingerprint); err != nil {
		return fmt.Errorf("update host trust bundles: %w", err)
	}

	persistState(ctx, deps, step, KubeRootCAUpdatingPods, "")
	if err := deps.RootCA.RestartPods(ctx, region); err != nil {
		return fmt.Errorf("restart pods: %w", err)
	}

	persistState(ctx, deps, step, model.StepComplete, "")
	return nil
}
