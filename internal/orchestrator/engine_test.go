package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riddopic/distcloud/internal/appconfig"
	"github.com/riddopic/distcloud/internal/driver"
	"github.com/riddopic/distcloud/internal/driver/drivertest"
	"github.com/riddopic/distcloud/internal/lock"
	"github.com/riddopic/distcloud/internal/model"
	"github.com/riddopic/distcloud/internal/store"
)

func seedPatchSubclouds(t *testing.T, mem *store.Memory) {
	t.Helper()
	for i := 1; i <= 6; i++ {
		mgmt := model.ManagementManaged
		if i == 2 {
			mgmt = model.ManagementUnmanaged
		}
		mem.SeedSubcloud(&model.Subcloud{
			ID:               i,
			Name:             fmt.Sprintf("subcloud%d", i),
			RegionName:       fmt.Sprintf("subcloud%d", i),
			Management:       mgmt,
			Availability:     model.AvailabilityOnline,
			GroupID:          1,
			InitialSyncState: model.InitialSyncCompleted,
		})
		status := model.SyncOutOfSync
		if i == 4 {
			status = model.SyncInSync
		}
		require.NoError(t, mem.SetEndpointStatus(context.Background(), i, model.EndpointPatching, status))
	}
}

func newPatchDeps(sysinv *drivertest.Sysinv, patching *drivertest.Patching, vim *drivertest.Vim) *Deps {
	cfg := appconfig.OrchestratorConfig{
		TickInterval:       time.Millisecond,
		VimPollInterval:    time.Millisecond,
		VimPollMaxAttempts: 10,
	}
	return &Deps{
		Sysinv:   sysinv,
		Patching: patching,
		Vim:      vim,
		Cfg:      cfg,
	}
}

// TestCreateStrategyParallelStagesRejectUnmanagedAndInSync covers
// scenario 1 (§8): subclouds 1..6, #2 unmanaged, #4 already in-sync,
// max_parallel=2 → stage1=SystemController; stage2={1,3}; stage3={5,6}.
func TestCreateStrategyParallelStagesRejectUnmanagedAndInSync(t *testing.T) {
	mem := store.NewMemory()
	seedPatchSubclouds(t, mem)

	deps := newPatchDeps(drivertest.NewSysinv(), drivertest.NewPatching(), drivertest.NewVim())
	deps.Gateway = mem
	eng := New(mem, deps, PatchExecutor{}, lock.NewLocal())

	strategy, err := eng.CreateStrategy(context.Background(), model.KindPatch, model.ApplyParallel, 2, true, nil, true)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyInitial, strategy.State)

	steps, err := mem.ListSteps(context.Background())
	require.NoError(t, err)
	require.Len(t, steps, 5) // SystemController + subclouds 1,3,5,6 (2 excluded unmanaged, 4 excluded in-sync)

	byRegion := map[string]*model.StrategyStep{}
	for _, s := range steps {
		byRegion[s.Region] = s
	}
	assert.Equal(t, 1, byRegion[model.SystemControllerRegionName].Stage)
	assert.Equal(t, 2, byRegion["subcloud1"].Stage)
	assert.Equal(t, 2, byRegion["subcloud3"].Stage)
	assert.Equal(t, 3, byRegion["subcloud5"].Stage)
	assert.Equal(t, 3, byRegion["subcloud6"].Stage)

	_, ok := byRegion["subcloud2"]
	assert.False(t, ok)
	_, ok = byRegion["subcloud4"]
	assert.False(t, ok)
}

// TestCreateStrategyRejectsUnknownSyncStatus covers the hard-reject rule:
// any candidate with unknown sync status fails strategy creation.
func TestCreateStrategyRejectsUnknownSyncStatus(t *testing.T) {
	mem := store.NewMemory()
	mem.SeedSubcloud(&model.Subcloud{
		ID: 1, RegionName: "subcloud1",
		Management: model.ManagementManaged, Availability: model.AvailabilityOnline,
		GroupID: 1, InitialSyncState: model.InitialSyncCompleted,
	})
	require.NoError(t, mem.SetEndpointStatus(context.Background(), 1, model.EndpointPatching, model.SyncUnknown))

	deps := newPatchDeps(drivertest.NewSysinv(), drivertest.NewPatching(), drivertest.NewVim())
	deps.Gateway = mem
	eng := New(mem, deps, PatchExecutor{}, lock.NewLocal())

	_, err := eng.CreateStrategy(context.Background(), model.KindPatch, model.ApplyParallel, 2, true, nil, false)
	assert.Error(t, err)
}

// TestApplyStopOnFailureWaitsForStageBeforeFinalizing covers scenario 2
// (§8): a failed step in a stage does not short-circuit dispatch of its
// stage siblings, and the strategy finalizes as failed only once the
// stage has settled.
func TestApplyStopOnFailureWaitsForStageBeforeFinalizing(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	strategy := &model.SwUpdateStrategy{Type: model.KindPatch, SubcloudApplyType: model.ApplyParallel, StopOnFailure: true, State: model.StrategyApplying}
	require.NoError(t, mem.CreateStrategy(ctx, strategy))

	idA, idB, idC := 101, 102, 103
	failed := &model.StrategyStep{StrategyID: strategy.ID, SubcloudID: &idA, Region: "subcloudA", Stage: 1, State: model.StepFailed}
	stillRunning := &model.StrategyStep{StrategyID: strategy.ID, SubcloudID: &idB, Region: "subcloudB", Stage: 1, State: PatchApplyingStrategy}
	notYetStarted := &model.StrategyStep{StrategyID: strategy.ID, SubcloudID: &idC, Region: "subcloudC", Stage: 2, State: model.StepInitial}
	require.NoError(t, mem.CreateStep(ctx, failed))
	require.NoError(t, mem.CreateStep(ctx, stillRunning))
	require.NoError(t, mem.CreateStep(ctx, notYetStarted))

	deps := newPatchDeps(drivertest.NewSysinv(), drivertest.NewPatching(), drivertest.NewVim())
	deps.Gateway = mem
	eng := New(mem, deps, PatchExecutor{}, lock.NewLocal())

	require.NoError(t, eng.apply(ctx, strategy))

	updatedStrategy, err := mem.GetStrategy(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyApplying, updatedStrategy.State, "strategy must not finalize while stage 1 still has a running step")

	steps, err := mem.ListSteps(ctx)
	require.NoError(t, err)
	for _, s := range steps {
		if s.Region == "subcloudC" {
			assert.Equal(t, model.StepInitial, s.State, "stage 2 must not be dispatched while stage 1 hasn't settled")
		}
	}
}

func TestKubeVersionGTEIgnoresMicro(t *testing.T) {
	assert.True(t, kubeVersionGTE("v1.2.3", "v1.2.9"))
	assert.True(t, kubeVersionGTE("v1.3.0", "v1.2.9"))
	assert.False(t, kubeVersionGTE("v1.2.0", "v1.3.0"))
}

// TestKubernetesExecutorSkipsWhenTargetNotNewer covers scenario 4 (§8):
// an existing kube-upgrade to-version v1.3.3 and a target of v1.2 skips
// straight to complete.
func TestKubernetesExecutorSkipsWhenTargetNotNewer(t *testing.T) {
	sysinv := drivertest.NewSysinv()
	sysinv.KubeUpgrades["subcloud1"] = []driver.KubeUpgrade{{ToVersion: "v1.3.3"}}

	mem := store.NewMemory()
	deps := newPatchDeps(sysinv, drivertest.NewPatching(), drivertest.NewVim())
	deps.Gateway = mem

	step := &model.StrategyStep{Region: "subcloud1", State: KubePreCheck}
	strategy := &model.SwUpdateStrategy{Type: model.KindKubernetes, ExtraArgs: map[string]string{"target_version": "v1.2"}}

	err := KubernetesExecutor{}.Execute(context.Background(), deps, strategy, step)
	require.NoError(t, err)
	assert.Equal(t, model.StepComplete, step.State)
}

// TestKubernetesExecutorProceedsWhenTargetNewer covers the resume half
// of scenario 4: to-version v1.2.3 vs target v1.3 proceeds through the
// VIM sub-loop to complete.
func TestKubernetesExecutorProceedsWhenTargetNewer(t *testing.T) {
	sysinv := drivertest.NewSysinv()
	sysinv.KubeUpgrades["subcloud1"] = []driver.KubeUpgrade{{ToVersion: "v1.2.3"}}

	vim := drivertest.NewVim()
	mem := store.NewMemory()
	deps := newPatchDeps(sysinv, drivertest.NewPatching(), vim)
	deps.Gateway = mem

	step := &model.StrategyStep{Region: "subcloud1", State: KubePreCheck}
	strategy := &model.SwUpdateStrategy{Type: model.KindKubernetes, ExtraArgs: map[string]string{"target_version": "v1.3"}}

	err := KubernetesExecutor{}.Execute(context.Background(), deps, strategy, step)
	require.NoError(t, err)
	assert.Equal(t, model.StepComplete, step.State)
}

func TestUpgradeExecutorFailsImmediatelyOnInstallingLicense(t *testing.T) {
	mem := store.NewMemory()
	deps := newPatchDeps(drivertest.NewSysinv(), drivertest.NewPatching(), drivertest.NewVim())
	deps.Gateway = mem

	step := &model.StrategyStep{Region: "subcloud1", State: UpgradeInstallingLicense}
	err := UpgradeExecutor{}.Execute(context.Background(), deps, &model.SwUpdateStrategy{Type: model.KindUpgrade}, step)
	assert.Error(t, err)
	assert.Equal(t, UpgradeInstallingLicense, step.State)
}

// TestApplyStrategyRejectsWrongKindAndWrongState covers the precondition
// checks on the public ApplyStrategy API entry point.
func TestApplyStrategyRejectsWrongKindAndWrongState(t *testing.T) {
	mem := store.NewMemory()
	seedPatchSubclouds(t, mem)
	deps := newPatchDeps(drivertest.NewSysinv(), drivertest.NewPatching(), drivertest.NewVim())
	deps.Gateway = mem
	eng := New(mem, deps, PatchExecutor{}, lock.NewLocal())

	upgradeEng := New(mem, deps, UpgradeExecutor{}, lock.NewLocal())

	_, err := eng.CreateStrategy(context.Background(), model.KindPatch, model.ApplyParallel, 2, true, nil, true)
	require.NoError(t, err)

	err = upgradeEng.ApplyStrategy(context.Background())
	assert.Error(t, err, "wrong-kind engine must reject applying a patch strategy")

	require.NoError(t, eng.ApplyStrategy(context.Background()))
	strategy, err := mem.GetStrategy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StrategyApplying, strategy.State)

	err = eng.ApplyStrategy(context.Background())
	assert.Error(t, err, "already-applying strategy must reject a second apply")
}

// TestAbortStrategyThenDeleteStrategyFlow covers the abort-request then
// delete-request transitions the public API exposes.
func TestAbortStrategyThenDeleteStrategyFlow(t *testing.T) {
	mem := store.NewMemory()
	seedPatchSubclouds(t, mem)
	deps := newPatchDeps(drivertest.NewSysinv(), drivertest.NewPatching(), drivertest.NewVim())
	deps.Gateway = mem
	eng := New(mem, deps, PatchExecutor{}, lock.NewLocal())

	_, err := eng.CreateStrategy(context.Background(), model.KindPatch, model.ApplyParallel, 2, true, nil, true)
	require.NoError(t, err)

	require.NoError(t, eng.ApplyStrategy(context.Background()))

	err = eng.DeleteStrategy(context.Background())
	assert.Error(t, err, "an applying strategy must reject delete")

	err = eng.AbortStrategy(context.Background())
	require.NoError(t, err)
	strategy, err := mem.GetStrategy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StrategyAbortRequested, strategy.State)

	require.NoError(t, mem.UpdateStrategyState(context.Background(), model.StrategyAborted))
	require.NoError(t, eng.DeleteStrategy(context.Background()))
	strategy, err = mem.GetStrategy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StrategyDeleting, strategy.State)
}
