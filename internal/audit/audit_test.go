package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riddopic/distcloud/internal/appconfig"
	"github.com/riddopic/distcloud/internal/driver"
	"github.com/riddopic/distcloud/internal/driver/drivertest"
	"github.com/riddopic/distcloud/internal/model"
	"github.com/riddopic/distcloud/internal/store"
)

func allActiveGroups() []driver.ServiceGroup {
	var groups []driver.ServiceGroup
	for _, name := range requiredServiceGroups {
		groups = append(groups, driver.ServiceGroup{Name: name, State: "active"})
	}
	return groups
}

func newTestEngine(mem *store.Memory, sysinv *drivertest.Sysinv, patching *drivertest.Patching) *Engine {
	cfg := appconfig.Default().Audit
	return New(mem, sysinv, patching, drivertest.NewFm(), drivertest.NewFirmware(), drivertest.NewKubeRootCA(), cfg)
}

func TestAuditMarksUnreachableSubcloudOfflineAfterMaxFailCount(t *testing.T) {
	mem := store.NewMemory()
	sc := &model.Subcloud{ID: 1, Name: "sc1", RegionName: "sc1", Management: model.ManagementManaged, Availability: model.AvailabilityOnline}
	mem.SeedSubcloud(sc)

	sysinv := drivertest.NewSysinv()
	sysinv.Systems[model.SystemControllerRegionName] = driver.System{SoftwareVersion: "22.12"}
	sysinv.Unreachable["sc1"] = true

	patching := drivertest.NewPatching()

	e := newTestEngine(mem, sysinv, patching)

	ctx := context.Background()
	require.NoError(t, e.RunOnce(ctx))
	got, err := mem.GetSubcloud(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.AvailabilityOnline, got.Availability, "fail count 1 must not yet flip availability")
	assert.Equal(t, 1, got.AuditFailCount)

	require.NoError(t, e.RunOnce(ctx))
	got, err = mem.GetSubcloud(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.AvailabilityOffline, got.Availability, "fail count reaching MaxAuditFailCount must flip to offline")
}

func TestAuditTransitionsOfflineToOnlineImmediately(t *testing.T) {
	mem := store.NewMemory()
	sc := &model.Subcloud{ID: 1, Name: "sc1", RegionName: "sc1", Management: model.ManagementManaged, Availability: model.AvailabilityOffline, AuditFailCount: 5}
	mem.SeedSubcloud(sc)

	sysinv := drivertest.NewSysinv()
	sysinv.Systems[model.SystemControllerRegionName] = driver.System{SoftwareVersion: "22.12"}
	sysinv.ServiceGroups["sc1"] = allActiveGroups()
	sysinv.Applications["sc1"] = nil
	sysinv.Systems["sc1"] = driver.System{SoftwareVersion: "22.12"}

	patching := drivertest.NewPatching()

	e := newTestEngine(mem, sysinv, patching)

	require.NoError(t, e.RunOnce(context.Background()))
	got, err := mem.GetSubcloud(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.AvailabilityOnline, got.Availability)
	assert.Equal(t, 0, got.AuditFailCount)
}

func TestAuditPatchesOutOfSyncOnMismatch(t *testing.T) {
	mem := store.NewMemory()
	sc := &model.Subcloud{ID: 1, Name: "sc1", RegionName: "sc1", Management: model.ManagementManaged, Availability: model.AvailabilityOnline, SoftwareVersion: "22.12"}
	mem.SeedSubcloud(sc)

	sysinv := drivertest.NewSysinv()
	sysinv.ServiceGroups["sc1"] = allActiveGroups()
	sysinv.Systems[model.SystemControllerRegionName] = driver.System{SoftwareVersion: "22.12"}
	sysinv.Systems["sc1"] = driver.System{SoftwareVersion: "22.12"}

	patching := drivertest.NewPatching()
	patching.MasterPatches = []model.Patch{
		{ID: "PATCH_1", SWVersion: "22.12", State: model.PatchApplied},
	}
	patching.SubcloudPatches["sc1"] = nil // subcloud missing the patch: out of sync

	e := newTestEngine(mem, sysinv, patching)

	require.NoError(t, e.RunOnce(context.Background()))
	status, err := mem.GetEndpointStatus(context.Background(), 1, model.EndpointPatching)
	require.NoError(t, err)
	assert.Equal(t, model.SyncOutOfSync, status.Status)
}

func TestAuditPatchesIgnoresWrongSWVersion(t *testing.T) {
	mem := store.NewMemory()
	sc := &model.Subcloud{ID: 1, Name: "sc1", RegionName: "sc1", Management: model.ManagementManaged, Availability: model.AvailabilityOnline, SoftwareVersion: "22.12"}
	mem.SeedSubcloud(sc)

	sysinv := drivertest.NewSysinv()
	sysinv.ServiceGroups["sc1"] = allActiveGroups()
	sysinv.Systems[model.SystemControllerRegionName] = driver.System{SoftwareVersion: "22.12"}
	sysinv.Systems["sc1"] = driver.System{SoftwareVersion: "22.12"}

	patching := drivertest.NewPatching()
	patching.MasterPatches = []model.Patch{
		{ID: "PATCH_OLD", SWVersion: "21.05", State: model.PatchApplied}, // different sw_version: ignored
	}
	patching.SubcloudPatches["sc1"] = nil

	e := newTestEngine(mem, sysinv, patching)

	require.NoError(t, e.RunOnce(context.Background()))
	status, err := mem.GetEndpointStatus(context.Background(), 1, model.EndpointPatching)
	require.NoError(t, err)
	assert.Equal(t, model.SyncInSync, status.Status)
}

func TestKubeVersionGTEComparesMajorMinorOnly(t *testing.T) {
	assert.True(t, kubeVersionGTE("v1.24.3", "v1.24.9"))
	assert.True(t, kubeVersionGTE("v1.25.0", "v1.24.9"))
	assert.False(t, kubeVersionGTE("v1.23.9", "v1.24.0"))
}
