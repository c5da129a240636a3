// Package audit implements the periodic subcloud audit engine: it
// determines reachability and endpoint sync status for every managed
// subcloud and publishes the results through the store gateway (§4.2).
package audit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/riddopic/distcloud/internal/appconfig"
	"github.com/riddopic/distcloud/internal/driver"
	"github.com/riddopic/distcloud/internal/model"
	"github.com/riddopic/distcloud/internal/rpc"
	"github.com/riddopic/distcloud/internal/scheduler"
	"github.com/riddopic/distcloud/internal/store"
	"github.com/riddopic/distcloud/pkg/logging"
)

const component = "audit"

// requiredServiceGroups lists the service groups whose "inactive" state
// makes a subcloud unreachable, regardless of network connectivity.
var requiredServiceGroups = []string{
	"distributed-cloud-services",
	"controller-services",
	"directory-services",
	"cloud-services",
	"patching-services",
	"vim-services",
	"storage-services",
	"storage-monitoring-services",
	"web-services",
	"oam-services",
}

// Engine runs the periodic subcloud audit.
type Engine struct {
	gateway  store.Gateway
	sysinv   driver.SysinvClient
	patching driver.PatchingClient
	fm       driver.FmClient
	firmware driver.FirmwareClient
	rootca   driver.KubeRootCAClient
	pool     *scheduler.Pool
	cfg      appconfig.AuditConfig

	// Hub, if set, receives availability and endpoint-status transition
	// events. Nil is a valid zero value; no events are published.
	Hub *rpc.Hub

	tick int
}

// New builds an audit Engine wired to its collaborators.
func New(gw store.Gateway, sysinv driver.SysinvClient, patching driver.PatchingClient, fm driver.FmClient, firmware driver.FirmwareClient, rootca driver.KubeRootCAClient, cfg appconfig.AuditConfig) *Engine {
	return &Engine{
		gateway:  gw,
		sysinv:   sysinv,
		patching: patching,
		fm:       fm,
		firmware: firmware,
		rootca:   rootca,
		pool:     scheduler.New(cfg.PoolSize),
		cfg:      cfg,
	}
}

// masterSnapshot is the computable master-side state every subcloud's
// audit is compared against, gathered once per tick.
type masterSnapshot struct {
	patches           []model.Patch
	softwareVersion   string
	activeKubeVersion string
	firmwareFPs       []string
	rootCAFingerprint string
}

// RunOnce performs a single audit pass over every managed subcloud.
func (e *Engine) RunOnce(ctx context.Context) error {
	snap, err := e.snapshot(ctx)
	if err != nil {
		logging.Error(component, err, "failed to snapshot master state, skipping tick")
		return err
	}

	subclouds, err := e.gateway.ListSubclouds(ctx)
	if err != nil {
		return err
	}

	e.tick++

	err = scheduler.RunAll(ctx, e.pool, subclouds, func(ctx context.Context, sc *model.Subcloud) error {
		if sc.Management != model.ManagementManaged {
			return nil
		}
		e.auditSubcloud(ctx, snap, sc)
		return nil
	})
	return err
}

func (e *Engine) snapshot(ctx context.Context) (masterSnapshot, error) {
	region := model.SystemControllerRegionName

	patches, err := e.patching.QueryPatches(ctx, region, nil)
	if err != nil {
		return masterSnapshot{}, err
	}

	sys, err := e.sysinv.GetSystem(ctx, region)
	if err != nil {
		return masterSnapshot{}, err
	}

	kubeVersions, err := e.sysinv.ListKubeVersions(ctx, region)
	if err != nil {
		return masterSnapshot{}, err
	}

	var firmwareFPs []string
	if e.firmware != nil {
		firmwareFPs, _ = e.firmware.DeviceImageFingerprints(ctx, region)
	}

	var rootCA string
	if e.rootca != nil {
		rootCA, _ = e.rootca.RootCAFingerprint(ctx, region)
	}

	return masterSnapshot{
		patches:           patches,
		softwareVersion:   sys.SoftwareVersion,
		activeKubeVersion: activeKubeVersion(kubeVersions),
		firmwareFPs:       firmwareFPs,
		rootCAFingerprint: rootCA,
	}, nil
}

func (e *Engine) auditSubcloud(ctx context.Context, snap masterSnapshot, sc *model.Subcloud) {
	groups, err := e.sysinv.ListServiceGroups(ctx, sc.RegionName)
	reachable := err == nil && allRequiredActive(groups)

	e.updateAvailability(ctx, sc, reachable)

	if !reachable || sc.Availability != model.AvailabilityOnline {
		return
	}

	e.auditOpenstackInstalled(ctx, sc)

	if e.fm != nil {
		if _, err := e.fm.AlarmSummary(ctx, sc.RegionName); err != nil {
			logging.Warn(component, "alarm summary refresh failed for %s: %v", sc.RegionName, err)
		}
	}

	if e.dueThisTick(model.EndpointPatching) {
		e.auditPatches(ctx, snap, sc)
	}
	if e.dueThisTick(model.EndpointLoad) {
		e.auditLoad(ctx, snap, sc)
	}
	if e.dueThisTick(model.EndpointKubernetes) {
		e.auditKubernetes(ctx, snap, sc)
	}
	if e.dueThisTick(model.EndpointFirmware) {
		e.auditFirmware(ctx, snap, sc)
	}
	if e.dueThisTick(model.EndpointKubeRootCA) {
		e.auditKubeRootCA(ctx, snap, sc)
	}
}

func (e *Engine) dueThisTick(endpoint model.EndpointType) bool {
	cadence := e.cfg.CadenceTicks[string(endpoint)]
	if cadence <= 0 {
		cadence = 1
	}
	return e.tick%cadence == 0
}

func (e *Engine) updateAvailability(ctx context.Context, sc *model.Subcloud, reachable bool) {
	prev := sc.Availability

	if reachable {
		if prev == model.AvailabilityOffline {
			online := model.AvailabilityOnline
			if err := e.gateway.UpdateSubcloudAvailability(ctx, sc.ID, &online, false, 0); err != nil {
				logging.Error(component, err, "failed to mark %s online", sc.RegionName)
				return
			}
			sc.Availability = model.AvailabilityOnline
			sc.AuditFailCount = 0
			e.publishAvailability(sc, prev, model.AvailabilityOnline)
			return
		}
		// Already online: no transition, fail-count stays at 0.
		if sc.AuditFailCount != 0 {
			if err := e.gateway.UpdateSubcloudAvailability(ctx, sc.ID, nil, true, 0); err != nil {
				logging.Error(component, err, "failed to reset fail-count for %s", sc.RegionName)
			}
			sc.AuditFailCount = 0
		}
		return
	}

	failCount := sc.AuditFailCount + 1
	if prev == model.AvailabilityOnline && failCount >= e.cfg.MaxAuditFailCount {
		offline := model.AvailabilityOffline
		if err := e.gateway.UpdateSubcloudAvailability(ctx, sc.ID, &offline, false, failCount); err != nil {
			logging.Error(component, err, "failed to mark %s offline", sc.RegionName)
			return
		}
		sc.Availability = model.AvailabilityOffline
		sc.AuditFailCount = failCount
		e.publishAvailability(sc, prev, model.AvailabilityOffline)
		return
	}

	if err := e.gateway.UpdateSubcloudAvailability(ctx, sc.ID, nil, true, failCount); err != nil {
		logging.Error(component, err, "failed to record fail-count for %s", sc.RegionName)
		return
	}
	sc.AuditFailCount = failCount
}

func (e *Engine) auditOpenstackInstalled(ctx context.Context, sc *model.Subcloud) {
	apps, err := e.sysinv.ListApplications(ctx, sc.RegionName)
	if err != nil {
		logging.Warn(component, "application list failed for %s: %v", sc.RegionName, err)
		return
	}

	observed := false
	for _, a := range apps {
		if a.Name == "stx-openstack" && a.Active {
			observed = true
			break
		}
	}

	if observed == sc.OpenstackInstalled {
		return
	}

	if err := e.gateway.SetOpenstackInstalled(ctx, sc.ID, observed); err != nil {
		logging.Error(component, err, "failed to set openstack-installed for %s", sc.RegionName)
		return
	}
	if err := e.gateway.UpdateSyncEndpointTypes(ctx, sc.ID, model.OpenstackEndpointTypes, observed); err != nil {
		logging.Error(component, err, "failed to update openstack endpoint types for %s", sc.RegionName)
		return
	}
	sc.OpenstackInstalled = observed
}

func (e *Engine) auditPatches(ctx context.Context, snap masterSnapshot, sc *model.Subcloud) {
	masterSet := patchSet(snap.patches, sc.SoftwareVersion)

	scPatches, err := e.patching.QueryPatches(ctx, sc.RegionName, nil)
	if err != nil {
		logging.Warn(component, "patch query failed for %s: %v", sc.RegionName, err)
		return
	}
	subcloudSet := patchSet(scPatches, sc.SoftwareVersion)

	status := model.SyncInSync
	if !setsEqual(masterSet, subcloudSet) {
		status = model.SyncOutOfSync
	}
	e.publish(ctx, sc.ID, model.EndpointPatching, status)
}

func patchSet(patches []model.Patch, swVersion string) map[string]bool {
	relevant := map[model.PatchState]bool{model.PatchApplied: true, model.PatchCommitted: true}
	set := map[string]bool{}
	for _, p := range patches {
		if p.SWVersion != swVersion {
			continue
		}
		if relevant[p.State] {
			set[p.ID] = true
		}
	}
	return set
}

func setsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func (e *Engine) auditLoad(ctx context.Context, snap masterSnapshot, sc *model.Subcloud) {
	sys, err := e.sysinv.GetSystem(ctx, sc.RegionName)
	if err != nil {
		logging.Warn(component, "system query failed for %s: %v", sc.RegionName, err)
		return
	}

	upgrades, err := e.sysinv.ListUpgrades(ctx, sc.RegionName)
	if err != nil {
		logging.Warn(component, "upgrade query failed for %s: %v", sc.RegionName, err)
		return
	}
	inProgress := false
	for _, u := range upgrades {
		if u.State == "in-progress" {
			inProgress = true
			break
		}
	}

	status := model.SyncOutOfSync
	if sys.SoftwareVersion == snap.softwareVersion && !inProgress {
		status = model.SyncInSync
	}
	e.publish(ctx, sc.ID, model.EndpointLoad, status)
}

func (e *Engine) auditKubernetes(ctx context.Context, snap masterSnapshot, sc *model.Subcloud) {
	versions, err := e.sysinv.ListKubeVersions(ctx, sc.RegionName)
	if err != nil {
		logging.Warn(component, "kube version query failed for %s: %v", sc.RegionName, err)
		return
	}

	active := activeKubeVersion(versions)
	status := model.SyncOutOfSync
	if active != "" && snap.activeKubeVersion != "" && kubeVersionGTE(active, snap.activeKubeVersion) {
		status = model.SyncInSync
	}
	e.publish(ctx, sc.ID, model.EndpointKubernetes, status)
}

func activeKubeVersion(versions []driver.KubeVersion) string {
	for _, v := range versions {
		if v.Active {
			return v.Version
		}
	}
	return ""
}

// kubeVersionGTE compares a >= b on major.minor only, per §4.2/§4.3.
func kubeVersionGTE(a, b string) bool {
	am, an := majorMinor(a)
	bm, bn := majorMinor(b)
	if am != bm {
		return am > bm
	}
	return an >= bn
}

func majorMinor(v string) (int, int) {
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

func (e *Engine) auditFirmware(ctx context.Context, snap masterSnapshot, sc *model.Subcloud) {
	if e.firmware == nil {
		return
	}
	fps, err := e.firmware.DeviceImageFingerprints(ctx, sc.RegionName)
	if err != nil {
		logging.Warn(component, "firmware fingerprint query failed for %s: %v", sc.RegionName, err)
		return
	}

	status := model.SyncInSync
	if !setsEqual(toSet(fps), toSet(snap.firmwareFPs)) {
		status = model.SyncOutOfSync
	}
	e.publish(ctx, sc.ID, model.EndpointFirmware, status)
}

func (e *Engine) auditKubeRootCA(ctx context.Context, snap masterSnapshot, sc *model.Subcloud) {
	if e.rootca == nil {
		return
	}
	fp, err := e.rootca.RootCAFingerprint(ctx, sc.RegionName)
	if err != nil {
		logging.Warn(component, "kube-rootca fingerprint query failed for %s: %v", sc.RegionName, err)
		return
	}

	status := model.SyncOutOfSync
	if fp != "" && fp == snap.rootCAFingerprint {
		status = model.SyncInSync
	}
	e.publish(ctx, sc.ID, model.EndpointKubeRootCA, status)
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}

func (e *Engine) publish(ctx context.Context, subcloudID int, endpoint model.EndpointType, status model.SyncStatus) {
	if err := e.gateway.SetEndpointStatus(ctx, subcloudID, endpoint, status); err != nil {
		logging.Error(component, err, "failed to publish %s status for subcloud %d", endpoint, subcloudID)
		return
	}
	if e.Hub != nil {
		e.Hub.Publish(rpc.Event{
			Kind:       rpc.EventEndpointStatusChange,
			SubcloudID: subcloudID,
			Endpoint:   string(endpoint),
			New:        string(status),
			Timestamp:  time.Now(),
		})
	}
}

func (e *Engine) publishAvailability(sc *model.Subcloud, oldAvail, newAvail model.Availability) {
	if e.Hub == nil {
		return
	}
	e.Hub.Publish(rpc.Event{
		Kind:       rpc.EventAvailabilityTransition,
		SubcloudID: sc.ID,
		Region:     sc.RegionName,
		Old:        string(oldAvail),
		New:        string(newAvail),
		Timestamp:  time.Now(),
	})
}

func allRequiredActive(groups []driver.ServiceGroup) bool {
	state := make(map[string]string, len(groups))
	for _, g := range groups {
		state[g.Name] = g.State
	}
	for _, name := range requiredServiceGroups {
		if s, ok := state[name]; ok && s == "inactive" {
			return false
		}
	}
	return true
}
