// Package drivertest provides in-memory fakes for every capability
// interface in internal/driver, used by audit, orchestrator, and sync
// engine tests so they never need real HTTP.
package drivertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/riddopic/distcloud/internal/driver"
	"github.com/riddopic/distcloud/internal/model"
)

// Sysinv is a programmable fake SysinvClient.
type Sysinv struct {
	mu sync.Mutex

	ServiceGroups map[string][]driver.ServiceGroup
	Applications  map[string][]driver.Application
	KubeVersions  map[string][]driver.KubeVersion
	KubeUpgrades  map[string][]driver.KubeUpgrade
	Loads         map[string][]driver.Load
	Upgrades      map[string][]driver.Upgrade
	Systems       map[string]driver.System

	// Unreachable, when set for a region, makes every call for that
	// region return an error, simulating a dead endpoint.
	Unreachable map[string]bool
}

// NewSysinv returns an empty, ready-to-populate fake.
func NewSysinv() *Sysinv {
	return &Sysinv{
		ServiceGroups: map[string][]driver.ServiceGroup{},
		Applications:  map[string][]driver.Application{},
		KubeVersions:  map[string][]driver.KubeVersion{},
		KubeUpgrades:  map[string][]driver.KubeUpgrade{},
		Loads:         map[string][]driver.Load{},
		Upgrades:      map[string][]driver.Upgrade{},
		Systems:       map[string]driver.System{},
		Unreachable:   map[string]bool{},
	}
}

func (f *Sysinv) ListLoads(ctx context.Context, region string) ([]driver.Load, error) {
	if f.Unreachable[region] {
		return nil, errUnreachable
	}
	return f.Loads[region], nil
}

func (f *Sysinv) ListUpgrades(ctx context.Context, region string) ([]driver.Upgrade, error) {
	if f.Unreachable[region] {
		return nil, errUnreachable
	}
	return f.Upgrades[region], nil
}

func (f *Sysinv) GetSystem(ctx context.Context, region string) (driver.System, error) {
	if f.Unreachable[region] {
		return driver.System{}, errUnreachable
	}
	return f.Systems[region], nil
}

func (f *Sysinv) ListServiceGroups(ctx context.Context, region string) ([]driver.ServiceGroup, error) {
	if f.Unreachable[region] {
		return nil, errUnreachable
	}
	return f.ServiceGroups[region], nil
}

func (f *Sysinv) ListApplications(ctx context.Context, region string) ([]driver.Application, error) {
	if f.Unreachable[region] {
		return nil, errUnreachable
	}
	return f.Applications[region], nil
}

func (f *Sysinv) ListKubeVersions(ctx context.Context, region string) ([]driver.KubeVersion, error) {
	if f.Unreachable[region] {
		return nil, errUnreachable
	}
	return f.KubeVersions[region], nil
}

func (f *Sysinv) ListKubeUpgrades(ctx context.Context, region string) ([]driver.KubeUpgrade, error) {
	if f.Unreachable[region] {
		return nil, errUnreachable
	}
	return f.KubeUpgrades[region], nil
}

var errUnreachable = &unreachableErr{}

type unreachableErr struct{}

func (*unreachableErr) Error() string { return "fake: subcloud unreachable" }

// Patching is a programmable fake PatchingClient.
type Patching struct {
	mu sync.Mutex

	MasterPatches   []model.Patch
	SubcloudPatches map[string][]model.Patch
	Applied         map[string][]string
	Unreachable     map[string]bool
}

// NewPatching returns an empty, ready-to-populate fake.
func NewPatching() *Patching {
	return &Patching{
		SubcloudPatches: map[string][]model.Patch{},
		Applied:         map[string][]string{},
		Unreachable:     map[string]bool{},
	}
}

func (f *Patching) QueryPatches(ctx context.Context, region string, state *model.PatchState) ([]model.Patch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unreachable[region] {
		return nil, errUnreachable
	}

	var src []model.Patch
	if region == model.SystemControllerRegionName || region == model.SystemControllerRegion {
		src = f.MasterPatches
	} else {
		src = f.SubcloudPatches[region]
	}
	if state == nil {
		return src, nil
	}
	var out []model.Patch
	for _, p := range src {
		if p.State == *state {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *Patching) QueryHosts(ctx context.Context, region string) ([]string, error) { return nil, nil }
func (f *Patching) UploadPatch(ctx context.Context, region, patchID string) error    { return nil }

func (f *Patching) ApplyPatch(ctx context.Context, region, patchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Applied[region] = append(f.Applied[region], patchID)
	return nil
}

func (f *Patching) RemovePatch(ctx context.Context, region, patchID string) error { return nil }
func (f *Patching) CommitPatch(ctx context.Context, region, patchID string) error { return nil }
func (f *Patching) DeletePatch(ctx context.Context, region, patchID string) error { return nil }

// Vim is a programmable fake VimClient. By default CreateStrategy makes
// QueryStrategy report ready-to-apply and ApplyStrategy makes it report
// applied; SetSequence programs any other sequence.
type Vim struct {
	mu        sync.Mutex
	states    map[string][]driver.VimStrategyState
	positions map[string]int
	FailBuild map[string]bool
}

// NewVim returns a fake with no programmed sequences. QueryStrategy
// walks a region's sequence in order and then keeps returning its last
// state.
func NewVim() *Vim {
	return &Vim{
		states:    map[string][]driver.VimStrategyState{},
		positions: map[string]int{},
		FailBuild: map[string]bool{},
	}
}

// SetSequence configures the state sequence QueryStrategy will walk
// through for region.
func (f *Vim) SetSequence(region string, seq []driver.VimStrategyState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[region] = seq
	f.positions[region] = 0
}

func (f *Vim) CreateStrategy(ctx context.Context, region string, opts map[string]string) error {
	if f.FailBuild[region] {
		f.SetSequence(region, []driver.VimStrategyState{driver.VimBuildFailed})
		return nil
	}
	if _, ok := f.states[region]; !ok {
		f.SetSequence(region, []driver.VimStrategyState{driver.VimReadyToApply})
	}
	return nil
}

func (f *Vim) QueryStrategy(ctx context.Context, region string) (driver.VimStrategyState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seq := f.states[region]
	if len(seq) == 0 {
		return driver.VimReadyToApply, nil
	}
	pos := f.positions[region]
	if pos >= len(seq) {
		pos = len(seq) - 1
	}
	state := seq[pos]
	if pos < len(seq)-1 {
		f.positions[region] = pos + 1
	}
	return state, nil
}

func (f *Vim) ApplyStrategy(ctx context.Context, region string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[region] = []driver.VimStrategyState{driver.VimApplied}
	f.positions[region] = 0
	return nil
}

func (f *Vim) AbortStrategy(ctx context.Context, region string) error { return nil }
func (f *Vim) DeleteStrategy(ctx context.Context, region string) error { return nil }

// Fm is a programmable fake FmClient.
type Fm struct {
	Summaries map[string]driver.AlarmSummary
}

// NewFm returns an empty, ready-to-populate fake.
func NewFm() *Fm { return &Fm{Summaries: map[string]driver.AlarmSummary{}} }

func (f *Fm) AlarmSummary(ctx context.Context, region string) (driver.AlarmSummary, error) {
	return f.Summaries[region], nil
}

// Identity is a fake IdentityClient that always returns a long-lived
// token, so tests don't exercise renewal timing unless they want to.
type Identity struct{}

// NewIdentity returns an always-valid fake IdentityClient.
func NewIdentity() *Identity { return &Identity{} }

func (f *Identity) Endpoint(ctx context.Context, region string) (string, error) {
	return "http://" + region + ".example", nil
}

func (f *Identity) Token(ctx context.Context, region string, endpoint model.EndpointType) (driver.Token, error) {
	return driver.Token{AccessToken: "fake-token", Expiry: time.Now().Add(time.Hour)}, nil
}

// Firmware is a programmable fake FirmwareClient.
type Firmware struct {
	mu           sync.Mutex
	Fingerprints map[string][]string
	Applied      map[string][]string
	Unreachable  map[string]bool
}

// NewFirmware returns an empty, ready-to-populate fake.
func NewFirmware() *Firmware {
	return &Firmware{
		Fingerprints: map[string][]string{},
		Applied:      map[string][]string{},
		Unreachable:  map[string]bool{},
	}
}

func (f *Firmware) DeviceImageFingerprints(ctx context.Context, region string) ([]string, error) {
	if f.Unreachable[region] {
		return nil, errUnreachable
	}
	return f.Fingerprints[region], nil
}

func (f *Firmware) ApplyDeviceImages(ctx context.Context, region string, fingerprints []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Applied[region] = fingerprints
	f.Fingerprints[region] = fingerprints
	return nil
}

// KubeRootCA is a programmable fake KubeRootCAClient.
type KubeRootCA struct {
	mu              sync.Mutex
	Fingerprints    map[string]string
	HostsUpdated    map[string]string
	PodsRestarted   map[string]int
	Unreachable     map[string]bool
}

// NewKubeRootCA returns an empty, ready-to-populate fake.
func NewKubeRootCA() *KubeRootCA {
	return &KubeRootCA{
		Fingerprints:  map[string]string{},
		HostsUpdated:  map[string]string{},
		PodsRestarted: map[string]int{},
		Unreachable:   map[string]bool{},
	}
}

func (f *KubeRootCA) RootCAFingerprint(ctx context.Context, region string) (string, error) {
	if f.Unreachable[region] {
		return "", errUnreachable
	}
	return f.Fingerprints[region], nil
}

func (f *KubeRootCA) UpdateHostTrustBundles(ctx context.Context, region, fingerprint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.HostsUpdated[region] = fingerprint
	return nil
}

func (f *KubeRootCA) RestartPods(ctx context.Context, region string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PodsRestarted[region]++
	f.Fingerprints[region] = f.HostsUpdated[region]
	return nil
}

// IdentityResources is a programmable fake IdentityResourceClient. Items
// are keyed by region, then resourceType, then subcloud resource ID.
type IdentityResources struct {
	mu          sync.Mutex
	Items       map[string]map[string]map[string]driver.IdentityResource
	Unreachable map[string]bool
	nextID      int
}

// NewIdentityResources returns an empty, ready-to-populate fake.
func NewIdentityResources() *IdentityResources {
	return &IdentityResources{
		Items:       map[string]map[string]map[string]driver.IdentityResource{},
		Unreachable: map[string]bool{},
	}
}

// Seed inserts an item directly, for test setup.
func (f *IdentityResources) Seed(region, resourceType, id string, data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensure(region, resourceType)
	f.Items[region][resourceType][id] = driver.IdentityResource{ID: id, Data: data}
}

func (f *IdentityResources) ensure(region, resourceType string) {
	if f.Items[region] == nil {
		f.Items[region] = map[string]map[string]driver.IdentityResource{}
	}
	if f.Items[region][resourceType] == nil {
		f.Items[region][resourceType] = map[string]driver.IdentityResource{}
	}
}

func (f *IdentityResources) List(ctx context.Context, region, resourceType string) ([]driver.IdentityResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unreachable[region] {
		return nil, errUnreachable
	}
	var out []driver.IdentityResource
	for _, item := range f.Items[region][resourceType] {
		out = append(out, item)
	}
	return out, nil
}

func (f *IdentityResources) Create(ctx context.Context, region, resourceType string, data map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unreachable[region] {
		return "", errUnreachable
	}
	f.ensure(region, resourceType)
	f.nextID++
	id := fmt.Sprintf("sc-%d", f.nextID)
	f.Items[region][resourceType][id] = driver.IdentityResource{ID: id, Data: data}
	return id, nil
}

func (f *IdentityResources) Update(ctx context.Context, region, resourceType, subcloudResourceID string, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unreachable[region] {
		return errUnreachable
	}
	f.ensure(region, resourceType)
	f.Items[region][resourceType][subcloudResourceID] = driver.IdentityResource{ID: subcloudResourceID, Data: data}
	return nil
}

func (f *IdentityResources) Delete(ctx context.Context, region, resourceType, subcloudResourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unreachable[region] {
		return errUnreachable
	}
	delete(f.Items[region][resourceType], subcloudResourceID)
	return nil
}
