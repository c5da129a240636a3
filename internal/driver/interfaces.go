// Package driver defines the capability interfaces the orchestrator,
// audit, and sync engines use to talk to external services, plus an
// HTTP-backed reference implementation of each. Implementations are
// swappable for testing — every engine in this module depends on the
// interfaces below, never on the HTTP types.
package driver

import (
	"context"
	"time"

	"github.com/riddopic/distcloud/internal/model"
)

// ServiceGroup is a subcloud service-group's observed state, used to
// compute reachability (§4.2).
type ServiceGroup struct {
	Name  string
	State string // e.g. "active", "inactive"
}

// Application is an installed subcloud application (e.g. stx-openstack).
type Application struct {
	Name   string
	Active bool
}

// KubeVersion is a single Kubernetes control-plane version entry.
type KubeVersion struct {
	Version string
	Active  bool
	State   string
}

// KubeUpgrade is an in-progress or completed Kubernetes upgrade record.
type KubeUpgrade struct {
	FromVersion string
	ToVersion   string
	State       string
}

// Load is a software load (base image) known to Sysinv.
type Load struct {
	SWVersion string
	State     string
}

// Upgrade is an in-progress software upgrade record.
type Upgrade struct {
	State string
}

// System is the subcloud's own system record.
type System struct {
	SoftwareVersion string
}

// SysinvClient abstracts the platform inventory service.
type SysinvClient interface {
	ListLoads(ctx context.Context, region string) ([]Load, error)
	ListUpgrades(ctx context.Context, region string) ([]Upgrade, error)
	GetSystem(ctx context.Context, region string) (System, error)
	ListServiceGroups(ctx context.Context, region string) ([]ServiceGroup, error)
	ListApplications(ctx context.Context, region string) ([]Application, error)
	ListKubeVersions(ctx context.Context, region string) ([]KubeVersion, error)
	ListKubeUpgrades(ctx context.Context, region string) ([]KubeUpgrade, error)
}

// PatchingClient abstracts the patching service.
type PatchingClient interface {
	QueryPatches(ctx context.Context, region string, state *model.PatchState) ([]model.Patch, error)
	QueryHosts(ctx context.Context, region string) ([]string, error)
	UploadPatch(ctx context.Context, region, patchID string) error
	ApplyPatch(ctx context.Context, region, patchID string) error
	RemovePatch(ctx context.Context, region, patchID string) error
	CommitPatch(ctx context.Context, region, patchID string) error
	DeletePatch(ctx context.Context, region, patchID string) error
}

// VimStrategyState is the lifecycle state of a VIM update strategy.
type VimStrategyState string

const (
	VimBuilding      VimStrategyState = "building"
	VimReadyToApply  VimStrategyState = "ready-to-apply"
	VimBuildFailed   VimStrategyState = "build-failed"
	VimApplying      VimStrategyState = "applying"
	VimApplied       VimStrategyState = "applied"
	VimApplyFailed   VimStrategyState = "apply-failed"
	VimAborting      VimStrategyState = "aborting"
	VimAborted       VimStrategyState = "aborted"
)

// VimClient abstracts the VIM orchestration service used to roll out
// patch, upgrade, kubernetes, and firmware changes on a subcloud's hosts.
type VimClient interface {
	CreateStrategy(ctx context.Context, region string, opts map[string]string) error
	QueryStrategy(ctx context.Context, region string) (VimStrategyState, error)
	ApplyStrategy(ctx context.Context, region string) error
	AbortStrategy(ctx context.Context, region string) error
	DeleteStrategy(ctx context.Context, region string) error
}

// AlarmSummary is the fault-management alarm count for a region.
type AlarmSummary struct {
	Critical int
	Major    int
	Minor    int
	Warning  int
}

// FmClient abstracts the fault-management service.
type FmClient interface {
	AlarmSummary(ctx context.Context, region string) (AlarmSummary, error)
}

// FirmwareClient abstracts the device-image inventory used by the
// firmware endpoint audit and the firmware step executor.
type FirmwareClient interface {
	// DeviceImageFingerprints returns one fingerprint per applied device
	// image on region, in an order the audit treats as a set.
	DeviceImageFingerprints(ctx context.Context, region string) ([]string, error)

	// ApplyDeviceImages pushes the master's device image set to region's
	// hosts. Used by the firmware step executor's host-update state.
	ApplyDeviceImages(ctx context.Context, region string, fingerprints []string) error
}

// KubeRootCAClient abstracts the root CA / trust-bundle state used by
// the kube-rootca endpoint audit and the kube-rootca step executor.
type KubeRootCAClient interface {
	// RootCAFingerprint returns the SHA-256 fingerprint of the root CA
	// region's hosts currently trust.
	RootCAFingerprint(ctx context.Context, region string) (string, error)

	// UpdateHostTrustBundles installs the given CA fingerprint as trusted
	// on region's hosts, ahead of the pod-restart phase.
	UpdateHostTrustBundles(ctx context.Context, region, fingerprint string) error

	// RestartPods recycles the pods that must pick up the newly trusted
	// CA, completing a kube-rootca rollout.
	RestartPods(ctx context.Context, region string) error
}

// Token is a cached bearer credential for a subcloud endpoint.
type Token struct {
	AccessToken string
	Expiry      time.Time
}

// IdentityClient resolves per-subcloud admin endpoints and manages
// tokens, including near-expiry pre-renewal (§4.1).
type IdentityClient interface {
	// Endpoint returns the admin endpoint URL for region.
	Endpoint(ctx context.Context, region string) (string, error)

	// Token returns a valid bearer token for (region, endpoint),
	// transparently renewing it if it is absent or near expiry.
	Token(ctx context.Context, region string, endpoint model.EndpointType) (Token, error)
}
