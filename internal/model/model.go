// Package model defines the entities of the control plane's data model:
// subclouds, groups, endpoint sync status, update strategies and their
// per-subcloud steps, and the orchestration-request / resource-mapping
// rows the sync engine drains.
package model

import "time"

// SystemControllerRegion is the logical name of the master region, used
// as the region key for the SystemController pseudo-subcloud step.
const SystemControllerRegion = "SystemController"

// SystemControllerRegionName is the actual region name of the master
// region, per the glossary.
const SystemControllerRegionName = "RegionOne"

// DefaultGroupID is the id of the undeletable "Default" subcloud group.
const DefaultGroupID = 1

// ManagementState is whether a subcloud is under active management.
type ManagementState string

const (
	ManagementManaged   ManagementState = "managed"
	ManagementUnmanaged ManagementState = "unmanaged"
)

// Availability is a subcloud's reachability state.
type Availability string

const (
	AvailabilityOnline  Availability = "online"
	AvailabilityOffline Availability = "offline"
)

// InitialSyncState tracks a subcloud's first reconciliation after it was
// added to the fleet.
type InitialSyncState string

const (
	InitialSyncRequested  InitialSyncState = "requested"
	InitialSyncInProgress InitialSyncState = "in-progress"
	InitialSyncCompleted  InitialSyncState = "completed"
	InitialSyncFailed     InitialSyncState = "failed"
)

// EndpointType categorizes a piece of state kept in sync between the
// master region and a subcloud.
type EndpointType string

const (
	EndpointPatching   EndpointType = "patching"
	EndpointLoad       EndpointType = "load"
	EndpointFirmware   EndpointType = "firmware"
	EndpointKubernetes EndpointType = "kubernetes"
	EndpointKubeRootCA EndpointType = "kube-rootca"
	EndpointIdentity   EndpointType = "identity"

	// Openstack-derived endpoint types appear/disappear with a subcloud's
	// openstack-installed flag.
	EndpointOpenstackCompute EndpointType = "openstack-compute"
	EndpointOpenstackNetwork EndpointType = "openstack-network"
	EndpointOpenstackVolume  EndpointType = "openstack-volume"
)

// OpenstackEndpointTypes lists the endpoint types toggled by the
// openstack-installed flag.
var OpenstackEndpointTypes = []EndpointType{
	EndpointOpenstackCompute,
	EndpointOpenstackNetwork,
	EndpointOpenstackVolume,
}

// SyncStatus is the classification of an endpoint's sync state.
type SyncStatus string

const (
	SyncInSync      SyncStatus = "in-sync"
	SyncOutOfSync   SyncStatus = "out-of-sync"
	SyncUnknown     SyncStatus = "unknown"
	SyncNotAvailable SyncStatus = "not-available"
)

// Subcloud is a managed edge cloud region.
type Subcloud struct {
	ID                int
	Name              string
	RegionName        string
	SoftwareVersion   string
	DeployStatus      string
	Management        ManagementState
	Availability      Availability
	AuditFailCount    int
	OpenstackInstalled bool
	GroupID           int
	InitialSyncState  InitialSyncState
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ApplyType is how a group/strategy rolls its members through stages.
type ApplyType string

const (
	ApplySerial   ApplyType = "serial"
	ApplyParallel ApplyType = "parallel"
)

// SubcloudGroup groups subclouds for apply-type/parallelism policy.
type SubcloudGroup struct {
	ID                  int
	Name                string
	UpdateApplyType     ApplyType
	MaxParallelSubclouds int
}

// SubcloudStatus is the per-(subcloud, endpoint) sync classification.
type SubcloudStatus struct {
	SubcloudID int
	Endpoint   EndpointType
	Status     SyncStatus
	UpdatedAt  time.Time
}

// StrategyKind is the software-lifecycle operation a strategy performs.
type StrategyKind string

const (
	KindPatch      StrategyKind = "patch"
	KindUpgrade    StrategyKind = "upgrade"
	KindFirmware   StrategyKind = "firmware"
	KindKubernetes StrategyKind = "kubernetes"
	KindKubeRootCA StrategyKind = "kube-rootca"
)

// StrategyState is the lifecycle state of the singleton strategy.
type StrategyState string

const (
	StrategyInitial       StrategyState = "initial"
	StrategyApplying      StrategyState = "applying"
	StrategyAbortRequested StrategyState = "abort-requested"
	StrategyAborting      StrategyState = "aborting"
	StrategyAborted       StrategyState = "aborted"
	StrategyComplete      StrategyState = "complete"
	StrategyFailed        StrategyState = "failed"
	StrategyDeleting      StrategyState = "deleting"
)

// IsTerminal reports whether s is a terminal state (complete, failed or
// aborted).
func (s StrategyState) IsTerminal() bool {
	return s == StrategyComplete || s == StrategyFailed || s == StrategyAborted
}

// SwUpdateStrategy is the (at most one) active strategy.
type SwUpdateStrategy struct {
	ID                  int
	Type                StrategyKind
	SubcloudApplyType   ApplyType
	MaxParallelSubclouds int
	StopOnFailure       bool
	State               StrategyState
	ExtraArgs           map[string]string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// StepState is a per-subcloud step's progress. The intermediate values
// are kind-specific (see orchestrator.StepExecutor); these four are
// universal terminal/initial states.
type StepState string

const (
	StepInitial  StepState = "initial"
	StepComplete StepState = "complete"
	StepFailed   StepState = "failed"
	StepAborted  StepState = "aborted"
)

// IsTerminal reports whether s is a terminal state.
func (s StepState) IsTerminal() bool {
	return s == StepComplete || s == StepFailed || s == StepAborted
}

// StrategyStep is one subcloud's (or the SystemController's) slice of a
// strategy. SubcloudID is nil for the SystemController step.
type StrategyStep struct {
	ID         int
	StrategyID int
	SubcloudID *int
	Region     string
	Stage      int
	State      StepState
	Details    string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// IsSystemController reports whether this is the SystemController step.
func (s *StrategyStep) IsSystemController() bool {
	return s.SubcloudID == nil
}

// OrchOperation is the kind of change an OrchRequest applies.
type OrchOperation string

const (
	OpCreate OrchOperation = "create"
	OpUpdate OrchOperation = "update"
	OpDelete OrchOperation = "delete"
)

// OrchRequestState is the lifecycle state of a queued reconciliation unit.
type OrchRequestState string

const (
	OrchQueued     OrchRequestState = "queued"
	OrchInProgress OrchRequestState = "in-progress"
	OrchCompleted  OrchRequestState = "completed"
	OrchFailed     OrchRequestState = "failed"
	OrchTimedOut   OrchRequestState = "timed-out"
	OrchAborted    OrchRequestState = "aborted"
)

// IsFailed reports whether s is a failed-family state that a sync pass
// still needs to account for when computing endpoint sync-status, but
// will not retry without external intervention.
func (s OrchRequestState) IsFailed() bool {
	return s == OrchFailed
}

// OrchRequest is a unit of reconciliation work for the sync engine.
type OrchRequest struct {
	ID               string
	SubcloudID       int
	Endpoint         EndpointType
	ResourceType     string
	SourceResourceID string
	Operation        OrchOperation
	State            OrchRequestState
	TryCount         int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// Resource is a master-side canonical resource.
type Resource struct {
	ID           string
	ResourceType string
	Data         map[string]any
}

// SubcloudResource maps a master Resource to its per-subcloud identifier.
type SubcloudResource struct {
	ResourceType       string
	ResourceID         string
	SubcloudID         int
	SubcloudResourceID string
	Managed            bool
}

// PatchState enumerates the full set of patch states observed on master
// and subclouds. The distilled spec only names a subset; the "Unknown"
// and "Partial-*" states are required to implement the fatal-on-Unknown
// rule in the patch step executor.
type PatchState string

const (
	PatchAvailable      PatchState = "Available"
	PatchApplied        PatchState = "Applied"
	PatchCommitted      PatchState = "Committed"
	PatchPartialApplied PatchState = "Partial-Applied"
	PatchPartialRemove  PatchState = "Partial-Remove"
	PatchUnknown        PatchState = "Unknown"
)

// Patch is a single software patch as tracked by the patching driver.
type Patch struct {
	ID        string
	SWVersion string
	State     PatchState
}
