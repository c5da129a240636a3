// Package store defines the typed accessor contract a relational
// persistence layer would satisfy (§1, §6: persistence is an external
// collaborator) and ships an in-memory reference implementation used by
// every engine's tests.
package store

import (
	"context"
	"time"

	"github.com/riddopic/distcloud/internal/model"
)

// Gateway is the full set of typed accessors the three engines need.
// A real deployment binds this to a SQL-backed implementation; this
// module only ships Memory, an in-process implementation.
type Gateway interface {
	// Subclouds

	GetSubcloud(ctx context.Context, id int) (*model.Subcloud, error)
	ListSubclouds(ctx context.Context) ([]*model.Subcloud, error)
	UpdateSubcloudAvailability(ctx context.Context, id int, avail *model.Availability, updateStateOnly bool, failCount int) error
	SetOpenstackInstalled(ctx context.Context, id int, installed bool) error
	SetInitialSyncState(ctx context.Context, id int, state model.InitialSyncState) error

	// Groups

	GetGroup(ctx context.Context, id int) (*model.SubcloudGroup, error)

	// Endpoint status

	GetEndpointStatus(ctx context.Context, subcloudID int, endpoint model.EndpointType) (*model.SubcloudStatus, error)
	ListEndpointStatus(ctx context.Context, subcloudID int) ([]*model.SubcloudStatus, error)
	// SetEndpointStatus is idempotent: a repeat of the same (subcloud,
	// endpoint, status) within EndpointStatusDebounce of the prior write
	// is a no-op and does not count as a store hit (§4.2, §8).
	SetEndpointStatus(ctx context.Context, subcloudID int, endpoint model.EndpointType, status model.SyncStatus) error
	UpdateSyncEndpointTypes(ctx context.Context, subcloudID int, endpoints []model.EndpointType, add bool) error

	// Strategies

	GetStrategy(ctx context.Context) (*model.SwUpdateStrategy, error)
	CreateStrategy(ctx context.Context, s *model.SwUpdateStrategy) error
	UpdateStrategyState(ctx context.Context, state model.StrategyState) error
	DeleteStrategy(ctx context.Context) error

	// Steps

	ListSteps(ctx context.Context) ([]*model.StrategyStep, error)
	CreateStep(ctx context.Context, step *model.StrategyStep) error
	UpdateStep(ctx context.Context, step *model.StrategyStep) error
	DeleteSteps(ctx context.Context) error

	// OrchRequests

	EnqueueOrchRequest(ctx context.Context, req *model.OrchRequest) error
	ListOrchRequests(ctx context.Context, subcloudID int, endpoint model.EndpointType) ([]*model.OrchRequest, error)
	UpdateOrchRequest(ctx context.Context, req *model.OrchRequest) error
	CompleteOrchRequest(ctx context.Context, id string) error

	// Resources

	ListResources(ctx context.Context, resourceType string) ([]*model.Resource, error)
	ListSubcloudResources(ctx context.Context, resourceType string, subcloudID int) ([]*model.SubcloudResource, error)
	UpsertSubcloudResource(ctx context.Context, m *model.SubcloudResource) error
}

// EndpointStatusDebounce is the window within which a repeated identical
// SetEndpointStatus write is suppressed. Named so it is easy to retune
// per the open question in SPEC_FULL.md §9.
const EndpointStatusDebounce = 3600 * time.Second
