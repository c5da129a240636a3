package syncengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riddopic/distcloud/internal/appconfig"
	"github.com/riddopic/distcloud/internal/driver/drivertest"
	derrors "github.com/riddopic/distcloud/internal/errors"
	"github.com/riddopic/distcloud/internal/lock"
	"github.com/riddopic/distcloud/internal/model"
	"github.com/riddopic/distcloud/internal/store"
)

func newTestSubcloud(id int, region string) *model.Subcloud {
	return &model.Subcloud{
		ID:               id,
		Name:             region,
		RegionName:       region,
		Management:       model.ManagementManaged,
		Availability:     model.AvailabilityOnline,
		InitialSyncState: model.InitialSyncCompleted,
	}
}

func TestSyncPassPublishesOutOfSyncWhileRequestsPending(t *testing.T) {
	mem := store.NewMemory()
	sc := newTestSubcloud(1, "sc1")
	mem.SeedSubcloud(sc)

	client := drivertest.NewIdentityResources()
	reg := NewIdentityRegistry(client)
	cfg := appconfig.SyncConfig{MaxRetry: 3, AuditInterval: time.Hour}
	e := New(mem, reg, lock.NewLocal(), cfg)

	ctx := context.Background()
	require.NoError(t, mem.EnqueueOrchRequest(ctx, &model.OrchRequest{
		SubcloudID: 1, Endpoint: model.EndpointIdentity, ResourceType: "users",
		SourceResourceID: "u1", Operation: model.OpCreate, State: model.OrchQueued,
	}))
	mem.SeedResource(&model.Resource{ID: "u1", ResourceType: "users", Data: map[string]any{"name": "alice", "enabled": true, "email": "a@x.com"}})

	key := workKey{subcloudID: 1, endpoint: string(model.EndpointIdentity)}
	require.NoError(t, e.syncPass(ctx, key))

	status, err := mem.GetEndpointStatus(ctx, 1, model.EndpointIdentity)
	require.NoError(t, err)
	assert.Equal(t, model.SyncOutOfSync, status.Status, "status is snapshotted at the start of the pass, before the request completes")

	// A second pass sees no remaining non-failed requests and reports in-sync.
	require.NoError(t, e.syncPass(ctx, key))
	status, err = mem.GetEndpointStatus(ctx, 1, model.EndpointIdentity)
	require.NoError(t, err)
	assert.Equal(t, model.SyncInSync, status.Status)

	rows, err := mem.ListSubcloudResources(ctx, "users", 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Managed)
}

func TestSyncPassDefersWhenSubcloudDisabled(t *testing.T) {
	mem := store.NewMemory()
	sc := newTestSubcloud(1, "sc1")
	sc.Management = model.ManagementUnmanaged
	mem.SeedSubcloud(sc)

	client := drivertest.NewIdentityResources()
	reg := NewIdentityRegistry(client)
	cfg := appconfig.SyncConfig{MaxRetry: 3, AuditInterval: time.Hour}
	e := New(mem, reg, lock.NewLocal(), cfg)

	ctx := context.Background()
	require.NoError(t, mem.EnqueueOrchRequest(ctx, &model.OrchRequest{
		SubcloudID: 1, Endpoint: model.EndpointIdentity, ResourceType: "users",
		SourceResourceID: "u1", Operation: model.OpCreate, State: model.OrchQueued,
	}))

	key := workKey{subcloudID: 1, endpoint: string(model.EndpointIdentity)}
	require.NoError(t, e.syncPass(ctx, key))

	reqs, err := mem.ListOrchRequests(ctx, 1, model.EndpointIdentity)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, model.OrchQueued, reqs[0].State, "an unmanaged subcloud's requests must not be processed")
}

// timeoutIdentityResources fails every Create with SyncRequestTimeout.
type timeoutIdentityResources struct{ *drivertest.IdentityResources }

func (timeoutIdentityResources) Create(ctx context.Context, region, resourceType string, data map[string]any) (string, error) {
	return "", derrors.SyncRequestTimeout
}

func TestProcessRequestExhaustsRetriesAsEndpointNotReachable(t *testing.T) {
	mem := store.NewMemory()
	sc := newTestSubcloud(1, "sc1")
	mem.SeedSubcloud(sc)

	client := timeoutIdentityResources{drivertest.NewIdentityResources()} // every Create call fails -> classified as timeout
	reg := NewIdentityRegistry(client)
	cfg := appconfig.SyncConfig{MaxRetry: 3, AuditInterval: time.Hour}
	e := New(mem, reg, lock.NewLocal(), cfg)

	ctx := context.Background()
	mem.SeedResource(&model.Resource{ID: "u1", ResourceType: "users", Data: map[string]any{"name": "alice"}})
	req := &model.OrchRequest{SubcloudID: 1, Endpoint: model.EndpointIdentity, ResourceType: "users", SourceResourceID: "u1", Operation: model.OpCreate, State: model.OrchQueued}
	require.NoError(t, mem.EnqueueOrchRequest(ctx, req))

	err := e.processRequest(ctx, sc, req)
	assert.ErrorIs(t, err, derrors.EndpointNotReachable)
	assert.Equal(t, 3, req.TryCount)
}

func TestDifferentialAuditSchedulesCreateForMissingResource(t *testing.T) {
	mem := store.NewMemory()
	sc := newTestSubcloud(1, "sc1")
	mem.SeedSubcloud(sc)

	client := drivertest.NewIdentityResources()
	reg := NewIdentityRegistry(client)
	cfg := appconfig.SyncConfig{MaxRetry: 3, AuditInterval: time.Hour}
	e := New(mem, reg, lock.NewLocal(), cfg)

	ctx := context.Background()
	mem.SeedResource(&model.Resource{ID: "u1", ResourceType: "users", Data: map[string]any{"name": "alice", "enabled": true, "email": "a@x.com"}})

	key := workKey{subcloudID: 1, endpoint: string(model.EndpointIdentity)}
	e.differentialAudit(ctx, key, "sc1")

	reqs, err := mem.ListOrchRequests(ctx, 1, model.EndpointIdentity)
	require.NoError(t, err)
	var found bool
	for _, r := range reqs {
		if r.ResourceType == "users" && r.SourceResourceID == "u1" && r.Operation == model.OpCreate {
			found = true
		}
	}
	assert.True(t, found, "a master resource absent from the subcloud mapping must be scheduled for create")
}
