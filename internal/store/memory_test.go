package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riddopic/distcloud/internal/errors"
	"github.com/riddopic/distcloud/internal/model"
)

func TestSetEndpointStatusDebouncesIdenticalWrites(t *testing.T) {
	m := NewMemory()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.clock = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, m.SetEndpointStatus(ctx, 1, model.EndpointPatching, model.SyncOutOfSync))

	status, err := m.GetEndpointStatus(ctx, 1, model.EndpointPatching)
	require.NoError(t, err)
	firstWrite := status.UpdatedAt

	now = now.Add(30 * time.Minute)
	require.NoError(t, m.SetEndpointStatus(ctx, 1, model.EndpointPatching, model.SyncOutOfSync))

	status, err = m.GetEndpointStatus(ctx, 1, model.EndpointPatching)
	require.NoError(t, err)
	assert.Equal(t, firstWrite, status.UpdatedAt, "identical write inside the debounce window must not update the row")

	now = now.Add(EndpointStatusDebounce)
	require.NoError(t, m.SetEndpointStatus(ctx, 1, model.EndpointPatching, model.SyncOutOfSync))

	status, err = m.GetEndpointStatus(ctx, 1, model.EndpointPatching)
	require.NoError(t, err)
	assert.True(t, status.UpdatedAt.After(firstWrite), "identical write past the debounce window must update the row")
}

func TestSetEndpointStatusAlwaysWritesOnChange(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.SetEndpointStatus(ctx, 1, model.EndpointLoad, model.SyncOutOfSync))
	require.NoError(t, m.SetEndpointStatus(ctx, 1, model.EndpointLoad, model.SyncInSync))

	status, err := m.GetEndpointStatus(ctx, 1, model.EndpointLoad)
	require.NoError(t, err)
	assert.Equal(t, model.SyncInSync, status.Status)
}

func TestCompleteOrchRequestThenUpdateIsNotFound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	req := &model.OrchRequest{SubcloudID: 1, Endpoint: model.EndpointIdentity, ResourceType: "users", Operation: model.OpCreate, State: model.OrchQueued}
	require.NoError(t, m.EnqueueOrchRequest(ctx, req))
	require.NoError(t, m.CompleteOrchRequest(ctx, req.ID))

	err := m.UpdateOrchRequest(ctx, req)
	assert.ErrorIs(t, err, errors.OrchRequestNotFound)

	reqs, err := m.ListOrchRequests(ctx, 1, model.EndpointIdentity)
	require.NoError(t, err)
	assert.Empty(t, reqs, "completed requests are deleted from the active queue view")
}

func TestDefaultGroupSeeded(t *testing.T) {
	m := NewMemory()
	g, err := m.GetGroup(context.Background(), model.DefaultGroupID)
	require.NoError(t, err)
	assert.Equal(t, "Default", g.Name)
}

func TestUpsertSubcloudResourceIsKeyedPerResource(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.UpsertSubcloudResource(ctx, &model.SubcloudResource{ResourceType: "users", ResourceID: "u1", SubcloudID: 1, SubcloudResourceID: "sc-u1"}))
	require.NoError(t, m.UpsertSubcloudResource(ctx, &model.SubcloudResource{ResourceType: "users", ResourceID: "u2", SubcloudID: 1, SubcloudResourceID: "sc-u2"}))

	rows, err := m.ListSubcloudResources(ctx, "users", 1)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
