package syncengine

import (
	"context"
	"reflect"

	"github.com/riddopic/distcloud/internal/driver"
	"github.com/riddopic/distcloud/internal/model"
)

// ResourceHandler is the registry entry a differential audit and a sync
// request drive to reconcile one resource type against one subcloud.
// This shape is named directly in SPEC_FULL.md §4.4/§9.
type ResourceHandler interface {
	// ResourceType is the registry key, e.g. "users".
	ResourceType() string

	// ListMaster returns the canonical master-side resources.
	ListMaster(ctx context.Context, gw masterLister) ([]model.Resource, error)

	// ListSubcloud returns the subcloud's current view of this resource type.
	ListSubcloud(ctx context.Context, region string) ([]driver.IdentityResource, error)

	// Same reports whether the subcloud resource already matches master.
	Same(master model.Resource, sc driver.IdentityResource) bool

	// MapExisting looks for a subcloud resource that corresponds to master
	// but has no recorded mapping yet (adoption), returning its id.
	MapExisting(master model.Resource, subcloudItems []driver.IdentityResource) (string, bool)

	// SyncCreate creates master on the subcloud, returning its new id.
	SyncCreate(ctx context.Context, region string, master model.Resource) (string, error)

	// SyncUpdate pushes master's data onto the subcloud id subcloudResourceID.
	SyncUpdate(ctx context.Context, region, subcloudResourceID string, master model.Resource) error

	// SyncDelete removes subcloudResourceID from the subcloud.
	SyncDelete(ctx context.Context, region, subcloudResourceID string) error

	// GetID returns master's own id.
	GetID(master model.Resource) string
}

// masterLister is the subset of Gateway a handler's ListMaster needs.
type masterLister interface {
	ListResources(ctx context.Context, resourceType string) ([]*model.Resource, error)
}

// Registry maps resource-type name to its handler.
type Registry struct {
	handlers map[string]ResourceHandler
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]ResourceHandler{}}
}

// Register adds h, keyed by h.ResourceType().
func (r *Registry) Register(h ResourceHandler) {
	r.handlers[h.ResourceType()] = h
}

// Get returns the handler for resourceType, if any.
func (r *Registry) Get(resourceType string) (ResourceHandler, bool) {
	h, ok := r.handlers[resourceType]
	return h, ok
}

// Types lists every registered resource type.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

// identityHandler is a reference ResourceHandler for an identity-endpoint
// resource type (users, projects, roles). The three types share this one
// implementation since the identity service's CRUD shape (§4.4) is
// identical across them; only the resource-type string and comparison
// fields differ.
type identityHandler struct {
	resourceType string
	client       driver.IdentityResourceClient
	fields       []string
}

// NewIdentityHandler builds a ResourceHandler for resourceType (one of
// "users", "projects", "roles"), comparing the given data fields to
// decide whether master and subcloud copies match.
func NewIdentityHandler(resourceType string, client driver.IdentityResourceClient, fields []string) ResourceHandler {
	return &identityHandler{resourceType: resourceType, client: client, fields: fields}
}

func (h *identityHandler) ResourceType() string { return h.resourceType }

func (h *identityHandler) ListMaster(ctx context.Context, gw masterLister) ([]model.Resource, error) {
	rows, err := gw.ListResources(ctx, h.resourceType)
	if err != nil {
		return nil, err
	}
	out := make([]model.Resource, len(rows))
	for i, r := range rows {
		out[i] = *r
	}
	return out, nil
}

func (h *identityHandler) ListSubcloud(ctx context.Context, region string) ([]driver.IdentityResource, error) {
	return h.client.List(ctx, region, h.resourceType)
}

func (h *identityHandler) Same(master model.Resource, sc driver.IdentityResource) bool {
	for _, f := range h.fields {
		if !reflect.DeepEqual(master.Data[f], sc.Data[f]) {
			return false
		}
	}
	return true
}

func (h *identityHandler) MapExisting(master model.Resource, subcloudItems []driver.IdentityResource) (string, bool) {
	nameField := "name"
	masterName, ok := master.Data[nameField]
	if !ok {
		return "", false
	}
	for _, item := range subcloudItems {
		if reflect.DeepEqual(item.Data[nameField], masterName) {
			return item.ID, true
		}
	}
	return "", false
}

func (h *identityHandler) SyncCreate(ctx context.Context, region string, master model.Resource) (string, error) {
	return h.client.Create(ctx, region, h.resourceType, master.Data)
}

func (h *identityHandler) SyncUpdate(ctx context.Context, region, subcloudResourceID string, master model.Resource) error {
	return h.client.Update(ctx, region, h.resourceType, subcloudResourceID, master.Data)
}

func (h *identityHandler) SyncDelete(ctx context.Context, region, subcloudResourceID string) error {
	return h.client.Delete(ctx, region, h.resourceType, subcloudResourceID)
}

func (h *identityHandler) GetID(master model.Resource) string { return master.ID }

// NewIdentityRegistry builds a Registry carrying the three reference
// identity resource-type handlers (§4.4).
func NewIdentityRegistry(client driver.IdentityResourceClient) *Registry {
	r := NewRegistry()
	r.Register(NewIdentityHandler("users", client, []string{"name", "enabled", "email"}))
	r.Register(NewIdentityHandler("projects", client, []string{"name", "enabled", "description"}))
	r.Register(NewIdentityHandler("roles", client, []string{"name"}))
	return r
}
