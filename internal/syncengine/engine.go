// Package syncengine keeps per-(subcloud, endpoint-type) resources
// reconciled with the master region by draining an OrchRequest queue
// and running a periodic differential audit (§4.4).
package syncengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/riddopic/distcloud/internal/appconfig"
	"github.com/riddopic/distcloud/internal/driver"
	derrors "github.com/riddopic/distcloud/internal/errors"
	"github.com/riddopic/distcloud/internal/lock"
	"github.com/riddopic/distcloud/internal/model"
	"github.com/riddopic/distcloud/internal/rpc"
	"github.com/riddopic/distcloud/internal/store"
	"github.com/riddopic/distcloud/pkg/logging"
)

const component = "syncengine"

// Engine owns the worker set and the shared master-resource cache.
type Engine struct {
	gateway   store.Gateway
	registry  *Registry
	auditLock lock.Locker
	cfg       appconfig.SyncConfig

	// Hub, if set, receives endpoint-status transition events. Nil is a
	// valid zero value; no events are published.
	Hub *rpc.Hub

	mu      sync.Mutex
	workers map[workKey]*worker

	cacheMu sync.Mutex
	cache   map[string][]model.Resource
}

// New builds a sync Engine. auditLock guards the master-resource cache;
// pass lock.NewLocal() for a single-process deployment or a
// lock.NewDistributed(...) valkey lock for a multi-process one.
func New(gw store.Gateway, registry *Registry, auditLock lock.Locker, cfg appconfig.SyncConfig) *Engine {
	return &Engine{
		gateway:   gw,
		registry:  registry,
		auditLock: auditLock,
		cfg:       cfg,
		workers:   map[workKey]*worker{},
		cache:     map[string][]model.Resource{},
	}
}

// EnsureWorker starts a worker for (subcloudID, endpoint) if the
// subcloud is eligible (managed, initial sync completed) and none
// exists yet. It is a no-op otherwise.
func (e *Engine) EnsureWorker(ctx context.Context, sc *model.Subcloud, endpoint model.EndpointType) {
	if sc.Management != model.ManagementManaged || sc.InitialSyncState != model.InitialSyncCompleted {
		return
	}

	key := workKey{subcloudID: sc.ID, endpoint: string(endpoint)}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.workers[key]; ok {
		return
	}

	w := &worker{
		key:    key,
		region: sc.RegionName,
		queue:  newTriggerQueue(),
		engine: e,
	}
	e.workers[key] = w
	go w.run(ctx)
}

// TeardownWorker stops and removes the worker for (subcloudID, endpoint).
// Workers are stopped only through this method; removing a (subcloud,
// endpoint) status row does not stop its worker.
func (e *Engine) TeardownWorker(subcloudID int, endpoint model.EndpointType) {
	key := workKey{subcloudID: subcloudID, endpoint: string(endpoint)}

	e.mu.Lock()
	w, ok := e.workers[key]
	if ok {
		delete(e.workers, key)
	}
	e.mu.Unlock()

	if ok {
		w.queue.shutdown()
	}
}

// Trigger schedules a sync pass for (subcloudID, endpoint), deduplicated
// against any pass already queued for that key; a trigger that arrives
// while a pass is in flight schedules one more pass after it.
func (e *Engine) Trigger(subcloudID int, endpoint model.EndpointType) {
	key := workKey{subcloudID: subcloudID, endpoint: string(endpoint)}
	e.mu.Lock()
	w, ok := e.workers[key]
	e.mu.Unlock()
	if ok {
		w.queue.add(key)
	}
}

// cachedMaster returns resourceType's master resources, populating the
// cache under AuditLock on a miss.
func (e *Engine) cachedMaster(ctx context.Context, h ResourceHandler) ([]model.Resource, error) {
	e.cacheMu.Lock()
	if cached, ok := e.cache[h.ResourceType()]; ok {
		e.cacheMu.Unlock()
		return cached, nil
	}
	e.cacheMu.Unlock()

	if err := e.auditLock.Lock(ctx); err != nil {
		return nil, err
	}
	defer e.auditLock.Unlock()

	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if cached, ok := e.cache[h.ResourceType()]; ok {
		return cached, nil
	}

	master, err := h.ListMaster(ctx, e.gateway)
	if err != nil {
		return nil, err
	}
	e.cache[h.ResourceType()] = master
	return master, nil
}

// postAudit clears the master-resource cache under AuditLock, matching
// the source's PostAudit reset (§4.4).
func (e *Engine) postAudit(ctx context.Context) {
	if err := e.auditLock.Lock(ctx); err != nil {
		logging.Warn(component, "postAudit failed to acquire lock: %v", err)
		return
	}
	defer e.auditLock.Unlock()
	e.cache = map[string][]model.Resource{}
}

// worker drains one (subcloud, endpoint) target's triggers: every
// trigger, whether from Trigger or from the AuditInterval ticker, runs a
// sync pass followed by a differential audit.
type worker struct {
	key    workKey
	region string
	queue  *triggerQueue
	engine *Engine
}

func (w *worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.engine.cfg.AuditInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.queue.add(w.key)
			}
		}
	}()

	for {
		key, ok := w.queue.get(ctx)
		if !ok {
			return
		}
		w.runPass(ctx)
		w.queue.done(key)
	}
}

func (w *worker) runPass(ctx context.Context) {
	if err := w.engine.syncPass(ctx, w.key); err != nil {
		logging.Error(component, err, "sync pass failed for subcloud %d endpoint %s", w.key.subcloudID, w.key.endpoint)
	}
	w.engine.differentialAudit(ctx, w.key, w.region)
}

// syncPass implements §4.4's "Sync pass" algorithm for one target.
func (e *Engine) syncPass(ctx context.Context, key workKey) error {
	endpoint := model.EndpointType(key.endpoint)

	reqs, err := e.gateway.ListOrchRequests(ctx, key.subcloudID, endpoint)
	if err != nil {
		return err
	}

	anyNonFailed := false
	for _, r := range reqs {
		if !r.State.IsFailed() {
			anyNonFailed = true
			break
		}
	}
	status := model.SyncInSync
	if anyNonFailed {
		status = model.SyncOutOfSync
	}
	if err := e.gateway.SetEndpointStatus(ctx, key.subcloudID, endpoint, status); err != nil {
		logging.Warn(component, "failed to publish sync status: %v", err)
	} else if e.Hub != nil {
		e.Hub.Publish(rpc.Event{
			Kind:       rpc.EventEndpointStatusChange,
			SubcloudID: key.subcloudID,
			Endpoint:   string(endpoint),
			New:        string(status),
			Timestamp:  time.Now(),
		})
	}

	sc, err := e.gateway.GetSubcloud(ctx, key.subcloudID)
	if err != nil {
		return err
	}
	if sc.Management != model.ManagementManaged || sc.Availability != model.AvailabilityOnline || sc.InitialSyncState != model.InitialSyncCompleted {
		return nil // disabled: defer
	}

	for _, req := range reqs {
		if req.State.IsFailed() {
			continue
		}
		if err := e.processRequest(ctx, sc, req); err != nil {
			if derrors.Is(err, derrors.EndpointNotReachable) {
				return err // abort the pass
			}
			logging.Warn(component, "request %s failed: %v", req.ID, err)
		}
	}
	return nil
}

func (e *Engine) processRequest(ctx context.Context, sc *model.Subcloud, req *model.OrchRequest) error {
	handler, ok := e.registry.Get(req.ResourceType)
	if !ok {
		return fmt.Errorf("resource type %s: %w", req.ResourceType, derrors.EndpointNotSupported)
	}

	req.State = model.OrchInProgress
	if err := e.gateway.UpdateOrchRequest(ctx, req); err != nil {
		if derrors.Is(err, derrors.OrchRequestNotFound) {
			return nil // benign: concurrently deleted
		}
		return err
	}

	for attempt := 1; attempt <= e.cfg.MaxRetry; attempt++ {
		err := e.invokeHandler(ctx, handler, sc, req)
		switch classify(err) {
		case outcomeSuccess:
			req.State = model.OrchCompleted
			return e.gateway.CompleteOrchRequest(ctx, req.ID)
		case outcomeTimeout:
			req.TryCount++
			if attempt == e.cfg.MaxRetry {
				return fmt.Errorf("request %s: %w", req.ID, derrors.EndpointNotReachable)
			}
		case outcomeFailedRetry:
			req.TryCount++
			req.State = model.OrchFailed
			_ = e.gateway.UpdateOrchRequest(ctx, req)
			if attempt == e.cfg.MaxRetry {
				return err
			}
			continue
		case outcomeFailed:
			req.State = model.OrchFailed
			return e.gateway.UpdateOrchRequest(ctx, req)
		}
	}
	return nil
}

func (e *Engine) invokeHandler(ctx context.Context, h ResourceHandler, sc *model.Subcloud, req *model.OrchRequest) error {
	switch req.Operation {
	case model.OpCreate:
		master, err := e.findMaster(ctx, h, req.SourceResourceID)
		if err != nil {
			return err
		}
		scID, err := h.SyncCreate(ctx, sc.RegionName, master)
		if err != nil {
			return err
		}
		return e.gateway.UpsertSubcloudResource(ctx, &model.SubcloudResource{
			ResourceType:       h.ResourceType(),
			ResourceID:         master.ID,
			SubcloudID:         sc.ID,
			SubcloudResourceID: scID,
			Managed:            true,
		})
	case model.OpUpdate:
		master, err := e.findMaster(ctx, h, req.SourceResourceID)
		if err != nil {
			return err
		}
		mapped, err := e.findMapping(ctx, h.ResourceType(), sc.ID, req.SourceResourceID)
		if err != nil {
			return err
		}
		return h.SyncUpdate(ctx, sc.RegionName, mapped.SubcloudResourceID, master)
	case model.OpDelete:
		mapped, err := e.findMapping(ctx, h.ResourceType(), sc.ID, req.SourceResourceID)
		if err != nil {
			return err
		}
		return h.SyncDelete(ctx, sc.RegionName, mapped.SubcloudResourceID)
	default:
		return fmt.Errorf("unknown operation %s: %w", req.Operation, derrors.SyncRequestFailed)
	}
}

func (e *Engine) findMaster(ctx context.Context, h ResourceHandler, resourceID string) (model.Resource, error) {
	resources, err := e.gateway.ListResources(ctx, h.ResourceType())
	if err != nil {
		return model.Resource{}, err
	}
	for _, r := range resources {
		if r.ID == resourceID {
			return *r, nil
		}
	}
	return model.Resource{}, fmt.Errorf("master resource %s: %w", resourceID, derrors.NotFound)
}

func (e *Engine) findMapping(ctx context.Context, resourceType string, subcloudID int, resourceID string) (*model.SubcloudResource, error) {
	rows, err := e.gateway.ListSubcloudResources(ctx, resourceType, subcloudID)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r.ResourceID == resourceID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("subcloud mapping %s/%d/%s: %w", resourceType, subcloudID, resourceID, derrors.NotFound)
}

// differentialAudit implements §4.4's "Differential audit" for every
// registered resource type, scoped to one (subcloud, endpoint) target.
func (e *Engine) differentialAudit(ctx context.Context, key workKey, region string) {
	sc, err := e.gateway.GetSubcloud(ctx, key.subcloudID)
	if err != nil {
		return
	}

	pending, err := e.gateway.ListOrchRequests(ctx, key.subcloudID, model.EndpointType(key.endpoint))
	if err != nil {
		return
	}
	pendingIDs := map[string]bool{}
	for _, r := range pending {
		if !r.State.IsFailed() {
			pendingIDs[r.SourceResourceID] = true
		}
	}

	for _, resourceType := range e.registry.Types() {
		handler, _ := e.registry.Get(resourceType)
		e.auditResourceType(ctx, handler, sc, key, pendingIDs)
	}

	e.postAudit(ctx)
}

func (e *Engine) auditResourceType(ctx context.Context, h ResourceHandler, sc *model.Subcloud, key workKey, pendingIDs map[string]bool) {
	scItems, err := h.ListSubcloud(ctx, sc.RegionName)
	if err != nil {
		logging.Warn(component, "audit: subcloud %s unreachable for %s: %v", sc.RegionName, h.ResourceType(), err)
		return
	}
	scByID := make(map[string]driver.IdentityResource, len(scItems))
	for _, item := range scItems {
		scByID[item.ID] = item
	}

	master, err := e.cachedMaster(ctx, h)
	if err != nil {
		logging.Warn(component, "audit: master fetch failed for %s: %v", h.ResourceType(), err)
		return
	}

	dbRows, err := e.gateway.ListSubcloudResources(ctx, h.ResourceType(), sc.ID)
	if err != nil {
		return
	}
	dbByMasterID := make(map[string]*model.SubcloudResource, len(dbRows))
	for _, row := range dbRows {
		dbByMasterID[row.ResourceID] = row
	}

	masterIDs := map[string]bool{}
	for _, m := range master {
		masterIDs[m.ID] = true
		if pendingIDs[m.ID] {
			continue
		}

		row, hasMapping := dbByMasterID[m.ID]
		if !hasMapping {
			if scID, adopted := h.MapExisting(m, scItems); adopted {
				_ = e.gateway.UpsertSubcloudResource(ctx, &model.SubcloudResource{
					ResourceType: h.ResourceType(), ResourceID: m.ID, SubcloudID: sc.ID,
					SubcloudResourceID: scID, Managed: true,
				})
				continue
			}
			e.enqueueRequest(ctx, sc.ID, key.endpoint, h.ResourceType(), m.ID, model.OpCreate)
			continue
		}

		if !row.Managed {
			continue
		}
		scItem, present := scByID[row.SubcloudResourceID]
		if present && h.Same(m, scItem) {
			continue
		}
		e.enqueueRequest(ctx, sc.ID, key.endpoint, h.ResourceType(), m.ID, model.OpUpdate)
	}

	for _, row := range dbRows {
		if masterIDs[row.ResourceID] || pendingIDs[row.ResourceID] {
			continue
		}
		if row.Managed {
			e.enqueueRequest(ctx, sc.ID, key.endpoint, h.ResourceType(), row.ResourceID, model.OpDelete)
		}
	}
}

func (e *Engine) enqueueRequest(ctx context.Context, subcloudID int, endpoint string, resourceType, resourceID string, op model.OrchOperation) {
	req := &model.OrchRequest{
		SubcloudID:       subcloudID,
		Endpoint:         model.EndpointType(endpoint),
		ResourceType:     resourceType,
		SourceResourceID: resourceID,
		Operation:        op,
		State:            model.OrchQueued,
	}
	if err := e.gateway.EnqueueOrchRequest(ctx, req); err != nil {
		logging.Warn(component, "failed to enqueue %s request for %s: %v", op, resourceID, err)
	}
}
