package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	derrors "github.com/riddopic/distcloud/internal/errors"
	"github.com/riddopic/distcloud/internal/model"
)

type statusKey struct {
	subcloudID int
	endpoint   model.EndpointType
}

// Memory is an in-process reference implementation of Gateway. It is
// not durable; production deployments bind Gateway to a relational
// store. Memory exists so every engine in this module has something
// concrete and fast to test against.
type Memory struct {
	mu sync.RWMutex

	clock func() time.Time

	subclouds map[int]*model.Subcloud
	groups    map[int]*model.SubcloudGroup

	statuses     map[statusKey]*model.SubcloudStatus
	lastStatusAt map[statusKey]time.Time

	strategy *model.SwUpdateStrategy
	steps    []*model.StrategyStep
	nextStep int

	orchRequests map[string]*model.OrchRequest

	resources         map[string]map[string]*model.Resource
	subcloudResources map[string]map[string]*model.SubcloudResource // resourceType -> "subcloudID/resourceID" -> row
}

// NewMemory builds an in-memory Gateway seeded with the undeletable
// Default group, per §3/§6.
func NewMemory() *Memory {
	return &Memory{
		clock:     time.Now,
		subclouds: map[int]*model.Subcloud{},
		groups: map[int]*model.SubcloudGroup{
			model.DefaultGroupID: {
				ID:                   model.DefaultGroupID,
				Name:                 "Default",
				UpdateApplyType:      model.ApplySerial,
				MaxParallelSubclouds: 1,
			},
		},
		statuses:          map[statusKey]*model.SubcloudStatus{},
		lastStatusAt:      map[statusKey]time.Time{},
		orchRequests:      map[string]*model.OrchRequest{},
		resources:         map[string]map[string]*model.Resource{},
		subcloudResources: map[string]map[string]*model.SubcloudResource{},
	}
}

// SeedSubcloud inserts or replaces a subcloud, for test setup.
func (m *Memory) SeedSubcloud(sc *model.Subcloud) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subclouds[sc.ID] = sc
}

// SeedGroup inserts or replaces a subcloud group, for test setup.
func (m *Memory) SeedGroup(g *model.SubcloudGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = g
}

func (m *Memory) GetSubcloud(ctx context.Context, id int) (*model.Subcloud, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.subclouds[id]
	if !ok {
		return nil, fmt.Errorf("subcloud %d: %w", id, derrors.NotFound)
	}
	cp := *sc
	return &cp, nil
}

func (m *Memory) ListSubclouds(ctx context.Context) ([]*model.Subcloud, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Subcloud, 0, len(m.subclouds))
	for _, sc := range m.subclouds {
		cp := *sc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateSubcloudAvailability(ctx context.Context, id int, avail *model.Availability, updateStateOnly bool, failCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.subclouds[id]
	if !ok {
		return fmt.Errorf("subcloud %d: %w", id, derrors.NotFound)
	}
	if !updateStateOnly && avail != nil {
		sc.Availability = *avail
	}
	sc.AuditFailCount = failCount
	sc.UpdatedAt = m.clock()
	return nil
}

func (m *Memory) SetOpenstackInstalled(ctx context.Context, id int, installed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.subclouds[id]
	if !ok {
		return fmt.Errorf("subcloud %d: %w", id, derrors.NotFound)
	}
	sc.OpenstackInstalled = installed
	return nil
}

func (m *Memory) SetInitialSyncState(ctx context.Context, id int, state model.InitialSyncState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.subclouds[id]
	if !ok {
		return fmt.Errorf("subcloud %d: %w", id, derrors.NotFound)
	}
	sc.InitialSyncState = state
	return nil
}

func (m *Memory) GetGroup(ctx context.Context, id int) (*model.SubcloudGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %d: %w", id, derrors.NotFound)
	}
	cp := *g
	return &cp, nil
}

func (m *Memory) GetEndpointStatus(ctx context.Context, subcloudID int, endpoint model.EndpointType) (*model.SubcloudStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[statusKey{subcloudID, endpoint}]
	if !ok {
		return nil, fmt.Errorf("status %d/%s: %w", subcloudID, endpoint, derrors.NotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) ListEndpointStatus(ctx context.Context, subcloudID int) ([]*model.SubcloudStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.SubcloudStatus
	for k, s := range m.statuses {
		if k.subcloudID == subcloudID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

// SetEndpointStatus is idempotent per §4.2/§8: an identical (subcloud,
// endpoint, status) repeated within EndpointStatusDebounce of the last
// write does not touch the row or its timestamp.
func (m *Memory) SetEndpointStatus(ctx context.Context, subcloudID int, endpoint model.EndpointType, status model.SyncStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := statusKey{subcloudID, endpoint}
	now := m.clock()

	if existing, ok := m.statuses[key]; ok && existing.Status == status {
		if last, ok := m.lastStatusAt[key]; ok && now.Sub(last) < EndpointStatusDebounce {
			return nil
		}
	}

	m.statuses[key] = &model.SubcloudStatus{SubcloudID: subcloudID, Endpoint: endpoint, Status: status, UpdatedAt: now}
	m.lastStatusAt[key] = now
	return nil
}

func (m *Memory) UpdateSyncEndpointTypes(ctx context.Context, subcloudID int, endpoints []model.EndpointType, add bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ep := range endpoints {
		key := statusKey{subcloudID, ep}
		if add {
			if _, ok := m.statuses[key]; !ok {
				m.statuses[key] = &model.SubcloudStatus{SubcloudID: subcloudID, Endpoint: ep, Status: model.SyncUnknown, UpdatedAt: m.clock()}
			}
		} else {
			delete(m.statuses, key)
			delete(m.lastStatusAt, key)
		}
	}
	return nil
}

func (m *Memory) GetStrategy(ctx context.Context) (*model.SwUpdateStrategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.strategy == nil {
		return nil, fmt.Errorf("strategy: %w", derrors.NotFound)
	}
	cp := *m.strategy
	return &cp, nil
}

func (m *Memory) CreateStrategy(ctx context.Context, s *model.SwUpdateStrategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.strategy != nil {
		return fmt.Errorf("a strategy already exists: %w", derrors.BadRequest)
	}
	cp := *s
	cp.CreatedAt = m.clock()
	cp.UpdatedAt = cp.CreatedAt
	m.strategy = &cp
	return nil
}

func (m *Memory) UpdateStrategyState(ctx context.Context, state model.StrategyState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.strategy == nil {
		return fmt.Errorf("strategy: %w", derrors.NotFound)
	}
	m.strategy.State = state
	m.strategy.UpdatedAt = m.clock()
	return nil
}

func (m *Memory) DeleteStrategy(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.strategy == nil {
		return fmt.Errorf("strategy: %w", derrors.NotFound)
	}
	if m.strategy.State != model.StrategyDeleting {
		return fmt.Errorf("strategy not in deleting state: %w", derrors.BadRequest)
	}
	m.strategy = nil
	m.steps = nil
	return nil
}

func (m *Memory) ListSteps(ctx context.Context) ([]*model.StrategyStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.StrategyStep, len(m.steps))
	for i, s := range m.steps {
		cp := *s
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		ai, aj := -1, -1
		if out[i].SubcloudID != nil {
			ai = *out[i].SubcloudID
		}
		if out[j].SubcloudID != nil {
			aj = *out[j].SubcloudID
		}
		return ai < aj
	})
	return out, nil
}

func (m *Memory) CreateStep(ctx context.Context, step *model.StrategyStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextStep++
	cp := *step
	cp.ID = m.nextStep
	m.steps = append(m.steps, &cp)
	return nil
}

func (m *Memory) UpdateStep(ctx context.Context, step *model.StrategyStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.steps {
		if s.ID == step.ID {
			cp := *step
			m.steps[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("step %d: %w", step.ID, derrors.NotFound)
}

func (m *Memory) DeleteSteps(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = nil
	return nil
}

func (m *Memory) EnqueueOrchRequest(ctx context.Context, req *model.OrchRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	cp := *req
	cp.CreatedAt = m.clock()
	cp.UpdatedAt = cp.CreatedAt
	m.orchRequests[cp.ID] = &cp
	return nil
}

func (m *Memory) ListOrchRequests(ctx context.Context, subcloudID int, endpoint model.EndpointType) ([]*model.OrchRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.OrchRequest
	for _, r := range m.orchRequests {
		if r.SubcloudID == subcloudID && r.Endpoint == endpoint && r.DeletedAt == nil {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateOrchRequest(ctx context.Context, req *model.OrchRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.orchRequests[req.ID]
	if !ok || existing.DeletedAt != nil {
		return fmt.Errorf("orch request %s: %w", req.ID, derrors.OrchRequestNotFound)
	}
	cp := *req
	cp.UpdatedAt = m.clock()
	m.orchRequests[req.ID] = &cp
	return nil
}

func (m *Memory) CompleteOrchRequest(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.orchRequests[id]
	if !ok || existing.DeletedAt != nil {
		return fmt.Errorf("orch request %s: %w", id, derrors.OrchRequestNotFound)
	}
	now := m.clock()
	existing.State = model.OrchCompleted
	existing.DeletedAt = &now
	existing.UpdatedAt = now
	return nil
}

func (m *Memory) ListResources(ctx context.Context, resourceType string) ([]*model.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket := m.resources[resourceType]
	out := make([]*model.Resource, 0, len(bucket))
	for _, r := range bucket {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SeedResource inserts or replaces a master resource, for test setup.
func (m *Memory) SeedResource(r *model.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resources[r.ResourceType] == nil {
		m.resources[r.ResourceType] = map[string]*model.Resource{}
	}
	m.resources[r.ResourceType][r.ID] = r
}

func (m *Memory) ListSubcloudResources(ctx context.Context, resourceType string, subcloudID int) ([]*model.SubcloudResource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.SubcloudResource
	for _, r := range m.subcloudResources[resourceType] {
		if r.SubcloudID == subcloudID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) UpsertSubcloudResource(ctx context.Context, sr *model.SubcloudResource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sr
	bucket := m.subcloudResources[sr.ResourceType]
	if bucket == nil {
		bucket = map[string]*model.SubcloudResource{}
		m.subcloudResources[sr.ResourceType] = bucket
	}
	bucket[subcloudResourceRowKey(sr.SubcloudID, sr.ResourceID)] = &cp
	return nil
}

func subcloudResourceRowKey(subcloudID int, resourceID string) string {
	return fmt.Sprintf("%d/%s", subcloudID, resourceID)
}
