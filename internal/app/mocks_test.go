package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/triggerflow/dispatch/internal/infra/redis"
	appdomain "github.com/triggerflow/dispatch/pkg/domain/app"
	"github.com/triggerflow/dispatch/pkg/domain/shared"
	"github.com/triggerflow/dispatch/pkg/domain/tenant"
	"github.com/triggerflow/dispatch/pkg/domain/trigger"
	"github.com/triggerflow/dispatch/pkg/domain/workflow"
)

// mockTenantRepo is an in-memory tenant repository.
type mockTenantRepo struct {
	mu      sync.RWMutex
	tenants map[string]*tenant.Tenant
}

func newMockTenantRepo() *mockTenantRepo {
	return &mockTenantRepo{tenants: make(map[string]*tenant.Tenant)}
}

func (m *mockTenantRepo) add(t *tenant.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID.String()] = t
}

func (m *mockTenantRepo) GetByID(_ context.Context, id shared.ID) (*tenant.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id.String()]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return t, nil
}

// mockAppRepo is an in-memory app repository.
type mockAppRepo struct {
	mu   sync.RWMutex
	apps map[string]*appdomain.App
}

func newMockAppRepo() *mockAppRepo {
	return &mockAppRepo{apps: make(map[string]*appdomain.App)}
}

func (m *mockAppRepo) add(a *appdomain.App) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps[a.ID.String()] = a
}

func (m *mockAppRepo) GetByID(_ context.Context, id shared.ID) (*appdomain.App, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.apps[id.String()]
	if !ok {
		return nil, appdomain.ErrAppNotFound
	}
	return a, nil
}

func (m *mockAppRepo) GetByTenantAndID(_ context.Context, tenantID, id shared.ID) (*appdomain.App, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.apps[id.String()]
	if !ok || a.TenantID != tenantID {
		return nil, appdomain.ErrAppNotFound
	}
	return a, nil
}

// mockWorkflowRepo is an in-memory workflow repository keyed by app.
type mockWorkflowRepo struct {
	mu        sync.RWMutex
	published map[string]*workflow.Workflow // app id -> latest published
}

func newMockWorkflowRepo() *mockWorkflowRepo {
	return &mockWorkflowRepo{published: make(map[string]*workflow.Workflow)}
}

func (m *mockWorkflowRepo) publish(wf *workflow.Workflow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[wf.AppID.String()] = wf
}

func (m *mockWorkflowRepo) GetPublishedByApp(_ context.Context, appID shared.ID) (*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.published[appID.String()]
	if !ok {
		return nil, workflow.ErrNoPublishedWorkflow
	}
	return wf, nil
}

func (m *mockWorkflowRepo) GetPublishedByID(_ context.Context, appID, workflowID shared.ID) (*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.published[appID.String()]
	if !ok || wf.ID != workflowID {
		return nil, workflow.ErrWorkflowNotFound
	}
	return wf, nil
}

func (m *mockWorkflowRepo) LatestPublishedByApps(_ context.Context, appIDs []shared.ID) (map[string]*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*workflow.Workflow)
	for _, id := range appIDs {
		if wf, ok := m.published[id.String()]; ok {
			out[id.String()] = wf
		}
	}
	return out, nil
}

// mockLogRepo is an in-memory trigger log repository.
type mockLogRepo struct {
	mu   sync.RWMutex
	logs map[string]*trigger.Log
	// order of creation for listing assertions
	created []shared.ID
}

func newMockLogRepo() *mockLogRepo {
	return &mockLogRepo{logs: make(map[string]*trigger.Log)}
}

func (m *mockLogRepo) Create(_ context.Context, l *trigger.Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.logs[l.ID.String()] = &cp
	m.created = append(m.created, l.ID)
	return nil
}

func (m *mockLogRepo) GetByID(_ context.Context, id shared.ID) (*trigger.Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.logs[id.String()]
	if !ok {
		return nil, trigger.ErrTriggerLogNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *mockLogRepo) GetByTenantAndID(_ context.Context, tenantID, id shared.ID) (*trigger.Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.logs[id.String()]
	if !ok || l.TenantID != tenantID {
		return nil, trigger.ErrTriggerLogNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *mockLogRepo) Update(_ context.Context, l *trigger.Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.logs[l.ID.String()]; !ok {
		return trigger.ErrTriggerLogNotFound
	}
	cp := *l
	m.logs[l.ID.String()] = &cp
	return nil
}

func (m *mockLogRepo) ListRecent(_ context.Context, filter trigger.LogFilter) ([]*trigger.Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*trigger.Log
	// newest first
	for i := len(m.created) - 1; i >= 0; i-- {
		l := m.logs[m.created[i].String()]
		if l.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != nil && l.Status != *filter.Status {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockLogRepo) CountRecent(_ context.Context, filter trigger.LogFilter) (int64, error) {
	logs, _ := m.ListRecent(context.Background(), filter)
	return int64(len(logs)), nil
}

func (m *mockLogRepo) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs)
}

func (m *mockLogRepo) get(id shared.ID) *trigger.Log {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logs[id.String()]
}

// mockSubscriptionRepo is an in-memory subscription repository.
type mockSubscriptionRepo struct {
	mu   sync.RWMutex
	subs []*trigger.PluginTrigger
}

func (m *mockSubscriptionRepo) add(sub *trigger.PluginTrigger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, sub)
}

func (m *mockSubscriptionRepo) ListBySubscriptionAndEvent(_ context.Context, subscriptionID, eventName string) ([]*trigger.PluginTrigger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*trigger.PluginTrigger
	for _, sub := range m.subs {
		if sub.SubscriptionID == subscriptionID && sub.EventName == eventName {
			out = append(out, sub)
		}
	}
	return out, nil
}

// mockQuota implements QuotaConsumer with in-memory counters keyed by
// tenant and local day, mirroring the INCR-with-expiry semantics.
type mockQuota struct {
	mu     sync.Mutex
	counts map[string]int64
	now    func() time.Time
	err    error
}

func newMockQuota() *mockQuota {
	return &mockQuota{counts: make(map[string]int64), now: time.Now}
}

func (m *mockQuota) key(tenantID string, loc *time.Location) string {
	return tenantID + ":" + m.now().In(loc).Format("2006-01-02")
}

func (m *mockQuota) Consume(_ context.Context, tenantID string, limit int, loc *time.Location) (*redis.QuotaResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	key := m.key(tenantID, loc)
	m.counts[key]++
	count := m.counts[key]
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	return &redis.QuotaResult{
		Consumed:  count <= int64(limit),
		Count:     count,
		Remaining: remaining,
		ResetAt:   redis.NextLocalMidnight(m.now(), loc),
	}, nil
}

func (m *mockQuota) Remaining(_ context.Context, tenantID string, limit int, loc *time.Location) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	remaining := int64(limit) - m.counts[m.key(tenantID, loc)]
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (m *mockQuota) ResetTime(loc *time.Location) time.Time {
	return redis.NextLocalMidnight(m.now(), loc)
}

// mockEnqueuer records enqueued dispatches.
type mockEnqueuer struct {
	mu       sync.Mutex
	enqueued []enqueuedTask
	err      error
}

type enqueuedTask struct {
	queue string
	logID string
}

func (m *mockEnqueuer) EnqueueTriggerDispatch(_ context.Context, queueName, logID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.enqueued = append(m.enqueued, enqueuedTask{queue: queueName, logID: logID})
	return "task-" + logID, nil
}

func (m *mockEnqueuer) tasks() []enqueuedTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]enqueuedTask(nil), m.enqueued...)
}

// mockProvider resolves events with a scriptable per-subscriber outcome.
// Without a script it behaves like the passthrough provider.
type mockProvider struct {
	mu      sync.Mutex
	invoked []*trigger.PluginTrigger
	resolve func(sub *trigger.PluginTrigger, event ProviderEvent) (*InvokeEventResponse, error)
}

func (m *mockProvider) InvokeEvent(_ context.Context, sub *trigger.PluginTrigger, event ProviderEvent) (*InvokeEventResponse, error) {
	m.mu.Lock()
	m.invoked = append(m.invoked, sub)
	m.mu.Unlock()
	if m.resolve != nil {
		return m.resolve(sub, event)
	}
	return &InvokeEventResponse{Variables: event.Inputs}, nil
}

// mockExecutor runs workflows with a scripted outcome.
type mockExecutor struct {
	mu   sync.Mutex
	runs []*WorkflowRun
	err  error
}

func (m *mockExecutor) Execute(_ context.Context, run *WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return m.err
}

// errNotSubscribed is a sentinel unrelated to domain errors, for asserting
// error passthrough.
var errBoom = errors.New("boom")
