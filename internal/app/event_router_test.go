package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triggerflow/dispatch/internal/config"
	appdomain "github.com/triggerflow/dispatch/pkg/domain/app"
	"github.com/triggerflow/dispatch/pkg/domain/shared"
	"github.com/triggerflow/dispatch/pkg/domain/tenant"
	"github.com/triggerflow/dispatch/pkg/domain/trigger"
	"github.com/triggerflow/dispatch/pkg/domain/workflow"
	"github.com/triggerflow/dispatch/pkg/logger"
)

type routerFixture struct {
	tenants    *mockTenantRepo
	apps       *mockAppRepo
	wfs        *mockWorkflowRepo
	logs       *mockLogRepo
	quota      *mockQuota
	enqueuer   *mockEnqueuer
	subs       *mockSubscriptionRepo
	provider   *mockProvider
	debugStore *mockDebugStore
	router     *EventRouter
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	f := &routerFixture{
		tenants:    newMockTenantRepo(),
		apps:       newMockAppRepo(),
		wfs:        newMockWorkflowRepo(),
		logs:       newMockLogRepo(),
		quota:      newMockQuota(),
		enqueuer:   &mockEnqueuer{},
		subs:       &mockSubscriptionRepo{},
		provider:   &mockProvider{},
		debugStore: newMockDebugStore(),
	}

	dispatcher := NewQueueDispatcher(config.QuotaConfig{}, f.quota, testQueues, logger.NewNop())
	admission := NewAdmissionService(f.tenants, f.apps, f.wfs, f.logs, dispatcher, f.enqueuer, logger.NewNop())
	debug := newDebugService(f.debugStore)
	f.router = NewEventRouter(f.subs, f.wfs, f.provider, admission, debug, logger.NewNop())
	return f
}

// subscribe wires one tenant+app+published workflow and subscribes its
// trigger node to the given provider subscription.
func (f *routerFixture) subscribe(t *testing.T, plan tenant.Plan, subscriptionID, eventName string) *trigger.PluginTrigger {
	t.Helper()

	ten := &tenant.Tenant{
		ID:            shared.NewID(),
		Name:          "tenant",
		Plan:          plan,
		OwnerTimezone: "UTC",
		Status:        tenant.StatusActive,
	}
	f.tenants.add(ten)

	a := &appdomain.App{ID: shared.NewID(), TenantID: ten.ID, Name: "app"}
	f.apps.add(a)

	wf := &workflow.Workflow{
		ID:       shared.NewID(),
		AppID:    a.ID,
		TenantID: ten.ID,
		Status:   workflow.StatusPublished,
		Graph: &workflow.Graph{
			Nodes: []workflow.Node{{ID: "trigger-1", Type: workflow.NodeTypeTrigger}},
		},
	}
	f.wfs.publish(wf)

	sub := &trigger.PluginTrigger{
		ID:             shared.NewID(),
		TenantID:       ten.ID,
		AppID:          a.ID,
		NodeID:         "trigger-1",
		PluginID:       "shophook",
		SubscriptionID: subscriptionID,
		EventName:      eventName,
	}
	f.subs.add(sub)
	return sub
}

func TestHandleProviderEvent(t *testing.T) {
	ctx := context.Background()
	event := ProviderEvent{
		SubscriptionID: "sub-1",
		EventName:      "order.created",
		PluginID:       "shophook",
		Inputs:         map[string]any{"order_id": 42},
	}

	t.Run("zero subscribers", func(t *testing.T) {
		f := newRouterFixture(t)

		result, err := f.router.HandleProviderEvent(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Subscribers)
		assert.Equal(t, 0, result.Dispatched)
		assert.Empty(t, f.enqueuer.tasks())
	})

	t.Run("fans out to every subscriber", func(t *testing.T) {
		f := newRouterFixture(t)
		for i := 0; i < 4; i++ {
			f.subscribe(t, tenant.PlanTeam, "sub-1", "order.created")
		}
		// Different subscription and different event stay untouched.
		f.subscribe(t, tenant.PlanTeam, "sub-2", "order.created")
		f.subscribe(t, tenant.PlanTeam, "sub-1", "order.deleted")

		result, err := f.router.HandleProviderEvent(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, 4, result.Subscribers)
		assert.Equal(t, 4, result.Dispatched)
		assert.Equal(t, 0, result.Cancelled)
		assert.Equal(t, 0, result.Failed)
		assert.Len(t, f.enqueuer.tasks(), 4)
	})

	t.Run("one exhausted tenant does not block the rest", func(t *testing.T) {
		f := newRouterFixture(t)
		exhausted := f.subscribe(t, tenant.PlanSandbox, "sub-1", "order.created")
		for i := 0; i < 3; i++ {
			f.subscribe(t, tenant.PlanTeam, "sub-1", "order.created")
		}

		// Burn the sandbox tenant's whole daily quota.
		loc, _ := f.tenants.GetByID(ctx, exhausted.TenantID)
		for i := 0; i < DefaultSandboxDailyLimit; i++ {
			_, err := f.quota.Consume(ctx, exhausted.TenantID.String(), DefaultSandboxDailyLimit, loc.OwnerLocation())
			require.NoError(t, err)
		}

		result, err := f.router.HandleProviderEvent(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, 4, result.Subscribers)
		assert.Equal(t, 3, result.Dispatched)
		assert.Equal(t, 1, result.Cancelled)
		assert.Equal(t, 0, result.Failed)

		// The denial is still durable: one rate_limited row exists.
		var cancelled SubscriberResult
		for _, sr := range result.Results {
			if sr.Outcome == InvokeCancelled {
				cancelled = sr
			}
		}
		require.False(t, cancelled.TriggerLogID.IsZero())
		row := f.logs.get(cancelled.TriggerLogID)
		require.NotNil(t, row)
		assert.Equal(t, trigger.StatusRateLimited, row.Status)
	})

	t.Run("app without a published workflow is cancelled", func(t *testing.T) {
		f := newRouterFixture(t)
		gone := f.subscribe(t, tenant.PlanTeam, "sub-1", "order.created")
		f.subscribe(t, tenant.PlanTeam, "sub-1", "order.created")

		delete(f.wfs.published, gone.AppID.String())

		result, err := f.router.HandleProviderEvent(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Subscribers)
		assert.Equal(t, 1, result.Dispatched)
		assert.Equal(t, 1, result.Cancelled)
	})

	t.Run("subscription whose node left the published version is cancelled", func(t *testing.T) {
		f := newRouterFixture(t)
		sub := f.subscribe(t, tenant.PlanTeam, "sub-1", "order.created")

		// Republish without the trigger node.
		f.wfs.publish(&workflow.Workflow{
			ID:       shared.NewID(),
			AppID:    sub.AppID,
			TenantID: sub.TenantID,
			Status:   workflow.StatusPublished,
			Graph:    &workflow.Graph{Nodes: []workflow.Node{{ID: "other", Type: workflow.NodeTypeStart}}},
		})

		result, err := f.router.HandleProviderEvent(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Cancelled)
		assert.Equal(t, 0, result.Dispatched)
	})

	t.Run("enqueue failures are isolated per subscriber", func(t *testing.T) {
		f := newRouterFixture(t)
		f.subscribe(t, tenant.PlanTeam, "sub-1", "order.created")
		f.subscribe(t, tenant.PlanTeam, "sub-1", "order.created")
		f.enqueuer.err = errBoom

		result, err := f.router.HandleProviderEvent(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Failed)
		assert.Equal(t, 0, result.Dispatched)
		// Every failure is still recorded durably.
		assert.Equal(t, 2, f.logs.count())
	})

	t.Run("provider variables flow into each subscriber's trigger", func(t *testing.T) {
		f := newRouterFixture(t)
		sub := f.subscribe(t, tenant.PlanTeam, "sub-1", "order.created")

		f.provider.resolve = func(s *trigger.PluginTrigger, _ ProviderEvent) (*InvokeEventResponse, error) {
			return &InvokeEventResponse{Variables: map[string]any{"resolved_for": s.AppID.String()}}, nil
		}

		result, err := f.router.HandleProviderEvent(ctx, event)
		require.NoError(t, err)
		require.Equal(t, 1, result.Dispatched)

		row := f.logs.get(result.Results[0].TriggerLogID)
		require.NotNil(t, row)
		data, err := row.Data()
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"resolved_for": sub.AppID.String()}, data.Inputs)
	})

	t.Run("provider cancelled subscribers are skipped without error", func(t *testing.T) {
		f := newRouterFixture(t)
		declined := f.subscribe(t, tenant.PlanTeam, "sub-1", "order.created")
		f.subscribe(t, tenant.PlanTeam, "sub-1", "order.created")

		f.provider.resolve = func(s *trigger.PluginTrigger, e ProviderEvent) (*InvokeEventResponse, error) {
			if s.ID == declined.ID {
				return &InvokeEventResponse{Cancelled: true}, nil
			}
			return &InvokeEventResponse{Variables: e.Inputs}, nil
		}

		result, err := f.router.HandleProviderEvent(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Dispatched)
		assert.Equal(t, 1, result.Cancelled)
		assert.Equal(t, 0, result.Failed)

		// A cancelled subscriber consumes nothing: no log row, no task.
		assert.Equal(t, 1, f.logs.count())
		assert.Len(t, f.enqueuer.tasks(), 1)
	})

	t.Run("provider failures are isolated per subscriber", func(t *testing.T) {
		f := newRouterFixture(t)
		broken := f.subscribe(t, tenant.PlanTeam, "sub-1", "order.created")
		f.subscribe(t, tenant.PlanTeam, "sub-1", "order.created")

		f.provider.resolve = func(s *trigger.PluginTrigger, e ProviderEvent) (*InvokeEventResponse, error) {
			if s.ID == broken.ID {
				return nil, errBoom
			}
			return &InvokeEventResponse{Variables: e.Inputs}, nil
		}

		result, err := f.router.HandleProviderEvent(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Dispatched)
		assert.Equal(t, 1, result.Failed)
	})

	t.Run("delivers to debug sessions alongside dispatch", func(t *testing.T) {
		f := newRouterFixture(t)
		f.subscribe(t, tenant.PlanTeam, "sub-1", "order.created")

		created, err := newDebugService(f.debugStore).CreateSession(ctx, CreateDebugSessionInput{SubscriptionID: "sub-1"})
		require.NoError(t, err)
		f.debugStore.receivers[created.SessionID] = 1

		result, err := f.router.HandleProviderEvent(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, 1, result.DebugDelivered)
		assert.Equal(t, 1, result.Dispatched)
	})

	t.Run("rejects events without identity", func(t *testing.T) {
		f := newRouterFixture(t)
		_, err := f.router.HandleProviderEvent(ctx, ProviderEvent{})
		require.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestHandleProviderEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("accumulates dispatch counts across the batch", func(t *testing.T) {
		f := newRouterFixture(t)
		f.subscribe(t, tenant.PlanTeam, "sub-1", "order.created")
		f.subscribe(t, tenant.PlanTeam, "sub-1", "order.created")
		f.subscribe(t, tenant.PlanTeam, "sub-1", "order.deleted")

		dispatched, err := f.router.HandleProviderEvents(ctx, "sub-1", []ProviderEvent{
			{EventName: "order.created", Inputs: map[string]any{"id": "1"}},
			{EventName: "order.deleted", Inputs: map[string]any{"id": "1"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, dispatched)
		assert.Len(t, f.enqueuer.tasks(), 3)
	})

	t.Run("a failing event name does not abort the rest", func(t *testing.T) {
		f := newRouterFixture(t)
		f.subscribe(t, tenant.PlanTeam, "sub-1", "order.created")

		dispatched, err := f.router.HandleProviderEvents(ctx, "sub-1", []ProviderEvent{
			{EventName: ""}, // rejected by validation, logged and skipped
			{EventName: "order.created"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, dispatched)
	})

	t.Run("requires a subscription id", func(t *testing.T) {
		f := newRouterFixture(t)
		_, err := f.router.HandleProviderEvents(ctx, "", nil)
		require.ErrorIs(t, err, shared.ErrValidation)
	})
}
