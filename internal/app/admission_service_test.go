package app

import (
	"context"
	"errors"
	"testing"
	"time"

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

var testQueues = QueueNames{
	Sandbox:      "triggers:sandbox",
	Team:         "triggers:team",
	Professional: "triggers:professional",
}

type admissionFixture struct {
	tenants  *mockTenantRepo
	apps     *mockAppRepo
	wfs      *mockWorkflowRepo
	logs     *mockLogRepo
	quota    *mockQuota
	enqueuer *mockEnqueuer
	service  *AdmissionService

	tenant *tenant.Tenant
	app    *appdomain.App
	wf     *workflow.Workflow
}

func newAdmissionFixture(t *testing.T, plan tenant.Plan) *admissionFixture {
	t.Helper()

	f := &admissionFixture{
		tenants:  newMockTenantRepo(),
		apps:     newMockAppRepo(),
		wfs:      newMockWorkflowRepo(),
		logs:     newMockLogRepo(),
		quota:    newMockQuota(),
		enqueuer: &mockEnqueuer{},
	}

	f.tenant = &tenant.Tenant{
		ID:            shared.NewID(),
		Name:          "acme",
		Plan:          plan,
		OwnerTimezone: "UTC",
		Status:        tenant.StatusActive,
	}
	f.tenants.add(f.tenant)

	f.app = &appdomain.App{
		ID:       shared.NewID(),
		TenantID: f.tenant.ID,
		Name:     "orders",
	}
	f.apps.add(f.app)

	f.wf = &workflow.Workflow{
		ID:       shared.NewID(),
		AppID:    f.app.ID,
		TenantID: f.tenant.ID,
		Status:   workflow.StatusPublished,
		Graph: &workflow.Graph{
			Nodes: []workflow.Node{
				{ID: "node-1", Type: workflow.NodeTypeTrigger},
			},
		},
	}
	f.wfs.publish(f.wf)

	dispatcher := NewQueueDispatcher(config.QuotaConfig{}, f.quota, testQueues, logger.NewNop())
	f.service = NewAdmissionService(f.tenants, f.apps, f.wfs, f.logs, dispatcher, f.enqueuer, logger.NewNop())
	return f
}

func (f *admissionFixture) triggerData(t *testing.T) *trigger.Data {
	t.Helper()
	data, err := trigger.NewData(f.tenant.ID, f.app.ID, "node-1", trigger.TypeManual, map[string]any{"n": 1})
	require.NoError(t, err)
	return data
}

func TestTriggerWorkflowAsync(t *testing.T) {
	t.Run("admits and queues a trigger", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanTeam)

		result, err := f.service.TriggerWorkflowAsync(context.Background(), f.triggerData(t), trigger.ActorRoleAccount, shared.NewID())
		require.NoError(t, err)

		assert.Equal(t, trigger.StatusQueued, result.Status)
		assert.Equal(t, "triggers:team", result.QueueName)
		assert.Equal(t, f.wf.ID, result.WorkflowID)
		assert.Equal(t, int64(DefaultTeamDailyLimit-1), result.Remaining)
		assert.NotEmpty(t, result.TaskID)

		require.Equal(t, 1, f.logs.count())
		stored := f.logs.get(result.TriggerLogID)
		require.NotNil(t, stored)
		assert.Equal(t, trigger.StatusQueued, stored.Status)
		assert.Equal(t, result.TaskID, stored.TaskID)
		assert.NotNil(t, stored.TriggeredAt)

		tasks := f.enqueuer.tasks()
		require.Len(t, tasks, 1)
		assert.Equal(t, "triggers:team", tasks[0].queue)
		assert.Equal(t, result.TriggerLogID.String(), tasks[0].logID)
	})

	t.Run("writes exactly one log row per call", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanProfessional)

		for i := 0; i < 3; i++ {
			_, err := f.service.TriggerWorkflowAsync(context.Background(), f.triggerData(t), trigger.ActorRoleAccount, shared.NewID())
			require.NoError(t, err)
		}
		assert.Equal(t, 3, f.logs.count())
	})

	t.Run("denies the sixth sandbox trigger of the day", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanSandbox)
		ctx := context.Background()

		for i := 0; i < DefaultSandboxDailyLimit; i++ {
			_, err := f.service.TriggerWorkflowAsync(ctx, f.triggerData(t), trigger.ActorRoleEndUser, shared.ID{})
			require.NoError(t, err)
		}

		_, err := f.service.TriggerWorkflowAsync(ctx, f.triggerData(t), trigger.ActorRoleEndUser, shared.ID{})
		require.Error(t, err)

		rle, ok := AsRateLimitError(err)
		require.True(t, ok)
		assert.Equal(t, DefaultSandboxDailyLimit, rle.Limit)
		assert.Equal(t, int64(0), rle.Remaining)
		assert.Equal(t, "triggers:sandbox", rle.QueueName)

		wantReset := time.Date(time.Now().UTC().Year(), time.Now().UTC().Month(), time.Now().UTC().Day()+1, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, wantReset, rle.ResetAt)

		// The denial is durable and the task queue was never touched.
		assert.Equal(t, DefaultSandboxDailyLimit+1, f.logs.count())
		denied := f.logs.get(rle.TriggerLogID)
		require.NotNil(t, denied)
		assert.Equal(t, trigger.StatusRateLimited, denied.Status)
		// The persisted message names the queue that denied the trigger.
		assert.Contains(t, denied.Error, "triggers:sandbox")
		assert.Len(t, f.enqueuer.tasks(), DefaultSandboxDailyLimit)
	})

	t.Run("denied attempts still consume quota", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanSandbox)
		ctx := context.Background()

		for i := 0; i < DefaultSandboxDailyLimit+3; i++ {
			_, _ = f.service.TriggerWorkflowAsync(ctx, f.triggerData(t), trigger.ActorRoleEndUser, shared.ID{})
		}

		_, err := f.service.TriggerWorkflowAsync(ctx, f.triggerData(t), trigger.ActorRoleEndUser, shared.ID{})
		rle, ok := AsRateLimitError(err)
		require.True(t, ok)
		assert.Equal(t, int64(0), rle.Remaining)
	})

	t.Run("marks the row failed when enqueue fails", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanTeam)
		f.enqueuer.err = errBoom

		_, err := f.service.TriggerWorkflowAsync(context.Background(), f.triggerData(t), trigger.ActorRoleAccount, shared.NewID())
		require.Error(t, err)

		var de *DispatchError
		require.ErrorAs(t, err, &de)
		assert.True(t, errors.Is(err, errBoom))

		stored := f.logs.get(de.TriggerLogID)
		require.NotNil(t, stored)
		assert.Equal(t, trigger.StatusFailed, stored.Status)
	})

	t.Run("fails when the app has no published workflow", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanTeam)
		f.wfs.published = map[string]*workflow.Workflow{}

		_, err := f.service.TriggerWorkflowAsync(context.Background(), f.triggerData(t), trigger.ActorRoleAccount, shared.NewID())
		require.ErrorIs(t, err, workflow.ErrNoPublishedWorkflow)
		assert.Equal(t, 0, f.logs.count())
	})

	t.Run("resolves a pinned workflow version", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanTeam)

		data := f.triggerData(t)
		data.WorkflowID = &f.wf.ID

		result, err := f.service.TriggerWorkflowAsync(context.Background(), data, trigger.ActorRoleAccount, shared.NewID())
		require.NoError(t, err)
		assert.Equal(t, f.wf.ID, result.WorkflowID)

		unknown := shared.NewID()
		data2 := f.triggerData(t)
		data2.WorkflowID = &unknown
		_, err = f.service.TriggerWorkflowAsync(context.Background(), data2, trigger.ActorRoleAccount, shared.NewID())
		require.ErrorIs(t, err, workflow.ErrWorkflowNotFound)
	})

	t.Run("rejects unknown tenants", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanTeam)

		data := f.triggerData(t)
		data.TenantID = shared.NewID()
		_, err := f.service.TriggerWorkflowAsync(context.Background(), data, trigger.ActorRoleAccount, shared.NewID())
		require.ErrorIs(t, err, tenant.ErrTenantNotFound)
	})
}

func TestReinvokeTrigger(t *testing.T) {
	t.Run("creates a fresh row and stamps the old one retrying", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanTeam)
		ctx := context.Background()

		f.enqueuer.err = errBoom
		_, err := f.service.TriggerWorkflowAsync(ctx, f.triggerData(t), trigger.ActorRoleAccount, shared.NewID())
		var de *DispatchError
		require.ErrorAs(t, err, &de)
		f.enqueuer.err = nil

		result, err := f.service.ReinvokeTrigger(ctx, f.tenant.ID, de.TriggerLogID, trigger.ActorRoleAccount, shared.NewID())
		require.NoError(t, err)

		old := f.logs.get(de.TriggerLogID)
		require.NotNil(t, old)
		assert.Equal(t, trigger.StatusRetrying, old.Status)
		assert.Equal(t, 1, old.RetryCount)
		assert.Empty(t, old.Error)

		fresh := f.logs.get(result.TriggerLogID)
		require.NotNil(t, fresh)
		assert.NotEqual(t, old.ID, fresh.ID)
		assert.Equal(t, trigger.StatusQueued, fresh.Status)
		assert.Equal(t, 0, fresh.RetryCount)
		assert.Equal(t, old.TriggerData, fresh.TriggerData)
	})

	t.Run("reinvoke is charged against the daily quota", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanSandbox)
		ctx := context.Background()

		f.enqueuer.err = errBoom
		_, err := f.service.TriggerWorkflowAsync(ctx, f.triggerData(t), trigger.ActorRoleEndUser, shared.ID{})
		var de *DispatchError
		require.ErrorAs(t, err, &de)
		f.enqueuer.err = nil

		result, err := f.service.ReinvokeTrigger(ctx, f.tenant.ID, de.TriggerLogID, trigger.ActorRoleEndUser, shared.ID{})
		require.NoError(t, err)
		assert.Equal(t, int64(DefaultSandboxDailyLimit-2), result.Remaining)
	})

	t.Run("rate limited row is admitted after the window resets", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanSandbox)
		ctx := context.Background()

		for i := 0; i < DefaultSandboxDailyLimit; i++ {
			_, err := f.service.TriggerWorkflowAsync(ctx, f.triggerData(t), trigger.ActorRoleEndUser, shared.ID{})
			require.NoError(t, err)
		}
		_, err := f.service.TriggerWorkflowAsync(ctx, f.triggerData(t), trigger.ActorRoleEndUser, shared.ID{})
		rle, ok := AsRateLimitError(err)
		require.True(t, ok)

		// The owner's next local day: the counter key rolls over and the
		// quota is fresh.
		f.quota.now = func() time.Time { return time.Now().Add(24 * time.Hour) }

		result, err := f.service.ReinvokeTrigger(ctx, f.tenant.ID, rle.TriggerLogID, trigger.ActorRoleEndUser, shared.ID{})
		require.NoError(t, err)
		assert.Equal(t, trigger.StatusQueued, result.Status)
		assert.Equal(t, int64(DefaultSandboxDailyLimit-1), result.Remaining)

		old := f.logs.get(rle.TriggerLogID)
		require.NotNil(t, old)
		assert.Equal(t, trigger.StatusRetrying, old.Status)
	})

	t.Run("rejects states that cannot be reinvoked", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanTeam)
		ctx := context.Background()

		queued, err := f.service.TriggerWorkflowAsync(ctx, f.triggerData(t), trigger.ActorRoleAccount, shared.NewID())
		require.NoError(t, err)

		_, err = f.service.ReinvokeTrigger(ctx, f.tenant.ID, queued.TriggerLogID, trigger.ActorRoleAccount, shared.NewID())
		require.ErrorIs(t, err, ErrReinvokeNotAllowed)
	})

	t.Run("is tenant scoped", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanTeam)
		ctx := context.Background()

		f.enqueuer.err = errBoom
		_, err := f.service.TriggerWorkflowAsync(ctx, f.triggerData(t), trigger.ActorRoleAccount, shared.NewID())
		var de *DispatchError
		require.ErrorAs(t, err, &de)

		_, err = f.service.ReinvokeTrigger(ctx, shared.NewID(), de.TriggerLogID, trigger.ActorRoleAccount, shared.NewID())
		require.ErrorIs(t, err, trigger.ErrTriggerLogNotFound)
	})
}

func TestQuotaStatus(t *testing.T) {
	f := newAdmissionFixture(t, tenant.PlanSandbox)
	ctx := context.Background()

	remaining, resetAt, err := f.service.QuotaStatus(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultSandboxDailyLimit), remaining)
	assert.True(t, resetAt.After(time.Now()))

	_, err = f.service.TriggerWorkflowAsync(ctx, f.triggerData(t), trigger.ActorRoleEndUser, shared.ID{})
	require.NoError(t, err)

	remaining, _, err = f.service.QuotaStatus(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultSandboxDailyLimit-1), remaining)
}
