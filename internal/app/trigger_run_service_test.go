package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triggerflow/dispatch/pkg/domain/shared"
	"github.com/triggerflow/dispatch/pkg/domain/tenant"
	"github.com/triggerflow/dispatch/pkg/domain/trigger"
	"github.com/triggerflow/dispatch/pkg/domain/workflow"
	"github.com/triggerflow/dispatch/pkg/logger"
)

// queueOne admits one trigger and returns its queued log id.
func queueOne(t *testing.T, f *admissionFixture) shared.ID {
	t.Helper()
	result, err := f.service.TriggerWorkflowAsync(context.Background(), f.triggerData(t), trigger.ActorRoleAccount, shared.NewID())
	require.NoError(t, err)
	return result.TriggerLogID
}

func TestTriggerRunServiceRun(t *testing.T) {
	ctx := context.Background()

	t.Run("runs a queued dispatch to success", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanTeam)
		logID := queueOne(t, f)

		executor := &mockExecutor{}
		runs := NewTriggerRunService(f.logs, f.wfs, executor, logger.NewNop())

		require.NoError(t, runs.Run(ctx, logID))

		stored := f.logs.get(logID)
		assert.Equal(t, trigger.StatusSucceeded, stored.Status)
		assert.Empty(t, stored.Error)

		require.Len(t, executor.runs, 1)
		run := executor.runs[0]
		assert.Equal(t, logID, run.Log.ID)
		assert.Equal(t, f.wf.ID, run.Workflow.ID)
		assert.Equal(t, f.tenant.ID, run.Data.TenantID)
		assert.Equal(t, map[string]any{"n": float64(1)}, run.Data.Inputs)
	})

	t.Run("records executor failure without retrying", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanTeam)
		logID := queueOne(t, f)

		executor := &mockExecutor{err: errBoom}
		runs := NewTriggerRunService(f.logs, f.wfs, executor, logger.NewNop())

		// The failure is recorded in the row; the task itself completes.
		require.NoError(t, runs.Run(ctx, logID))

		stored := f.logs.get(logID)
		assert.Equal(t, trigger.StatusFailed, stored.Status)
		assert.Equal(t, errBoom.Error(), stored.Error)
		assert.True(t, stored.Status.CanReinvoke())
	})

	t.Run("skips rows that are no longer queued", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanTeam)
		logID := queueOne(t, f)

		executor := &mockExecutor{}
		runs := NewTriggerRunService(f.logs, f.wfs, executor, logger.NewNop())
		require.NoError(t, runs.Run(ctx, logID))

		// Redelivery of the same task must not run the workflow again.
		require.NoError(t, runs.Run(ctx, logID))
		assert.Len(t, executor.runs, 1)
		assert.Equal(t, trigger.StatusSucceeded, f.logs.get(logID).Status)
	})

	t.Run("fails the row when the workflow disappeared", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanTeam)
		logID := queueOne(t, f)

		// Unpublish between admission and run.
		f.wfs.published = map[string]*workflow.Workflow{}

		executor := &mockExecutor{}
		runs := NewTriggerRunService(f.logs, f.wfs, executor, logger.NewNop())
		err := runs.Run(ctx, logID)
		require.Error(t, err)

		stored := f.logs.get(logID)
		assert.Equal(t, trigger.StatusFailed, stored.Status)
		assert.Empty(t, executor.runs)
	})

	t.Run("unknown log id", func(t *testing.T) {
		f := newAdmissionFixture(t, tenant.PlanTeam)
		runs := NewTriggerRunService(f.logs, f.wfs, &mockExecutor{}, logger.NewNop())
		err := runs.Run(ctx, shared.NewID())
		require.ErrorIs(t, err, trigger.ErrTriggerLogNotFound)
	})
}

func TestNoOpWorkflowExecutor(t *testing.T) {
	f := newAdmissionFixture(t, tenant.PlanTeam)
	logID := queueOne(t, f)

	runs := NewTriggerRunService(f.logs, f.wfs, NewNoOpWorkflowExecutor(logger.NewNop()), logger.NewNop())
	require.NoError(t, runs.Run(context.Background(), logID))
	assert.Equal(t, trigger.StatusSucceeded, f.logs.get(logID).Status)
}
