package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triggerflow/dispatch/internal/config"
	"github.com/triggerflow/dispatch/pkg/domain/shared"
	"github.com/triggerflow/dispatch/pkg/domain/tenant"
	"github.com/triggerflow/dispatch/pkg/logger"
)

func TestQueueDispatcherRoute(t *testing.T) {
	d := NewQueueDispatcher(config.QuotaConfig{}, newMockQuota(), testQueues, logger.NewNop())

	tests := []struct {
		name      string
		plan      tenant.Plan
		wantQueue string
		wantLimit int
	}{
		{"sandbox", tenant.PlanSandbox, "triggers:sandbox", DefaultSandboxDailyLimit},
		{"team", tenant.PlanTeam, "triggers:team", DefaultTeamDailyLimit},
		{"professional", tenant.PlanProfessional, "triggers:professional", DefaultProfessionalDailyLimit},
		{"unknown plan falls back to sandbox", tenant.Plan("enterprise"), "triggers:sandbox", DefaultSandboxDailyLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route := d.Route(tt.plan)
			assert.Equal(t, tt.wantQueue, route.QueueName)
			assert.Equal(t, tt.wantLimit, route.DailyLimit)
		})
	}
}

func TestQueueDispatcherLimitOverrides(t *testing.T) {
	d := NewQueueDispatcher(config.QuotaConfig{
		SandboxDailyLimit: 2,
		TeamDailyLimit:    50,
	}, newMockQuota(), testQueues, logger.NewNop())

	assert.Equal(t, 2, d.Route(tenant.PlanSandbox).DailyLimit)
	assert.Equal(t, 50, d.Route(tenant.PlanTeam).DailyLimit)
	// Zero override keeps the default.
	assert.Equal(t, DefaultProfessionalDailyLimit, d.Route(tenant.PlanProfessional).DailyLimit)
}

func TestQueueDispatcherConsume(t *testing.T) {
	quota := newMockQuota()
	d := NewQueueDispatcher(config.QuotaConfig{SandboxDailyLimit: 2}, quota, testQueues, logger.NewNop())

	ten := &tenant.Tenant{
		ID:            shared.NewID(),
		Plan:          tenant.PlanSandbox,
		OwnerTimezone: "America/New_York",
	}

	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		route, result, err := d.Consume(ctx, ten)
		require.NoError(t, err)
		assert.Equal(t, "triggers:sandbox", route.QueueName)
		assert.True(t, result.Consumed)
		assert.Equal(t, int64(i), result.Count)
	}

	_, result, err := d.Consume(ctx, ten)
	require.NoError(t, err)
	assert.False(t, result.Consumed)
	assert.Equal(t, int64(0), result.Remaining)

	// The reset boundary is the owner's local midnight, not UTC's.
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.Equal(t, loc, result.ResetAt.Location())
	assert.Equal(t, 0, result.ResetAt.Hour())

	remaining, resetAt, err := d.Remaining(ctx, ten)
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
	assert.Equal(t, result.ResetAt, resetAt)
}
