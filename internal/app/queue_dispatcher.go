package app

import (
	"context"
	"fmt"
	"time"

	"github.com/triggerflow/dispatch/internal/config"
	"github.com/triggerflow/dispatch/internal/infra/redis"
	"github.com/triggerflow/dispatch/pkg/domain/tenant"
	"github.com/triggerflow/dispatch/pkg/logger"
)

// Default per-tier daily trigger quotas, overridable via QuotaConfig.
const (
	DefaultSandboxDailyLimit      = 5
	DefaultTeamDailyLimit         = 500
	DefaultProfessionalDailyLimit = 10000
)

// TierRoute is the routing entry for one subscription tier: the queue its
// triggers land on and its daily admission limit.
type TierRoute struct {
	Plan       tenant.Plan
	QueueName  string
	DailyLimit int
}

// QuotaConsumer consumes and inspects per-tenant daily quota counters.
// Implemented by redis.QuotaLimiter.
type QuotaConsumer interface {
	Consume(ctx context.Context, tenantID string, limit int, loc *time.Location) (*redis.QuotaResult, error)
	Remaining(ctx context.Context, tenantID string, limit int, loc *time.Location) (int64, error)
	ResetTime(loc *time.Location) time.Time
}

// QueueDispatcher maps subscription tiers to priority queues and accounts
// admissions against the tier's daily quota. The tier set is closed, so the
// mapping is a plain lookup table keyed by plan; adding a tier means adding
// a route here, not subclassing anything.
type QueueDispatcher struct {
	limiter QuotaConsumer
	routes  map[tenant.Plan]TierRoute
	logger  *logger.Logger
}

// NewQueueDispatcher builds the tier routing table. Zero limits in cfg fall
// back to the built-in defaults.
func NewQueueDispatcher(cfg config.QuotaConfig, limiter QuotaConsumer, queues QueueNames, log *logger.Logger) *QueueDispatcher {
	routes := map[tenant.Plan]TierRoute{
		tenant.PlanSandbox: {
			Plan:       tenant.PlanSandbox,
			QueueName:  queues.Sandbox,
			DailyLimit: limitOrDefault(cfg.SandboxDailyLimit, DefaultSandboxDailyLimit),
		},
		tenant.PlanTeam: {
			Plan:       tenant.PlanTeam,
			QueueName:  queues.Team,
			DailyLimit: limitOrDefault(cfg.TeamDailyLimit, DefaultTeamDailyLimit),
		},
		tenant.PlanProfessional: {
			Plan:       tenant.PlanProfessional,
			QueueName:  queues.Professional,
			DailyLimit: limitOrDefault(cfg.ProfessionalDailyLimit, DefaultProfessionalDailyLimit),
		},
	}

	return &QueueDispatcher{
		limiter: limiter,
		routes:  routes,
		logger:  log.With("component", "queue_dispatcher"),
	}
}

// QueueNames carries the queue name per tier. Defined here rather than
// imported so the app layer stays independent of the jobs package.
type QueueNames struct {
	Sandbox      string
	Team         string
	Professional string
}

// Route returns the routing entry for a plan. Unknown plans resolve to the
// sandbox route, the most restrictive tier.
func (d *QueueDispatcher) Route(plan tenant.Plan) TierRoute {
	if route, ok := d.routes[plan]; ok {
		return route
	}
	return d.routes[tenant.PlanSandbox]
}

// Consume accounts one admission against the tenant's daily quota and
// returns the tier route together with the quota decision. The counter is
// incremented even when the decision is a denial; denied admissions are
// never refunded.
func (d *QueueDispatcher) Consume(ctx context.Context, t *tenant.Tenant) (TierRoute, *redis.QuotaResult, error) {
	route := d.Route(t.Plan)

	result, err := d.limiter.Consume(ctx, t.ID.String(), route.DailyLimit, t.OwnerLocation())
	if err != nil {
		return route, nil, fmt.Errorf("consume quota for tenant %s: %w", t.ID, err)
	}
	return route, result, nil
}

// Remaining reports the executions left for the tenant's owner-local day
// and when the counter resets, without consuming one.
func (d *QueueDispatcher) Remaining(ctx context.Context, t *tenant.Tenant) (int64, time.Time, error) {
	route := d.Route(t.Plan)
	loc := t.OwnerLocation()

	remaining, err := d.limiter.Remaining(ctx, t.ID.String(), route.DailyLimit, loc)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("quota remaining for tenant %s: %w", t.ID, err)
	}
	return remaining, d.limiter.ResetTime(loc), nil
}

func limitOrDefault(limit, fallback int) int {
	if limit > 0 {
		return limit
	}
	return fallback
}
