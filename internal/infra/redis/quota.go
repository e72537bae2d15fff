package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/triggerflow/dispatch/pkg/logger"
)

// consumeScript increments the tenant's daily counter and sets the key TTL
// on first use of the day. The counter is deliberately incremented even when
// the result exceeds the limit: denied attempts still count against the day,
// so retrying a rejected trigger is never free.
var consumeScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return count
`)

// QuotaLimiter is the per-tenant daily trigger execution counter. The day
// boundary is the tenant owner's local midnight, and the atomic
// increment-with-expiry runs in Redis so concurrent admissions for the same
// tenant from any number of processes stay correct.
type QuotaLimiter struct {
	client      *Client
	keyPrefix   string
	expirySlack time.Duration
	logger      *logger.Logger
}

// QuotaResult describes one consume attempt.
type QuotaResult struct {
	// Consumed is true when the post-increment count is within the limit.
	Consumed bool

	// Count is the counter value after the increment.
	Count int64

	// Remaining is the number of executions left for the day.
	Remaining int64

	// ResetAt is the tenant-local midnight following now.
	ResetAt time.Time
}

// NewQuotaLimiter creates a daily quota limiter. expirySlack is added to
// the time left until local midnight when setting the counter TTL, so the
// counter never disappears before the business day is over.
func NewQuotaLimiter(client *Client, keyPrefix string, expirySlack time.Duration, log *logger.Logger) (*QuotaLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if keyPrefix == "" {
		return nil, errors.New("key prefix is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if expirySlack < 0 {
		expirySlack = 0
	}
	return &QuotaLimiter{
		client:      client,
		keyPrefix:   keyPrefix,
		expirySlack: expirySlack,
		logger:      log.With("component", "quota_limiter"),
	}, nil
}

// Consume atomically increments the tenant's counter for the owner-local
// current day and reports whether the post-increment value is within limit.
// When over limit the increment is not rolled back.
func (q *QuotaLimiter) Consume(ctx context.Context, tenantID string, limit int, loc *time.Location) (*QuotaResult, error) {
	if tenantID == "" {
		return nil, errors.New("tenant id is required")
	}
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	if loc == nil {
		loc = time.UTC
	}

	now := time.Now().In(loc)
	resetAt := NextLocalMidnight(now, loc)
	ttl := resetAt.Sub(now) + q.expirySlack

	count, err := consumeScript.Run(ctx, q.client.client,
		[]string{q.dayKey(tenantID, now)}, ttl.Milliseconds()).Int64()
	if err != nil {
		return nil, fmt.Errorf("quota consume: %w", err)
	}

	result := &QuotaResult{
		Consumed:  count <= int64(limit),
		Count:     count,
		Remaining: max(int64(limit)-count, 0),
		ResetAt:   resetAt,
	}

	if !result.Consumed {
		q.logger.Debug("daily trigger quota exceeded",
			"tenant_id", tenantID,
			"count", count,
			"limit", limit,
			"reset_at", resetAt,
		)
	}

	return result, nil
}

// Remaining returns the number of executions left for the owner-local
// current day without consuming one.
func (q *QuotaLimiter) Remaining(ctx context.Context, tenantID string, limit int, loc *time.Location) (int64, error) {
	if tenantID == "" {
		return 0, errors.New("tenant id is required")
	}
	if loc == nil {
		loc = time.UTC
	}

	now := time.Now().In(loc)
	count, err := q.client.client.Get(ctx, q.dayKey(tenantID, now)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("quota remaining: %w", err)
	}

	return max(int64(limit)-count, 0), nil
}

// ResetTime returns the tenant-local midnight following now.
func (q *QuotaLimiter) ResetTime(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	return NextLocalMidnight(now, loc)
}

// dayKey builds the counter key for the tenant's current local day.
func (q *QuotaLimiter) dayKey(tenantID string, localNow time.Time) string {
	return fmt.Sprintf("%s:%s:%s", q.keyPrefix, tenantID, localNow.Format("2006-01-02"))
}

// NextLocalMidnight returns the first midnight in loc strictly after now.
func NextLocalMidnight(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}
