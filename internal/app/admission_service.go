// Package app contains the application services of the dispatch subsystem:
// trigger admission and queueing, provider event fan-out, worker-side runs
// and debug session brokering.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/triggerflow/dispatch/internal/metrics"
	appdomain "github.com/triggerflow/dispatch/pkg/domain/app"
	"github.com/triggerflow/dispatch/pkg/domain/shared"
	"github.com/triggerflow/dispatch/pkg/domain/tenant"
	"github.com/triggerflow/dispatch/pkg/domain/trigger"
	"github.com/triggerflow/dispatch/pkg/domain/workflow"
	"github.com/triggerflow/dispatch/pkg/logger"
	"github.com/triggerflow/dispatch/pkg/pagination"
)

// maxLogsPerPage caps one page of the recent-log listing.
const maxLogsPerPage = 100

// TriggerEnqueuer submits trigger dispatch tasks to a named queue and
// returns the broker task id. Implemented by the jobs client adapter.
type TriggerEnqueuer interface {
	EnqueueTriggerDispatch(ctx context.Context, queueName, logID string) (string, error)
}

// AsyncTriggerResult is the admission outcome returned to the caller of an
// asynchronous trigger. The workflow has not run yet; the result only says
// the dispatch was durably recorded and queued.
type AsyncTriggerResult struct {
	TriggerLogID shared.ID
	WorkflowID   shared.ID
	TaskID       string
	QueueName    string
	Status       trigger.Status
	Remaining    int64
	ResetAt      time.Time
}

// AdmissionService admits asynchronous workflow triggers: it resolves the
// target workflow, records the attempt durably, charges the tenant's daily
// quota and hands admitted dispatches to the task queue.
type AdmissionService struct {
	tenants    tenant.Repository
	apps       appdomain.Repository
	workflows  workflow.Repository
	logs       trigger.LogRepository
	dispatcher *QueueDispatcher
	enqueuer   TriggerEnqueuer
	logger     *logger.Logger
}

// NewAdmissionService creates a new AdmissionService.
func NewAdmissionService(
	tenants tenant.Repository,
	apps appdomain.Repository,
	workflows workflow.Repository,
	logs trigger.LogRepository,
	dispatcher *QueueDispatcher,
	enqueuer TriggerEnqueuer,
	log *logger.Logger,
) *AdmissionService {
	return &AdmissionService{
		tenants:    tenants,
		apps:       apps,
		workflows:  workflows,
		logs:       logs,
		dispatcher: dispatcher,
		enqueuer:   enqueuer,
		logger:     log.With("component", "admission_service"),
	}
}

// TriggerWorkflowAsync admits one trigger firing. Exactly one trigger log
// row is written per call, whatever the outcome:
//
//   - quota denied: the row ends rate_limited and a *RateLimitError is
//     returned; the quota counter stays incremented.
//   - enqueue failed: the row ends failed and a *DispatchError is returned.
//   - admitted: the row ends queued and the result carries the task id.
//
// The tenant row is re-read on every call because both the plan and the
// owner timezone may change between events.
func (s *AdmissionService) TriggerWorkflowAsync(ctx context.Context, data *trigger.Data, role trigger.ActorRole, actorID shared.ID) (*AsyncTriggerResult, error) {
	if data == nil {
		return nil, shared.NewDomainError("VALIDATION", "trigger data is required", shared.ErrValidation)
	}

	t, err := s.tenants.GetByID(ctx, data.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", data.TenantID, err)
	}

	if _, err := s.apps.GetByTenantAndID(ctx, t.ID, data.AppID); err != nil {
		return nil, fmt.Errorf("load app %s: %w", data.AppID, err)
	}

	wf, err := s.resolveWorkflow(ctx, data)
	if err != nil {
		return nil, err
	}

	route := s.dispatcher.Route(t.Plan)

	// The pending row goes in before the quota is charged so a denial is
	// observable as a rate_limited row, not as a silently dropped event.
	logEntry, err := trigger.NewLog(data, wf.ID, route.QueueName, role, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.logs.Create(ctx, logEntry); err != nil {
		return nil, fmt.Errorf("create trigger log: %w", err)
	}

	_, quota, err := s.dispatcher.Consume(ctx, t)
	if err != nil {
		logEntry.MarkFailed(fmt.Sprintf("quota check failed: %v", err))
		s.updateLog(ctx, logEntry)
		return nil, err
	}

	if !quota.Consumed {
		logEntry.MarkRateLimited(fmt.Sprintf("daily trigger quota of %d exceeded for queue %s", route.DailyLimit, route.QueueName))
		s.updateLog(ctx, logEntry)
		metrics.TriggerAdmissionsTotal.WithLabelValues(route.QueueName, "rate_limited").Inc()
		metrics.QuotaDenialsTotal.WithLabelValues(route.QueueName).Inc()

		return nil, &RateLimitError{
			TenantID:     t.ID,
			TriggerLogID: logEntry.ID,
			QueueName:    route.QueueName,
			Limit:        route.DailyLimit,
			Remaining:    quota.Remaining,
			ResetAt:      quota.ResetAt,
		}
	}

	taskID, err := s.enqueuer.EnqueueTriggerDispatch(ctx, route.QueueName, logEntry.ID.String())
	if err != nil {
		logEntry.MarkFailed(fmt.Sprintf("enqueue failed: %v", err))
		s.updateLog(ctx, logEntry)
		metrics.TriggerAdmissionsTotal.WithLabelValues(route.QueueName, "failed").Inc()

		return nil, &DispatchError{
			TriggerLogID: logEntry.ID,
			QueueName:    route.QueueName,
			Err:          err,
		}
	}

	logEntry.MarkQueued(taskID)
	if err := s.logs.Update(ctx, logEntry); err != nil {
		// The task is already on the queue; the worker re-reads the row by
		// id, so a stale status here heals on the next update.
		s.logger.Error("failed to mark trigger log queued",
			"trigger_log_id", logEntry.ID,
			"error", err,
		)
	}
	metrics.TriggerAdmissionsTotal.WithLabelValues(route.QueueName, "queued").Inc()

	s.logger.Info("trigger admitted",
		"trigger_log_id", logEntry.ID,
		"tenant_id", t.ID,
		"workflow_id", wf.ID,
		"queue", route.QueueName,
		"quota_remaining", quota.Remaining,
	)

	return &AsyncTriggerResult{
		TriggerLogID: logEntry.ID,
		WorkflowID:   wf.ID,
		TaskID:       taskID,
		QueueName:    route.QueueName,
		Status:       logEntry.Status,
		Remaining:    quota.Remaining,
		ResetAt:      quota.ResetAt,
	}, nil
}

// ReinvokeTrigger retries a rate-limited or failed dispatch. The original
// row is stamped retrying with its retry counter bumped; the retry itself
// runs as a brand-new admission built from the stored trigger data, so it
// gets a fresh row with a zero retry count and is charged against today's
// quota like any other trigger.
func (s *AdmissionService) ReinvokeTrigger(ctx context.Context, tenantID, logID shared.ID, role trigger.ActorRole, actorID shared.ID) (*AsyncTriggerResult, error) {
	original, err := s.logs.GetByTenantAndID(ctx, tenantID, logID)
	if err != nil {
		return nil, err
	}

	if !original.Status.CanReinvoke() {
		return nil, fmt.Errorf("%w: status is %s", ErrReinvokeNotAllowed, original.Status)
	}

	data, err := original.Data()
	if err != nil {
		return nil, fmt.Errorf("reconstruct trigger data for log %s: %w", logID, err)
	}

	original.MarkRetrying()
	if err := s.logs.Update(ctx, original); err != nil {
		return nil, fmt.Errorf("mark trigger log retrying: %w", err)
	}
	metrics.TriggerReinvokesTotal.Inc()

	s.logger.Info("trigger reinvoked",
		"trigger_log_id", original.ID,
		"tenant_id", tenantID,
		"retry_count", original.RetryCount,
	)

	return s.TriggerWorkflowAsync(ctx, data, role, actorID)
}

// GetTriggerLog returns one trigger log scoped to a tenant.
func (s *AdmissionService) GetTriggerLog(ctx context.Context, tenantID, logID shared.ID) (*trigger.Log, error) {
	return s.logs.GetByTenantAndID(ctx, tenantID, logID)
}

// ListRecentLogs returns trigger logs created within the last window,
// newest first.
func (s *AdmissionService) ListRecentLogs(ctx context.Context, tenantID shared.ID, window time.Duration, appID *shared.ID, status *trigger.Status, page pagination.Pagination) (pagination.Result[*trigger.Log], error) {
	page = page.Normalize(maxLogsPerPage)
	since := time.Now().Add(-window)

	filter := trigger.LogFilter{
		TenantID: tenantID,
		AppID:    appID,
		Status:   status,
		Since:    &since,
		Limit:    page.PerPage,
		Offset:   page.Offset(),
	}

	logs, err := s.logs.ListRecent(ctx, filter)
	if err != nil {
		return pagination.Result[*trigger.Log]{}, fmt.Errorf("list trigger logs: %w", err)
	}
	total, err := s.logs.CountRecent(ctx, filter)
	if err != nil {
		return pagination.Result[*trigger.Log]{}, fmt.Errorf("count trigger logs: %w", err)
	}

	return pagination.NewResult(logs, total, page), nil
}

// QuotaStatus reports the executions left today for a tenant and when the
// counter resets, without consuming one.
func (s *AdmissionService) QuotaStatus(ctx context.Context, tenantID shared.ID) (int64, time.Time, error) {
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return 0, time.Time{}, err
	}
	return s.dispatcher.Remaining(ctx, t)
}

// resolveWorkflow locates the published workflow the trigger targets: the
// pinned version when the trigger data names one, otherwise the app's
// latest published workflow.
func (s *AdmissionService) resolveWorkflow(ctx context.Context, data *trigger.Data) (*workflow.Workflow, error) {
	if data.WorkflowID != nil && !data.WorkflowID.IsZero() {
		wf, err := s.workflows.GetPublishedByID(ctx, data.AppID, *data.WorkflowID)
		if err != nil {
			return nil, fmt.Errorf("load workflow %s: %w", data.WorkflowID, err)
		}
		return wf, nil
	}

	wf, err := s.workflows.GetPublishedByApp(ctx, data.AppID)
	if err != nil {
		if errors.Is(err, workflow.ErrNoPublishedWorkflow) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve published workflow for app %s: %w", data.AppID, err)
	}
	return wf, nil
}

func (s *AdmissionService) updateLog(ctx context.Context, logEntry *trigger.Log) {
	if err := s.logs.Update(ctx, logEntry); err != nil {
		s.logger.Error("failed to update trigger log",
			"trigger_log_id", logEntry.ID,
			"status", logEntry.Status,
			"error", err,
		)
	}
}
