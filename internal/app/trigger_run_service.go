package app

import (
	"context"
	"fmt"
	"time"

	"github.com/triggerflow/dispatch/internal/metrics"
	"github.com/triggerflow/dispatch/pkg/domain/shared"
	"github.com/triggerflow/dispatch/pkg/domain/trigger"
	"github.com/triggerflow/dispatch/pkg/domain/workflow"
	"github.com/triggerflow/dispatch/pkg/logger"
)

// WorkflowRun is everything the executor needs to run one dispatch.
type WorkflowRun struct {
	Log      *trigger.Log
	Data     *trigger.Data
	Workflow *workflow.Workflow
}

// WorkflowExecutor runs a workflow graph. The dispatch subsystem does not
// execute graphs itself; the executor is the integration point to the
// engine that does.
type WorkflowExecutor interface {
	Execute(ctx context.Context, run *WorkflowRun) error
}

// NoOpWorkflowExecutor acknowledges runs without executing anything.
// Used when no engine is wired, so dispatches still complete their
// lifecycle end to end.
type NoOpWorkflowExecutor struct {
	logger *logger.Logger
}

// NewNoOpWorkflowExecutor creates a new NoOpWorkflowExecutor.
func NewNoOpWorkflowExecutor(log *logger.Logger) *NoOpWorkflowExecutor {
	return &NoOpWorkflowExecutor{logger: log.With("component", "noop_executor")}
}

// Execute logs the run and succeeds.
func (e *NoOpWorkflowExecutor) Execute(_ context.Context, run *WorkflowRun) error {
	e.logger.Info("workflow run acknowledged without execution",
		"trigger_log_id", run.Log.ID,
		"workflow_id", run.Workflow.ID,
	)
	return nil
}

var _ WorkflowExecutor = (*NoOpWorkflowExecutor)(nil)

// TriggerRunService drives queued dispatches through execution. It is the
// consumer side of the tier queues: it re-reads the trigger log named in
// the task payload, hands the run to the executor and records the terminal
// status.
type TriggerRunService struct {
	logs      trigger.LogRepository
	workflows workflow.Repository
	executor  WorkflowExecutor
	logger    *logger.Logger
}

// NewTriggerRunService creates a new TriggerRunService.
func NewTriggerRunService(
	logs trigger.LogRepository,
	workflows workflow.Repository,
	executor WorkflowExecutor,
	log *logger.Logger,
) *TriggerRunService {
	return &TriggerRunService{
		logs:      logs,
		workflows: workflows,
		executor:  executor,
		logger:    log.With("component", "trigger_run_service"),
	}
}

// Run executes the dispatch recorded in one trigger log. Everything needed
// for the run is reconstructed from the row, never from the task payload,
// which carries only the log id. A row that is no longer queued is skipped:
// the broker may redeliver, the run must not repeat.
func (s *TriggerRunService) Run(ctx context.Context, logID shared.ID) error {
	logEntry, err := s.logs.GetByID(ctx, logID)
	if err != nil {
		return fmt.Errorf("load trigger log %s: %w", logID, err)
	}

	if logEntry.Status != trigger.StatusQueued {
		s.logger.Warn("skipping trigger run, log is not queued",
			"trigger_log_id", logID,
			"status", logEntry.Status,
		)
		return nil
	}

	data, err := logEntry.Data()
	if err != nil {
		logEntry.MarkFailed(fmt.Sprintf("corrupt trigger data: %v", err))
		s.updateLog(ctx, logEntry)
		return fmt.Errorf("reconstruct trigger data for log %s: %w", logID, err)
	}

	wf, err := s.workflows.GetPublishedByID(ctx, logEntry.AppID, logEntry.WorkflowID)
	if err != nil {
		logEntry.MarkFailed(fmt.Sprintf("workflow no longer available: %v", err))
		s.updateLog(ctx, logEntry)
		metrics.TriggerRunsTotal.WithLabelValues(logEntry.QueueName, string(trigger.StatusFailed)).Inc()
		return fmt.Errorf("load workflow %s: %w", logEntry.WorkflowID, err)
	}

	logEntry.MarkRunning()
	if err := s.logs.Update(ctx, logEntry); err != nil {
		return fmt.Errorf("mark trigger log running: %w", err)
	}

	start := time.Now()
	runErr := s.executor.Execute(ctx, &WorkflowRun{
		Log:      logEntry,
		Data:     data,
		Workflow: wf,
	})
	metrics.TriggerRunDuration.WithLabelValues(logEntry.QueueName).Observe(time.Since(start).Seconds())

	if runErr != nil {
		logEntry.MarkFailed(runErr.Error())
		s.updateLog(ctx, logEntry)
		metrics.TriggerRunsTotal.WithLabelValues(logEntry.QueueName, string(trigger.StatusFailed)).Inc()

		s.logger.Error("trigger run failed",
			"trigger_log_id", logID,
			"workflow_id", wf.ID,
			"error", runErr,
		)
		// The row already records the failure; retries happen only as
		// explicit reinvokes, so the task itself is done.
		return nil
	}

	logEntry.MarkSucceeded()
	s.updateLog(ctx, logEntry)
	metrics.TriggerRunsTotal.WithLabelValues(logEntry.QueueName, string(trigger.StatusSucceeded)).Inc()

	s.logger.Info("trigger run succeeded",
		"trigger_log_id", logID,
		"workflow_id", wf.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *TriggerRunService) updateLog(ctx context.Context, logEntry *trigger.Log) {
	if err := s.logs.Update(ctx, logEntry); err != nil {
		s.logger.Error("failed to update trigger log",
			"trigger_log_id", logEntry.ID,
			"status", logEntry.Status,
			"error", err,
		)
	}
}
