package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/triggerflow/dispatch/internal/app"
	"github.com/triggerflow/dispatch/pkg/domain/shared"
	"github.com/triggerflow/dispatch/pkg/logger"
)

// TriggerDispatchHandler handles trigger dispatch tasks.
type TriggerDispatchHandler struct {
	runs   *app.TriggerRunService
	logger *logger.Logger
}

// NewTriggerDispatchHandler creates a new TriggerDispatchHandler.
func NewTriggerDispatchHandler(runs *app.TriggerRunService, log *logger.Logger) *TriggerDispatchHandler {
	return &TriggerDispatchHandler{
		runs:   runs,
		logger: log.With("component", "trigger_dispatch_handler"),
	}
}

// HandleTriggerDispatch runs one queued dispatch. The payload carries only
// the trigger log id; all run state lives in the row.
func (h *TriggerDispatchHandler) HandleTriggerDispatch(ctx context.Context, task *asynq.Task) error {
	var payload TriggerDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal trigger dispatch payload: %w", err)
	}

	logID, err := shared.IDFromString(payload.WorkflowTriggerLogID)
	if err != nil {
		return fmt.Errorf("invalid trigger log id %q: %w", payload.WorkflowTriggerLogID, err)
	}

	h.logger.Info("processing trigger dispatch",
		"workflow_trigger_log_id", logID,
	)
	return h.runs.Run(ctx, logID)
}
