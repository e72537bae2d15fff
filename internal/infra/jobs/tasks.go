// Package jobs implements the task queue side of trigger dispatch on Asynq:
// the enqueue client used by the admission path and the worker that drives
// the workflow executor.
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TypeTriggerDispatch is the task type for one queued trigger dispatch.
const TypeTriggerDispatch = "trigger:dispatch"

// Queue names, one per subscription tier. The queue a dispatch lands on is
// decided at admission time and recorded on the trigger log.
const (
	QueueSandbox      = "triggers:sandbox"
	QueueTeam         = "triggers:team"
	QueueProfessional = "triggers:professional"
)

// TriggerDispatchPayload is the entire task payload. Only the log id
// crosses the queue; the worker re-reads the trigger log for inputs, so
// business data is never duplicated into task payloads.
type TriggerDispatchPayload struct {
	WorkflowTriggerLogID string `json:"workflow_trigger_log_id"`
}

// NewTriggerDispatchTask builds the Asynq task for a trigger log.
func NewTriggerDispatchTask(logID string) (*asynq.Task, error) {
	payload, err := json.Marshal(TriggerDispatchPayload{WorkflowTriggerLogID: logID})
	if err != nil {
		return nil, fmt.Errorf("marshal trigger dispatch payload: %w", err)
	}
	return asynq.NewTask(TypeTriggerDispatch, payload), nil
}
