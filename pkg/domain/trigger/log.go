package trigger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/triggerflow/dispatch/pkg/domain/shared"
)

// Status represents the lifecycle status of a TriggerLog.
//
// The admission path only ever writes pending, rate_limited and queued;
// running and the terminal outcomes are recorded by the queue worker that
// drives the workflow executor.
type Status string

const (
	StatusPending     Status = "pending"
	StatusQueued      Status = "queued"
	StatusRateLimited Status = "rate_limited"
	StatusRunning     Status = "running"
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusRetrying    Status = "retrying"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusRateLimited, StatusRunning,
		StatusSucceeded, StatusFailed, StatusRetrying:
		return true
	}
	return false
}

// IsTerminal checks if the status is terminal for this row. A retrying row
// is terminal too: the retry continues on a brand-new row.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRateLimited, StatusSucceeded, StatusFailed, StatusRetrying:
		return true
	}
	return false
}

// CanReinvoke reports whether a log in this status may be reinvoked.
func (s Status) CanReinvoke() bool {
	return s == StatusRateLimited || s == StatusFailed
}

// ActorRole identifies the kind of principal that caused a trigger.
type ActorRole string

const (
	ActorRoleAccount ActorRole = "account"
	ActorRoleEndUser ActorRole = "end_user"
)

// Log is the durable record of one dispatch attempt. A reinvoke never
// mutates the original attempt into a new one; it creates a fresh Log row
// carrying a copy of the original's trigger data.
type Log struct {
	ID         shared.ID
	TenantID   shared.ID
	AppID      shared.ID
	WorkflowID shared.ID
	RootNodeID string

	TriggerType Type
	TriggerData []byte // serialized Data, used for retry reconstruction
	Inputs      []byte

	Status    Status
	QueueName string

	// RetryCount only ever increases on a given row and is never reset.
	// Note that the replacement row created by a reinvoke starts its own
	// count at zero: retry depth is observable only by walking the chain of
	// rows sharing the same trigger data, and log consumers depend on that.
	RetryCount int

	TaskID      string
	TriggeredAt *time.Time
	Error       string

	CreatedByRole ActorRole
	CreatedBy     shared.ID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewLog creates a pending dispatch-attempt record.
func NewLog(data *Data, workflowID shared.ID, queueName string, role ActorRole, actorID shared.ID) (*Log, error) {
	if data == nil {
		return nil, shared.NewDomainError("VALIDATION", "trigger data is required", shared.ErrValidation)
	}
	if workflowID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "workflow_id is required", shared.ErrValidation)
	}
	if queueName == "" {
		return nil, shared.NewDomainError("VALIDATION", "queue_name is required", shared.ErrValidation)
	}

	raw, err := data.Marshal()
	if err != nil {
		return nil, err
	}
	inputs, err := marshalInputs(data.Inputs)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Log{
		ID:            shared.NewID(),
		TenantID:      data.TenantID,
		AppID:         data.AppID,
		WorkflowID:    workflowID,
		RootNodeID:    data.RootNodeID,
		TriggerType:   data.TriggerType,
		TriggerData:   raw,
		Inputs:        inputs,
		Status:        StatusPending,
		QueueName:     queueName,
		RetryCount:    0,
		CreatedByRole: role,
		CreatedBy:     actorID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// MarkQueued records successful task submission.
func (l *Log) MarkQueued(taskID string) {
	now := time.Now()
	l.Status = StatusQueued
	l.TaskID = taskID
	l.TriggeredAt = &now
	l.UpdatedAt = now
}

// MarkRateLimited records a quota denial. Terminal for this row.
func (l *Log) MarkRateLimited(message string) {
	l.Status = StatusRateLimited
	l.Error = message
	l.UpdatedAt = time.Now()
}

// MarkRunning records that the worker picked the dispatch up.
func (l *Log) MarkRunning() {
	l.Status = StatusRunning
	l.UpdatedAt = time.Now()
}

// MarkSucceeded records successful workflow completion.
func (l *Log) MarkSucceeded() {
	l.Status = StatusSucceeded
	l.Error = ""
	l.UpdatedAt = time.Now()
}

// MarkFailed records a dispatch or execution failure.
func (l *Log) MarkFailed(message string) {
	l.Status = StatusFailed
	l.Error = message
	l.UpdatedAt = time.Now()
}

// MarkRetrying is the audit marker a reinvoke stamps onto the old row:
// the counter is bumped, the error cleared and triggered_at refreshed. The
// actual retry happens on the new row created from the stored trigger data.
func (l *Log) MarkRetrying() {
	now := time.Now()
	l.Status = StatusRetrying
	l.RetryCount++
	l.Error = ""
	l.TriggeredAt = &now
	l.UpdatedAt = now
}

// Data reconstructs the trigger data stored in the row.
func (l *Log) Data() (*Data, error) {
	return UnmarshalData(l.TriggerData)
}

func marshalInputs(inputs map[string]any) ([]byte, error) {
	raw, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("marshal inputs: %w", err)
	}
	return raw, nil
}

// Errors.
var (
	ErrTriggerLogNotFound = fmt.Errorf("%w: trigger log not found", shared.ErrNotFound)
)
