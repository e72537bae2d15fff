package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/triggerflow/dispatch/pkg/domain/shared"
)

// RateLimitError is returned when an admission is denied by the daily
// trigger quota. The trigger log row recording the denial has already been
// persisted when this error is returned.
type RateLimitError struct {
	TenantID     shared.ID
	TriggerLogID shared.ID
	QueueName    string
	Limit        int
	Remaining    int64
	ResetAt      time.Time
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("daily trigger quota of %d exceeded for tenant %s, resets at %s",
		e.Limit, e.TenantID, e.ResetAt.Format(time.RFC3339))
}

// AsRateLimitError extracts a RateLimitError from an error chain.
func AsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// DispatchError is returned when a trigger passed admission but could not
// be handed to the task queue. The trigger log row is marked failed.
type DispatchError struct {
	TriggerLogID shared.ID
	QueueName    string
	Err          error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("failed to dispatch trigger log %s to queue %s: %v",
		e.TriggerLogID, e.QueueName, e.Err)
}

// Unwrap returns the underlying error.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Errors.
var (
	// ErrReinvokeNotAllowed is returned when a reinvoke targets a log whose
	// status is not rate_limited or failed.
	ErrReinvokeNotAllowed = fmt.Errorf("%w: trigger log status does not allow reinvoke", shared.ErrValidation)

	// ErrDebugSessionGone is returned when a listen targets a session that
	// has expired or was never created.
	ErrDebugSessionGone = fmt.Errorf("%w: debug session not found or expired", shared.ErrNotFound)
)
