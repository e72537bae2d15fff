package trigger

import (
	"context"
	"time"

	"github.com/triggerflow/dispatch/pkg/domain/shared"
)

// LogFilter represents filtering options for listing trigger logs.
type LogFilter struct {
	TenantID shared.ID
	AppID    *shared.ID
	Status   *Status
	Since    *time.Time
	Limit    int
	Offset   int
}

// LogRepository defines the interface for trigger log persistence.
type LogRepository interface {
	Create(ctx context.Context, log *Log) error
	GetByID(ctx context.Context, id shared.ID) (*Log, error)
	GetByTenantAndID(ctx context.Context, tenantID, id shared.ID) (*Log, error)
	Update(ctx context.Context, log *Log) error

	// ListRecent returns logs created within the filter window, newest
	// first.
	ListRecent(ctx context.Context, filter LogFilter) ([]*Log, error)

	// CountRecent returns the number of logs matching the filter window.
	CountRecent(ctx context.Context, filter LogFilter) (int64, error)
}
