// Package app contains the application aggregate. An application is the
// container workflows are published under; triggers always fire against an
// application and resolve to one of its published workflows.
package app

import (
	"fmt"
	"time"

	"github.com/triggerflow/dispatch/pkg/domain/shared"
)

// Status represents the application status.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusArchived Status = "archived"
)

// IsValid returns true if the status is valid.
func (s Status) IsValid() bool {
	return s == StatusNormal || s == StatusArchived
}

// App represents an application owned by a tenant.
type App struct {
	ID          shared.ID
	TenantID    shared.ID
	Name        string
	Description string
	Status      Status
	CreatedBy   *shared.ID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Errors.
var (
	ErrAppNotFound = fmt.Errorf("%w: app not found", shared.ErrNotFound)
)
