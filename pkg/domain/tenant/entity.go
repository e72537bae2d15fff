// Package tenant contains the tenant aggregate: an isolated workspace whose
// trigger quota and queue tier are tracked independently of all other tenants.
package tenant

import (
	"fmt"
	"time"

	"github.com/triggerflow/dispatch/pkg/domain/shared"
)

// Status represents the tenant status.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// IsValid returns true if the status is valid.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusSuspended
}

// Tenant represents a workspace.
type Tenant struct {
	ID   shared.ID
	Name string
	Plan Plan

	// OwnerAccountID is the account that owns the workspace. The owner's
	// local calendar day is the boundary for the daily trigger quota.
	OwnerAccountID shared.ID

	// OwnerTimezone is the IANA timezone of the owner account, resolved
	// together with the tenant row. Owners can change timezone, so callers
	// must re-read it per admission call rather than hold on to it.
	OwnerTimezone string

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnerLocation parses the owner timezone. Falls back to UTC when the
// stored value is empty or invalid.
func (t *Tenant) OwnerLocation() *time.Location {
	if t.OwnerTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.OwnerTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Errors.
var (
	ErrTenantNotFound = fmt.Errorf("%w: tenant not found", shared.ErrNotFound)
)
