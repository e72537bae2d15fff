package tenant

import (
	"context"

	"github.com/triggerflow/dispatch/pkg/domain/shared"
)

// Repository defines the interface for tenant persistence.
//
// GetByID resolves the owner timezone together with the tenant row; the
// admission path calls it once per admission, deliberately uncached, because
// both the plan and the owner timezone can change between events.
type Repository interface {
	GetByID(ctx context.Context, id shared.ID) (*Tenant, error)
}
