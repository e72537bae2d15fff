package app

import (
	"context"

	"github.com/triggerflow/dispatch/pkg/domain/shared"
)

// Repository defines the interface for application persistence.
type Repository interface {
	GetByID(ctx context.Context, id shared.ID) (*App, error)
	GetByTenantAndID(ctx context.Context, tenantID, id shared.ID) (*App, error)
}
