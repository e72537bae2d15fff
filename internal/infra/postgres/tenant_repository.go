package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/triggerflow/dispatch/pkg/domain/shared"
	"github.com/triggerflow/dispatch/pkg/domain/tenant"
)

// TenantRepository implements tenant.Repository using PostgreSQL.
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new TenantRepository.
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// GetByID retrieves a tenant together with its owner's timezone. The join
// runs on every call on purpose: both the plan and the owner timezone may
// change between trigger events and must never be served stale.
func (r *TenantRepository) GetByID(ctx context.Context, id shared.ID) (*tenant.Tenant, error) {
	query := `
		SELECT t.id, t.name, t.plan, t.owner_account_id,
		       COALESCE(a.timezone, 'UTC'),
		       t.status, t.created_at, t.updated_at
		FROM tenants t
		LEFT JOIN accounts a ON a.id = t.owner_account_id
		WHERE t.id = $1
	`

	var (
		t              tenant.Tenant
		idStr          string
		plan           string
		ownerIDStr     string
		status         string
	)

	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&idStr, &t.Name, &plan, &ownerIDStr,
		&t.OwnerTimezone, &status, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	if t.ID, err = shared.IDFromString(idStr); err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	if t.OwnerAccountID, err = shared.IDFromString(ownerIDStr); err != nil {
		return nil, fmt.Errorf("invalid owner account id: %w", err)
	}

	t.Plan, _ = tenant.ParsePlan(plan)
	t.Status = tenant.Status(status)

	return &t, nil
}
