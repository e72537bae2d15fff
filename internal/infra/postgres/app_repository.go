package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/triggerflow/dispatch/pkg/domain/app"
	"github.com/triggerflow/dispatch/pkg/domain/shared"
)

// AppRepository implements app.Repository using PostgreSQL.
type AppRepository struct {
	db *DB
}

// NewAppRepository creates a new AppRepository.
func NewAppRepository(db *DB) *AppRepository {
	return &AppRepository{db: db}
}

// GetByID retrieves an app by ID.
func (r *AppRepository) GetByID(ctx context.Context, id shared.ID) (*app.App, error) {
	query := r.selectQuery() + " WHERE id = $1"
	row := r.db.QueryRowContext(ctx, query, id.String())
	return r.scanApp(row)
}

// GetByTenantAndID retrieves an app scoped to a tenant.
func (r *AppRepository) GetByTenantAndID(ctx context.Context, tenantID, id shared.ID) (*app.App, error) {
	query := r.selectQuery() + " WHERE tenant_id = $1 AND id = $2"
	row := r.db.QueryRowContext(ctx, query, tenantID.String(), id.String())
	return r.scanApp(row)
}

func (r *AppRepository) selectQuery() string {
	return `
		SELECT id, tenant_id, name, description, status,
		       created_by, created_at, updated_at
		FROM apps
	`
}

func (r *AppRepository) scanApp(row rowScanner) (*app.App, error) {
	var (
		a           app.App
		idStr       string
		tenantIDStr string
		description sql.NullString
		status      string
		createdBy   sql.NullString
	)

	err := row.Scan(
		&idStr, &tenantIDStr, &a.Name, &description, &status,
		&createdBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, app.ErrAppNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan app: %w", err)
	}

	if a.ID, err = shared.IDFromString(idStr); err != nil {
		return nil, fmt.Errorf("invalid app id: %w", err)
	}
	if a.TenantID, err = shared.IDFromString(tenantIDStr); err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}

	a.Description = nullStringValue(description)
	a.Status = app.Status(status)
	a.CreatedBy = parseNullID(createdBy)

	return &a, nil
}
