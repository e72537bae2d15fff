package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/triggerflow/dispatch/pkg/domain/shared"
	"github.com/triggerflow/dispatch/pkg/domain/trigger"
)

// TriggerLogRepository implements trigger.LogRepository using PostgreSQL.
type TriggerLogRepository struct {
	db *DB
}

// NewTriggerLogRepository creates a new TriggerLogRepository.
func NewTriggerLogRepository(db *DB) *TriggerLogRepository {
	return &TriggerLogRepository{db: db}
}

// Create inserts a new trigger log row.
func (r *TriggerLogRepository) Create(ctx context.Context, log *trigger.Log) error {
	query := `
		INSERT INTO workflow_trigger_logs (
			id, tenant_id, app_id, workflow_id, root_node_id,
			trigger_type, trigger_data, inputs,
			status, queue_name, retry_count,
			task_id, triggered_at, error,
			created_by_role, created_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.ID.String(),
		log.TenantID.String(),
		log.AppID.String(),
		log.WorkflowID.String(),
		log.RootNodeID,
		string(log.TriggerType),
		log.TriggerData,
		nullBytes(log.Inputs),
		string(log.Status),
		log.QueueName,
		log.RetryCount,
		nullString(log.TaskID),
		nullTime(log.TriggeredAt),
		nullString(log.Error),
		string(log.CreatedByRole),
		log.CreatedBy.String(),
		log.CreatedAt,
		log.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create trigger log: %w", err)
	}

	return nil
}

// GetByID retrieves a trigger log by ID.
func (r *TriggerLogRepository) GetByID(ctx context.Context, id shared.ID) (*trigger.Log, error) {
	query := r.selectQuery() + " WHERE id = $1"
	row := r.db.QueryRowContext(ctx, query, id.String())
	return r.scanLog(row)
}

// GetByTenantAndID retrieves a trigger log scoped to a tenant.
func (r *TriggerLogRepository) GetByTenantAndID(ctx context.Context, tenantID, id shared.ID) (*trigger.Log, error) {
	query := r.selectQuery() + " WHERE tenant_id = $1 AND id = $2"
	row := r.db.QueryRowContext(ctx, query, tenantID.String(), id.String())
	return r.scanLog(row)
}

// Update persists the mutable fields of a trigger log.
func (r *TriggerLogRepository) Update(ctx context.Context, log *trigger.Log) error {
	query := `
		UPDATE workflow_trigger_logs
		SET status = $2, queue_name = $3, retry_count = $4,
		    task_id = $5, triggered_at = $6, error = $7, updated_at = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		log.ID.String(),
		string(log.Status),
		log.QueueName,
		log.RetryCount,
		nullString(log.TaskID),
		nullTime(log.TriggeredAt),
		nullString(log.Error),
		log.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update trigger log: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return trigger.ErrTriggerLogNotFound
	}

	return nil
}

// ListRecent returns logs matching the filter window, newest first.
func (r *TriggerLogRepository) ListRecent(ctx context.Context, filter trigger.LogFilter) ([]*trigger.Log, error) {
	whereClause, args := r.buildWhereClause(filter)
	query := r.selectQuery()
	if whereClause != "" {
		query += " WHERE " + whereClause
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trigger logs: %w", err)
	}
	defer rows.Close()

	var logs []*trigger.Log
	for rows.Next() {
		log, err := r.scanLogFromRows(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trigger logs: %w", err)
	}

	return logs, nil
}

// CountRecent returns the number of logs matching the filter window.
func (r *TriggerLogRepository) CountRecent(ctx context.Context, filter trigger.LogFilter) (int64, error) {
	whereClause, args := r.buildWhereClause(filter)
	query := "SELECT COUNT(*) FROM workflow_trigger_logs"
	if whereClause != "" {
		query += " WHERE " + whereClause
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count trigger logs: %w", err)
	}
	return total, nil
}

func (r *TriggerLogRepository) selectQuery() string {
	return `
		SELECT id, tenant_id, app_id, workflow_id, root_node_id,
		       trigger_type, trigger_data, inputs,
		       status, queue_name, retry_count,
		       task_id, triggered_at, error,
		       created_by_role, created_by, created_at, updated_at
		FROM workflow_trigger_logs
	`
}

func (r *TriggerLogRepository) buildWhereClause(filter trigger.LogFilter) (string, []any) {
	var conditions []string
	var args []any
	idx := 1

	if !filter.TenantID.IsZero() {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", idx))
		args = append(args, filter.TenantID.String())
		idx++
	}
	if filter.AppID != nil && !filter.AppID.IsZero() {
		conditions = append(conditions, fmt.Sprintf("app_id = $%d", idx))
		args = append(args, filter.AppID.String())
		idx++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", idx))
		args = append(args, string(*filter.Status))
		idx++
	}
	if filter.Since != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, *filter.Since)
		idx++
	}

	return strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TriggerLogRepository) scanLog(row rowScanner) (*trigger.Log, error) {
	var (
		log           trigger.Log
		idStr         string
		tenantIDStr   string
		appIDStr      string
		workflowIDStr string
		triggerType   string
		status        string
		taskID        sql.NullString
		triggeredAt   sql.NullTime
		errMsg        sql.NullString
		createdByRole string
		createdByStr  string
	)

	err := row.Scan(
		&idStr, &tenantIDStr, &appIDStr, &workflowIDStr, &log.RootNodeID,
		&triggerType, &log.TriggerData, &log.Inputs,
		&status, &log.QueueName, &log.RetryCount,
		&taskID, &triggeredAt, &errMsg,
		&createdByRole, &createdByStr, &log.CreatedAt, &log.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trigger.ErrTriggerLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan trigger log: %w", err)
	}

	if log.ID, err = shared.IDFromString(idStr); err != nil {
		return nil, fmt.Errorf("invalid trigger log id: %w", err)
	}
	if log.TenantID, err = shared.IDFromString(tenantIDStr); err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	if log.AppID, err = shared.IDFromString(appIDStr); err != nil {
		return nil, fmt.Errorf("invalid app id: %w", err)
	}
	if log.WorkflowID, err = shared.IDFromString(workflowIDStr); err != nil {
		return nil, fmt.Errorf("invalid workflow id: %w", err)
	}
	if log.CreatedBy, err = shared.IDFromString(createdByStr); err != nil {
		return nil, fmt.Errorf("invalid created_by id: %w", err)
	}

	log.TriggerType = trigger.Type(triggerType)
	log.Status = trigger.Status(status)
	log.TaskID = nullStringValue(taskID)
	log.TriggeredAt = nullTimeValue(triggeredAt)
	log.Error = nullStringValue(errMsg)
	log.CreatedByRole = trigger.ActorRole(createdByRole)

	return &log, nil
}

func (r *TriggerLogRepository) scanLogFromRows(rows *sql.Rows) (*trigger.Log, error) {
	return r.scanLog(rows)
}
