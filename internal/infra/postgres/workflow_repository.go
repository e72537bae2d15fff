package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/triggerflow/dispatch/pkg/domain/shared"
	"github.com/triggerflow/dispatch/pkg/domain/workflow"
)

// WorkflowRepository implements workflow.Repository using PostgreSQL.
type WorkflowRepository struct {
	db *DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// GetPublishedByApp returns the most recently published workflow for an app.
func (r *WorkflowRepository) GetPublishedByApp(ctx context.Context, appID shared.ID) (*workflow.Workflow, error) {
	query := r.selectQuery() + `
		WHERE app_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, query, appID.String(), string(workflow.StatusPublished))
	wf, err := r.scanWorkflow(row)
	if errors.Is(err, workflow.ErrWorkflowNotFound) {
		return nil, workflow.ErrNoPublishedWorkflow
	}
	return wf, err
}

// GetPublishedByID returns a specific published workflow version of an app.
func (r *WorkflowRepository) GetPublishedByID(ctx context.Context, appID, workflowID shared.ID) (*workflow.Workflow, error) {
	query := r.selectQuery() + " WHERE app_id = $1 AND id = $2 AND status = $3"
	row := r.db.QueryRowContext(ctx, query, appID.String(), workflowID.String(), string(workflow.StatusPublished))
	return r.scanWorkflow(row)
}

// LatestPublishedByApps resolves the newest published workflow per app in a
// single query using a max-created-at window, instead of one query per app.
func (r *WorkflowRepository) LatestPublishedByApps(ctx context.Context, appIDs []shared.ID) (map[string]*workflow.Workflow, error) {
	result := make(map[string]*workflow.Workflow, len(appIDs))
	if len(appIDs) == 0 {
		return result, nil
	}

	ids := make([]string, len(appIDs))
	for i, id := range appIDs {
		ids[i] = id.String()
	}

	query := `
		SELECT DISTINCT ON (app_id)
		       id, app_id, tenant_id, version, status, graph,
		       created_by, created_at, updated_at
		FROM workflows
		WHERE app_id = ANY($1) AND status = $2
		ORDER BY app_id, created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids), string(workflow.StatusPublished))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve latest published workflows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		wf, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		result[wf.AppID.String()] = wf
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
	}

	return result, nil
}

func (r *WorkflowRepository) selectQuery() string {
	return `
		SELECT id, app_id, tenant_id, version, status, graph,
		       created_by, created_at, updated_at
		FROM workflows
	`
}

func (r *WorkflowRepository) scanWorkflow(row rowScanner) (*workflow.Workflow, error) {
	var (
		wf          workflow.Workflow
		idStr       string
		appIDStr    string
		tenantIDStr string
		status      string
		graphRaw    []byte
		createdBy   sql.NullString
	)

	err := row.Scan(
		&idStr, &appIDStr, &tenantIDStr, &wf.Version, &status, &graphRaw,
		&createdBy, &wf.CreatedAt, &wf.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workflow.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if wf.ID, err = shared.IDFromString(idStr); err != nil {
		return nil, fmt.Errorf("invalid workflow id: %w", err)
	}
	if wf.AppID, err = shared.IDFromString(appIDStr); err != nil {
		return nil, fmt.Errorf("invalid app id: %w", err)
	}
	if wf.TenantID, err = shared.IDFromString(tenantIDStr); err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}

	wf.Status = workflow.Status(status)
	wf.CreatedBy = parseNullID(createdBy)

	if len(graphRaw) > 0 {
		var graph workflow.Graph
		if err := json.Unmarshal(graphRaw, &graph); err != nil {
			return nil, fmt.Errorf("failed to decode workflow graph: %w", err)
		}
		wf.Graph = &graph
	}

	return &wf, nil
}
