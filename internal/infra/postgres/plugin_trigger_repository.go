package postgres

import (
	"context"
	"fmt"

	"github.com/triggerflow/dispatch/pkg/domain/shared"
	"github.com/triggerflow/dispatch/pkg/domain/trigger"
)

// PluginTriggerRepository implements trigger.SubscriptionRepository using
// PostgreSQL.
type PluginTriggerRepository struct {
	db *DB
}

// NewPluginTriggerRepository creates a new PluginTriggerRepository.
func NewPluginTriggerRepository(db *DB) *PluginTriggerRepository {
	return &PluginTriggerRepository{db: db}
}

// ListBySubscriptionAndEvent returns every workflow subscribed to the given
// provider event.
func (r *PluginTriggerRepository) ListBySubscriptionAndEvent(ctx context.Context, subscriptionID, eventName string) ([]*trigger.PluginTrigger, error) {
	query := `
		SELECT id, tenant_id, app_id, node_id, plugin_id,
		       subscription_id, event_name, created_at
		FROM workflow_plugin_triggers
		WHERE subscription_id = $1 AND event_name = $2
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, subscriptionID, eventName)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugin triggers: %w", err)
	}
	defer rows.Close()

	var subs []*trigger.PluginTrigger
	for rows.Next() {
		var (
			pt          trigger.PluginTrigger
			idStr       string
			tenantIDStr string
			appIDStr    string
		)
		if err := rows.Scan(
			&idStr, &tenantIDStr, &appIDStr, &pt.NodeID, &pt.PluginID,
			&pt.SubscriptionID, &pt.EventName, &pt.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan plugin trigger: %w", err)
		}

		if pt.ID, err = shared.IDFromString(idStr); err != nil {
			return nil, fmt.Errorf("invalid plugin trigger id: %w", err)
		}
		if pt.TenantID, err = shared.IDFromString(tenantIDStr); err != nil {
			return nil, fmt.Errorf("invalid tenant id: %w", err)
		}
		if pt.AppID, err = shared.IDFromString(appIDStr); err != nil {
			return nil, fmt.Errorf("invalid app id: %w", err)
		}

		subs = append(subs, &pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plugin triggers: %w", err)
	}

	return subs, nil
}
