package trigger

import (
	"context"
	"time"

	"github.com/triggerflow/dispatch/pkg/domain/shared"
)

// PluginTrigger is one workflow's subscription to a provider event: when the
// provider fires event EventName on subscription SubscriptionID, the trigger
// node NodeID of the app's latest published workflow should run.
type PluginTrigger struct {
	ID             shared.ID
	TenantID       shared.ID
	AppID          shared.ID
	NodeID         string
	PluginID       string
	SubscriptionID string
	EventName      string
	CreatedAt      time.Time
}

// SubscriptionRepository defines the interface for plugin trigger
// subscription persistence.
type SubscriptionRepository interface {
	// ListBySubscriptionAndEvent returns every workflow subscribed to the
	// given provider event. An empty result is not an error.
	ListBySubscriptionAndEvent(ctx context.Context, subscriptionID, eventName string) ([]*PluginTrigger, error)
}
