package workflow

import (
	"context"

	"github.com/triggerflow/dispatch/pkg/domain/shared"
)

// Repository defines the interface for workflow persistence.
type Repository interface {
	// GetPublishedByApp returns the most recently published workflow for an
	// app, or ErrNoPublishedWorkflow when none exists.
	GetPublishedByApp(ctx context.Context, appID shared.ID) (*Workflow, error)

	// GetPublishedByID returns a specific published workflow version of an
	// app, or ErrWorkflowNotFound.
	GetPublishedByID(ctx context.Context, appID, workflowID shared.ID) (*Workflow, error)

	// LatestPublishedByApps returns the most recently published workflow per
	// app in one query, keyed by app id string. Apps without a published
	// workflow are simply absent from the result.
	LatestPublishedByApps(ctx context.Context, appIDs []shared.ID) (map[string]*Workflow, error)
}
