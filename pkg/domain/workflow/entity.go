// Package workflow contains the published workflow aggregate and its node
// graph. The dispatch subsystem never executes the graph itself; it only
// resolves published versions and locates trigger nodes inside them.
package workflow

import (
	"fmt"
	"time"

	"github.com/triggerflow/dispatch/pkg/domain/shared"
)

// Status represents the workflow version status.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// IsValid returns true if the status is valid.
func (s Status) IsValid() bool {
	return s == StatusDraft || s == StatusPublished
}

// Workflow represents one version of an application's workflow.
type Workflow struct {
	ID       shared.ID
	AppID    shared.ID
	TenantID shared.ID
	Version  string
	Status   Status
	Graph    *Graph

	CreatedBy *shared.ID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPublished returns true if this version is published.
func (w *Workflow) IsPublished() bool {
	return w.Status == StatusPublished
}

// Errors.
var (
	ErrWorkflowNotFound    = fmt.Errorf("%w: workflow not found", shared.ErrNotFound)
	ErrNoPublishedWorkflow = fmt.Errorf("%w: app has no published workflow", shared.ErrNotFound)
)
