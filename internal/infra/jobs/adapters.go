package jobs

import "github.com/triggerflow/dispatch/internal/app"

// The job client is the queue side of the admission service.
var _ app.TriggerEnqueuer = (*Client)(nil)
