package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/triggerflow/dispatch/pkg/logger"
)

// Client enqueues trigger dispatch tasks onto the tier queues.
type Client struct {
	client *asynq.Client
	logger *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewClient creates a new job client for enqueueing tasks.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &Client{
		client: client,
		logger: log.With("component", "job_client"),
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueTriggerDispatch submits a trigger dispatch to the named queue and
// returns the task id. Retries at the queue level are disabled: a retry of
// a failed dispatch is an explicit reinvoke producing a new trigger log,
// never an implicit re-delivery of the same one.
func (c *Client) EnqueueTriggerDispatch(ctx context.Context, queueName, logID string) (string, error) {
	task, err := NewTriggerDispatchTask(logID)
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.MaxRetry(0),
	)
	if err != nil {
		c.logger.Error("failed to enqueue trigger dispatch",
			"workflow_trigger_log_id", logID,
			"queue", queueName,
			"error", err,
		)
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("trigger dispatch queued",
		"task_id", info.ID,
		"workflow_trigger_log_id", logID,
		"queue", info.Queue,
	)
	return info.ID, nil
}
