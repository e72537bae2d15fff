package main

import (
	"github.com/triggerflow/dispatch/internal/config"
	"github.com/triggerflow/dispatch/internal/infra/jobs"
	"github.com/triggerflow/dispatch/pkg/logger"
)

// NewWorker builds the queue worker consuming the tier queues.
func NewWorker(cfg *config.Config, services *Services, log *logger.Logger) *jobs.Worker {
	handler := jobs.NewTriggerDispatchHandler(services.Runs, log)

	return jobs.NewWorker(jobs.WorkerConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Worker.Concurrency,
	}, handler, log)
}
