package main

import (
	"fmt"

	"github.com/triggerflow/dispatch/internal/app"
	"github.com/triggerflow/dispatch/internal/config"
	"github.com/triggerflow/dispatch/internal/infra/jobs"
	"github.com/triggerflow/dispatch/internal/infra/redis"
	"github.com/triggerflow/dispatch/pkg/logger"
)

// Services holds all service instances.
type Services struct {
	Dispatcher *app.QueueDispatcher
	Admission  *app.AdmissionService
	EventRoute *app.EventRouter
	Debug      *app.DebugService
	Runs       *app.TriggerRunService
}

// ServiceDeps carries everything services need.
type ServiceDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Repos       *Repositories
	RedisClient *redis.Client
	JobClient   *jobs.Client
}

// NewServices wires the application services.
func NewServices(deps *ServiceDeps) (*Services, error) {
	limiter, err := redis.NewQuotaLimiter(deps.RedisClient, "quota:triggers", deps.Config.Quota.ExpirySlack, deps.Log)
	if err != nil {
		return nil, fmt.Errorf("create quota limiter: %w", err)
	}

	dispatcher := app.NewQueueDispatcher(deps.Config.Quota, limiter, app.QueueNames{
		Sandbox:      jobs.QueueSandbox,
		Team:         jobs.QueueTeam,
		Professional: jobs.QueueProfessional,
	}, deps.Log)

	admission := app.NewAdmissionService(
		deps.Repos.Tenant,
		deps.Repos.App,
		deps.Repos.Workflow,
		deps.Repos.TriggerLog,
		dispatcher,
		deps.JobClient,
		deps.Log,
	)

	debugStore := redis.NewDebugSessionStore(deps.RedisClient, deps.Log)
	debug := app.NewDebugService(debugStore, deps.Config.Debug, deps.Log)

	eventRouter := app.NewEventRouter(
		deps.Repos.PluginTrigger,
		deps.Repos.Workflow,
		app.PassthroughTriggerProvider{},
		admission,
		debug,
		deps.Log,
	)

	runs := app.NewTriggerRunService(
		deps.Repos.TriggerLog,
		deps.Repos.Workflow,
		app.NewNoOpWorkflowExecutor(deps.Log),
		deps.Log,
	)

	return &Services{
		Dispatcher: dispatcher,
		Admission:  admission,
		EventRoute: eventRouter,
		Debug:      debug,
		Runs:       runs,
	}, nil
}
