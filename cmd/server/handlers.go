package main

import (
	"github.com/triggerflow/dispatch/internal/infra/http"
	"github.com/triggerflow/dispatch/internal/infra/http/handler"
	"github.com/triggerflow/dispatch/internal/infra/postgres"
	"github.com/triggerflow/dispatch/internal/infra/redis"
	"github.com/triggerflow/dispatch/pkg/logger"
	"github.com/triggerflow/dispatch/pkg/validator"
)

// HandlerDeps carries everything handlers need.
type HandlerDeps struct {
	Log         *logger.Logger
	Validator   *validator.Validator
	DB          *postgres.DB
	RedisClient *redis.Client
	Services    *Services
}

// NewHandlers creates all HTTP handlers.
func NewHandlers(deps *HandlerDeps) http.Handlers {
	return http.Handlers{
		Health:  handler.NewHealthHandler(deps.DB, deps.RedisClient),
		Trigger: handler.NewTriggerHandler(deps.Services.Admission, deps.Validator, deps.Log),
		Event:   handler.NewEventHandler(deps.Services.EventRoute, deps.Validator, deps.Log),
		Debug:   handler.NewDebugHandler(deps.Services.Debug, deps.Validator, deps.Log),
	}
}
