package main

import (
	"github.com/triggerflow/dispatch/internal/infra/postgres"
)

// Repositories holds all repository instances.
type Repositories struct {
	Tenant        *postgres.TenantRepository
	App           *postgres.AppRepository
	Workflow      *postgres.WorkflowRepository
	TriggerLog    *postgres.TriggerLogRepository
	PluginTrigger *postgres.PluginTriggerRepository
}

// NewRepositories creates all repositories.
func NewRepositories(db *postgres.DB) *Repositories {
	return &Repositories{
		Tenant:        postgres.NewTenantRepository(db),
		App:           postgres.NewAppRepository(db),
		Workflow:      postgres.NewWorkflowRepository(db),
		TriggerLog:    postgres.NewTriggerLogRepository(db),
		PluginTrigger: postgres.NewPluginTriggerRepository(db),
	}
}
