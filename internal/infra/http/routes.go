package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/triggerflow/dispatch/internal/infra/http/handler"
	"github.com/triggerflow/dispatch/internal/infra/http/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Health  *handler.HealthHandler
	Trigger *handler.TriggerHandler
	Event   *handler.EventHandler
	Debug   *handler.DebugHandler
}

// RegisterRoutes mounts all routes on the server's router.
func RegisterRoutes(s *Server, h Handlers) {
	r := s.Router()

	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Provider callbacks carry no tenant header; the subscription id
		// is the only identity a provider knows.
		r.Post("/events/{subscriptionID}", h.Event.HandleEvent)
		r.Post("/events/{subscriptionID}/batch", h.Event.HandleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Tenant())

			r.Post("/apps/{appID}/trigger", h.Trigger.Trigger)
			r.Get("/quota", h.Trigger.Quota)

			r.Route("/trigger-logs", func(r chi.Router) {
				r.Get("/", h.Trigger.List)
				r.Get("/{logID}", h.Trigger.Get)
				r.Post("/{logID}/reinvoke", h.Trigger.Reinvoke)
			})

			r.Route("/debug-sessions", func(r chi.Router) {
				r.Post("/", h.Debug.Create)
				r.Get("/{sessionID}/listen", h.Debug.Listen)
			})
		})
	})
}
