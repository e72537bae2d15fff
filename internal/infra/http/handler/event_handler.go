package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/triggerflow/dispatch/internal/app"
	"github.com/triggerflow/dispatch/pkg/apierror"
	"github.com/triggerflow/dispatch/pkg/logger"
	"github.com/triggerflow/dispatch/pkg/validator"
)

// EventHandler receives provider event callbacks and fans them out.
type EventHandler struct {
	router    *app.EventRouter
	validator *validator.Validator
	logger    *logger.Logger
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(router *app.EventRouter, v *validator.Validator, log *logger.Logger) *EventHandler {
	return &EventHandler{
		router:    router,
		validator: v,
		logger:    log.With("handler", "event"),
	}
}

// ProviderEventRequest is the provider callback body.
type ProviderEventRequest struct {
	EventName string         `json:"event_name" validate:"required"`
	PluginID  string         `json:"plugin_id"`
	Inputs    map[string]any `json:"inputs"`
	IconURL   string         `json:"icon_url" validate:"omitempty,url"`
}

// FanOutResponse summarizes how one provider event was handled.
type FanOutResponse struct {
	Subscribers    int `json:"subscribers"`
	Dispatched     int `json:"dispatched"`
	Cancelled      int `json:"cancelled"`
	Failed         int `json:"failed"`
	DebugDelivered int `json:"debug_delivered"`
}

// HandleEvent handles POST /api/v1/events/{subscriptionID}: one provider
// event, fanned out to every subscribed workflow. Always 200 when routing
// succeeded; per-subscriber outcomes are in the body.
func (h *EventHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	subscriptionID := chi.URLParam(r, "subscriptionID")
	if subscriptionID == "" {
		apierror.BadRequest("Missing subscription id").WriteJSON(w)
		return
	}

	var req ProviderEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	result, err := h.router.HandleProviderEvent(r.Context(), app.ProviderEvent{
		SubscriptionID: subscriptionID,
		EventName:      req.EventName,
		PluginID:       req.PluginID,
		Inputs:         req.Inputs,
		IconURL:        req.IconURL,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, FanOutResponse{
		Subscribers:    result.Subscribers,
		Dispatched:     result.Dispatched,
		Cancelled:      result.Cancelled,
		Failed:         result.Failed,
		DebugDelivered: result.DebugDelivered,
	})
}

// ProviderEventBatchRequest is a batch of provider callbacks delivered in
// one request.
type ProviderEventBatchRequest struct {
	Events []ProviderEventRequest `json:"events" validate:"required,min=1,dive"`
}

// BatchFanOutResponse carries the total dispatched count of a batch.
type BatchFanOutResponse struct {
	Dispatched int `json:"dispatched"`
}

// HandleEvents handles POST /api/v1/events/{subscriptionID}/batch: every
// event in the batch is routed independently, one failing event name never
// aborts the rest, and the response carries the total dispatched count.
func (h *EventHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	subscriptionID := chi.URLParam(r, "subscriptionID")
	if subscriptionID == "" {
		apierror.BadRequest("Missing subscription id").WriteJSON(w)
		return
	}

	var req ProviderEventBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	events := make([]app.ProviderEvent, 0, len(req.Events))
	for _, e := range req.Events {
		events = append(events, app.ProviderEvent{
			SubscriptionID: subscriptionID,
			EventName:      e.EventName,
			PluginID:       e.PluginID,
			Inputs:         e.Inputs,
			IconURL:        e.IconURL,
		})
	}

	dispatched, err := h.router.HandleProviderEvents(r.Context(), subscriptionID, events)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, BatchFanOutResponse{Dispatched: dispatched})
}
