package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/triggerflow/dispatch/internal/app"
	"github.com/triggerflow/dispatch/internal/infra/http/middleware"
	"github.com/triggerflow/dispatch/pkg/apierror"
	"github.com/triggerflow/dispatch/pkg/domain/shared"
	"github.com/triggerflow/dispatch/pkg/logger"
	"github.com/triggerflow/dispatch/pkg/validator"
)

// DebugHandler handles live trigger debugging endpoints.
type DebugHandler struct {
	debug     *app.DebugService
	validator *validator.Validator
	upgrader  websocket.Upgrader
	logger    *logger.Logger
}

// NewDebugHandler creates a new DebugHandler.
func NewDebugHandler(debug *app.DebugService, v *validator.Validator, log *logger.Logger) *DebugHandler {
	return &DebugHandler{
		debug:     debug,
		validator: v,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The browser connects from the builder UI; origin policy is
			// enforced at the gateway.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: log.With("handler", "debug"),
	}
}

// CreateDebugSessionRequest is the session creation body.
type CreateDebugSessionRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required"`
	NodeID         string `json:"node_id" validate:"required"`
	AppID          string `json:"app_id" validate:"required,uuid"`
	WebhookURL     string `json:"webhook_url" validate:"omitempty,url"`
	TimeoutSeconds int    `json:"timeout_seconds" validate:"omitempty,min=1"`
}

// DebugSessionResponse is the created session.
type DebugSessionResponse struct {
	SessionID      string    `json:"session_id"`
	SubscriptionID string    `json:"subscription_id"`
	WebhookURL     string    `json:"webhook_url,omitempty"`
	TimeoutSeconds int       `json:"timeout_seconds"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Create handles POST /api/v1/debug-sessions.
func (h *DebugHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDebugSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	appID, err := shared.IDFromString(req.AppID)
	if err != nil {
		apierror.BadRequest("Invalid app id").WriteJSON(w)
		return
	}

	session, err := h.debug.CreateSession(r.Context(), app.CreateDebugSessionInput{
		SubscriptionID: req.SubscriptionID,
		WebhookURL:     req.WebhookURL,
		NodeID:         req.NodeID,
		AppID:          appID,
		UserID:         middleware.GetAccountID(r.Context()),
		Timeout:        time.Duration(req.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, DebugSessionResponse{
		SessionID:      session.SessionID,
		SubscriptionID: session.SubscriptionID,
		WebhookURL:     session.WebhookURL,
		TimeoutSeconds: int(session.Timeout / time.Second),
		ExpiresAt:      session.CreatedAt.Add(session.Timeout),
	})
}

// Listen handles GET /api/v1/debug-sessions/{sessionID}/listen: a
// WebSocket stream that waits for the session's event. The client receives
// heartbeat envelopes while waiting, then exactly one triggered or timeout
// envelope before the connection closes.
func (h *DebugHandler) Listen(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		apierror.BadRequest("Missing session id").WriteJSON(w)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	heartbeat := func() error {
		return conn.WriteJSON(app.DebugEvent{
			Type:       app.DebugEventHeartbeat,
			ReceivedAt: time.Now(),
		})
	}

	result, err := h.debug.Listen(r.Context(), sessionID, heartbeat)
	if err != nil {
		if errors.Is(err, app.ErrDebugSessionGone) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session not found or expired"),
				time.Now().Add(time.Second))
			return
		}
		h.logger.Error("debug listen failed", "session_id", sessionID, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "listen failed"),
			time.Now().Add(time.Second))
		return
	}

	if result.TimedOut {
		_ = conn.WriteJSON(app.DebugEvent{
			Type:       app.DebugEventTimeout,
			ReceivedAt: time.Now(),
		})
	} else {
		_ = conn.WriteMessage(websocket.TextMessage, result.Payload)
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
