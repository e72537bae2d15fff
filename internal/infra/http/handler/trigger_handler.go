package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/triggerflow/dispatch/internal/app"
	"github.com/triggerflow/dispatch/internal/infra/http/middleware"
	"github.com/triggerflow/dispatch/pkg/apierror"
	"github.com/triggerflow/dispatch/pkg/domain/shared"
	"github.com/triggerflow/dispatch/pkg/domain/trigger"
	"github.com/triggerflow/dispatch/pkg/logger"
	"github.com/triggerflow/dispatch/pkg/validator"
)

// TriggerHandler handles trigger admission and trigger log endpoints.
type TriggerHandler struct {
	admission *app.AdmissionService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewTriggerHandler creates a new TriggerHandler.
func NewTriggerHandler(admission *app.AdmissionService, v *validator.Validator, log *logger.Logger) *TriggerHandler {
	return &TriggerHandler{
		admission: admission,
		validator: v,
		logger:    log.With("handler", "trigger"),
	}
}

// TriggerRequest is the manual trigger request body.
type TriggerRequest struct {
	WorkflowID string         `json:"workflow_id" validate:"omitempty,uuid"`
	RootNodeID string         `json:"root_node_id" validate:"required"`
	Inputs     map[string]any `json:"inputs"`
}

// AsyncTriggerResponse is the admission outcome. The workflow has not run
// yet when this is returned.
type AsyncTriggerResponse struct {
	TriggerLogID   string    `json:"trigger_log_id"`
	WorkflowID     string    `json:"workflow_id"`
	TaskID         string    `json:"task_id"`
	Queue          string    `json:"queue"`
	Status         string    `json:"status"`
	RemainingQuota int64     `json:"remaining_quota"`
	QuotaResetAt   time.Time `json:"quota_reset_at"`
}

// TriggerLogResponse is the wire shape of one trigger log.
type TriggerLogResponse struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	AppID       string          `json:"app_id"`
	WorkflowID  string          `json:"workflow_id"`
	RootNodeID  string          `json:"root_node_id"`
	TriggerType string          `json:"trigger_type"`
	Status      string          `json:"status"`
	Queue       string          `json:"queue"`
	RetryCount  int             `json:"retry_count"`
	TaskID      string          `json:"task_id,omitempty"`
	TriggeredAt *time.Time      `json:"triggered_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	Inputs      json.RawMessage `json:"inputs,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Trigger handles POST /api/v1/apps/{appID}/trigger: admit one manual
// asynchronous workflow trigger.
func (h *TriggerHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	appID, err := shared.IDFromString(chi.URLParam(r, "appID"))
	if err != nil {
		apierror.BadRequest("Invalid app id").WriteJSON(w)
		return
	}

	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	data, err := trigger.NewData(tenantID, appID, req.RootNodeID, trigger.TypeManual, req.Inputs)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if req.WorkflowID != "" {
		workflowID, err := shared.IDFromString(req.WorkflowID)
		if err != nil {
			apierror.BadRequest("Invalid workflow id").WriteJSON(w)
			return
		}
		data.WorkflowID = &workflowID
	}

	role, actorID := actorFromRequest(r)
	result, err := h.admission.TriggerWorkflowAsync(r.Context(), data, role, actorID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusAccepted, toAsyncTriggerResponse(result))
}

// Reinvoke handles POST /api/v1/trigger-logs/{logID}/reinvoke: retry a
// rate-limited or failed dispatch as a fresh admission.
func (h *TriggerHandler) Reinvoke(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	logID, err := shared.IDFromString(chi.URLParam(r, "logID"))
	if err != nil {
		apierror.BadRequest("Invalid trigger log id").WriteJSON(w)
		return
	}

	role, actorID := actorFromRequest(r)
	result, err := h.admission.ReinvokeTrigger(r.Context(), tenantID, logID, role, actorID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusAccepted, toAsyncTriggerResponse(result))
}

// Get handles GET /api/v1/trigger-logs/{logID}.
func (h *TriggerHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	logID, err := shared.IDFromString(chi.URLParam(r, "logID"))
	if err != nil {
		apierror.BadRequest("Invalid trigger log id").WriteJSON(w)
		return
	}

	logEntry, err := h.admission.GetTriggerLog(r.Context(), tenantID, logID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toTriggerLogResponse(logEntry))
}

// List handles GET /api/v1/trigger-logs: recent logs, newest first.
// Query parameters: hours (default 24), app_id, status, page, per_page.
func (h *TriggerHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	hours := queryInt(r, "hours", 24)
	if hours < 1 {
		hours = 24
	}

	var appID *shared.ID
	if raw := r.URL.Query().Get("app_id"); raw != "" {
		id, err := shared.IDFromString(raw)
		if err != nil {
			apierror.BadRequest("Invalid app id").WriteJSON(w)
			return
		}
		appID = &id
	}

	var status *trigger.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := trigger.Status(raw)
		if !s.IsValid() {
			apierror.BadRequest("Invalid status").WriteJSON(w)
			return
		}
		status = &s
	}

	result, err := h.admission.ListRecentLogs(r.Context(), tenantID,
		time.Duration(hours)*time.Hour, appID, status, parsePagination(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newListResponse(result, toTriggerLogResponse))
}

// QuotaResponse reports the executions left today.
type QuotaResponse struct {
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Quota handles GET /api/v1/quota.
func (h *TriggerHandler) Quota(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	remaining, resetAt, err := h.admission.QuotaStatus(r.Context(), tenantID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, QuotaResponse{Remaining: remaining, ResetAt: resetAt})
}

func actorFromRequest(r *http.Request) (trigger.ActorRole, shared.ID) {
	if accountID := middleware.GetAccountID(r.Context()); !accountID.IsZero() {
		return trigger.ActorRoleAccount, accountID
	}
	return trigger.ActorRoleEndUser, shared.ID{}
}

func toAsyncTriggerResponse(result *app.AsyncTriggerResult) AsyncTriggerResponse {
	return AsyncTriggerResponse{
		TriggerLogID:   result.TriggerLogID.String(),
		WorkflowID:     result.WorkflowID.String(),
		TaskID:         result.TaskID,
		Queue:          result.QueueName,
		Status:         string(result.Status),
		RemainingQuota: result.Remaining,
		QuotaResetAt:   result.ResetAt,
	}
}

func toTriggerLogResponse(logEntry *trigger.Log) TriggerLogResponse {
	return TriggerLogResponse{
		ID:          logEntry.ID.String(),
		TenantID:    logEntry.TenantID.String(),
		AppID:       logEntry.AppID.String(),
		WorkflowID:  logEntry.WorkflowID.String(),
		RootNodeID:  logEntry.RootNodeID,
		TriggerType: string(logEntry.TriggerType),
		Status:      string(logEntry.Status),
		Queue:       logEntry.QueueName,
		RetryCount:  logEntry.RetryCount,
		TaskID:      logEntry.TaskID,
		TriggeredAt: logEntry.TriggeredAt,
		Error:       logEntry.Error,
		Inputs:      logEntry.Inputs,
		CreatedAt:   logEntry.CreatedAt,
		UpdatedAt:   logEntry.UpdatedAt,
	}
}
