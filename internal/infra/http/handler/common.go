// Package handler contains the HTTP handlers of the dispatch API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/triggerflow/dispatch/internal/app"
	"github.com/triggerflow/dispatch/pkg/apierror"
	"github.com/triggerflow/dispatch/pkg/domain/shared"
	"github.com/triggerflow/dispatch/pkg/logger"
	"github.com/triggerflow/dispatch/pkg/pagination"
	"github.com/triggerflow/dispatch/pkg/validator"
)

// ListResponse represents a paginated list response.
type ListResponse[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}

// newListResponse converts a pagination result into the wire shape.
func newListResponse[T, R any](result pagination.Result[T], convert func(T) R) ListResponse[R] {
	data := make([]R, 0, len(result.Data))
	for _, item := range result.Data {
		data = append(data, convert(item))
	}
	return ListResponse[R]{
		Data:       data,
		Total:      result.Total,
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalPages: result.TotalPages,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// handleValidationError writes field-level validation errors.
func handleValidationError(w http.ResponseWriter, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		apierror.ValidationFailed("Validation failed", validationErrors).WriteJSON(w)
		return
	}
	apierror.BadRequest("Validation error").WriteJSON(w)
}

// handleServiceError maps service errors to API errors. Rate limit denials
// carry the remaining quota and reset time in the details so callers can
// back off until the tenant's day rolls over.
func handleServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	var rle *app.RateLimitError
	if errors.As(err, &rle) {
		apierror.RateLimitExceeded("Daily trigger quota exceeded").
			WithDetails(map[string]any{
				"trigger_log_id":  rle.TriggerLogID.String(),
				"queue":           rle.QueueName,
				"limit":           rle.Limit,
				"remaining_quota": rle.Remaining,
				"reset_at":        rle.ResetAt,
			}).WriteJSON(w)
		return
	}

	switch {
	case errors.Is(err, shared.ErrNotFound):
		apierror.NotFound("Resource").WithError(err).WriteJSON(w)
	case errors.Is(err, shared.ErrValidation):
		msg := err.Error()
		if idx := strings.Index(msg, ": "); idx != -1 {
			msg = msg[idx+2:]
		}
		apierror.BadRequest(msg).WriteJSON(w)
	case errors.Is(err, shared.ErrConflict):
		apierror.Conflict(err.Error()).WriteJSON(w)
	default:
		log.Error("service error", "error", err)
		apierror.InternalServerError("Internal server error").WriteJSON(w)
	}
}

// queryInt parses an integer query parameter, falling back on absence or
// garbage.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return val
}

// parsePagination reads page/per_page query parameters.
func parsePagination(r *http.Request) pagination.Pagination {
	return pagination.Pagination{
		Page:    queryInt(r, "page", 1),
		PerPage: queryInt(r, "per_page", 20),
	}
}
