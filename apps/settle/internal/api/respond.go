package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"settle/apps/settle/internal/model"
)

// responder is embedded by every handler
type responder struct {
	logger *zap.Logger
}

// writeJSONResponse writes a JSON response
func (h responder) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// writeErrorResponse writes an error response
func (h responder) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeJSONResponse(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// writeServiceError maps a settlement error onto its status code. Unknown
// errors are logged and hidden behind a 500.
func (h responder) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		h.writeErrorResponse(w, status, code, "Internal server error")
		return
	}
	h.writeErrorResponse(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, model.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, model.ErrInvalidExtra):
		return http.StatusBadRequest, "invalid_extra"
	case errors.Is(err, model.ErrInvalidEvent):
		return http.StatusBadRequest, "invalid_event"
	case errors.Is(err, model.ErrPermission):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h responder) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, model.ErrInvalidAmount) {
			h.writeErrorResponse(w, http.StatusBadRequest, "invalid_amount", err.Error())
			return false
		}
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return false
	}
	return true
}
