// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taskboard/taskboard/internal/handler/dto"
	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/service"
	"github.com/taskboard/taskboard/internal/validate"
)

// Error codes for category errors.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeForbidden        = "FORBIDDEN"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeInternal         = "INTERNAL_ERROR"
)

// Client-facing messages.
const (
	msgNotFound         = "Not found."
	msgInvalidPage      = "Invalid page."
	msgNotAuthenticated = "Authentication credentials were not provided."
	msgNoPermission     = "You do not have permission to perform this action."
	msgInternal         = "An internal error occurred"
)

// Handler serves the fallback routes.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, CodeNotFound, msgNotFound)
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed,
		fmt.Sprintf("Method %q not allowed.", r.Method))
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a category error.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError maps service errors to HTTP responses. Field errors
// are written as a field map and a bad filter date as a bare string;
// everything else is reduced to its category.
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, caller *model.AuthContext, err error) {
	var dateErr *service.DateError
	if errors.As(err, &dateErr) {
		writeJSON(w, http.StatusBadRequest, dateErr.Error())
		return
	}
	if fieldErrs, ok := validate.AsErrors(err); ok {
		writeJSON(w, http.StatusBadRequest, fieldErrs)
		return
	}

	switch {
	case errors.Is(err, service.ErrForbidden):
		msg := msgNoPermission
		if caller == nil {
			msg = msgNotAuthenticated
		}
		writeError(w, http.StatusForbidden, CodeForbidden, msg)
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrKeyNotFound),
		errors.Is(err, service.ErrTokensOff):
		writeError(w, http.StatusNotFound, CodeNotFound, msgNotFound)
	case errors.Is(err, service.ErrInvalidPage):
		writeError(w, http.StatusNotFound, CodeNotFound, msgInvalidPage)
	case errors.Is(err, dto.ErrBodyTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Request body too large")
	default:
		logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, msgInternal)
	}
}

// pathID reads the numeric {id} route parameter. Anything that is not a
// positive integer cannot name a record.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
