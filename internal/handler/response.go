package handler

// RESPONSE HELPERS:
// Every handler answers with writeJSON or writeError, so every error from
// the API has the same shape:
//
//	{"error": "not_found", "message": "match not found with id d0n..."}
//
// Partial failures add the step that failed so an operator knows what was
// left half-done:
//
//	{"error": "partial_failure", "message": "...", "step": "delete predictions"}

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/matchday/internal/apperror"
)

// maxBodyBytes caps request bodies. Every payload this API accepts is small.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending field for validation errors
	Step    string `json:"step,omitempty"`  // Failed step for partial failures
}

// MessageResponse is returned by endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status must be set before the body: once Encode writes, the
// headers are gone.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; all we can do is log it.
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// The service layer returns apperror sentinels wrapped with context:
//
//	service returns: fmt.Errorf("service/match: ...: %w", apperror.NotFound(...))
//	errors.Is walks: outer error → AppError → ErrNotFound ✓ match!
//
// Anything that is not an *AppError is a 500 with a generic message. The raw
// error may contain SQL or driver details and is only logged.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	errorType := "internal_error"
	resp := ErrorResponse{Message: appErr.Message, Field: appErr.Field}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest // 400
		errorType = "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		status = http.StatusUnauthorized // 401
		errorType = "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		status = http.StatusForbidden // 403
		errorType = "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound // 404
		errorType = "not_found"
	case errors.Is(err, apperror.ErrConflict):
		status = http.StatusConflict // 409
		errorType = "conflict"
	case errors.Is(err, apperror.ErrPartial):
		errorType = "partial_failure"
		resp.Step = appErr.Step
		attrs := []any{
			slog.String("path", r.URL.Path),
			slog.String("step", appErr.Step),
			slog.Int("done", appErr.Done),
		}
		if appErr.Cause != nil {
			attrs = append(attrs, slog.String("cause", appErr.Cause.Error()))
		}
		logger.Error("partial failure", attrs...)
	}

	resp.Error = errorType
	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON body into dst. Unknown fields and trailing data are
// rejected as validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body is empty")
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("body", "request body is too large")
		default:
			return apperror.ValidationFailed("body", "invalid JSON: "+err.Error())
		}
	}
	if dec.More() {
		return apperror.ValidationFailed("body", "request body must contain a single JSON object")
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}
