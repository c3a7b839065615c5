package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/conduit-lang/transmute/internal/examples"
	"github.com/conduit-lang/transmute/internal/filter"
	"github.com/conduit-lang/transmute/internal/generate"
	"github.com/conduit-lang/transmute/internal/pattern"
	"github.com/conduit-lang/transmute/internal/schema"
	"github.com/conduit-lang/transmute/internal/store"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     ErrorDetail `json:"error"`
	Status    int         `json:"status"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorDetail describes what went wrong.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     ErrorDetail{Code: code, Message: message},
		Status:    status,
		RequestID: RequestIDFrom(r.Context()),
	})
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, schema.ErrEmptyInput),
		errors.Is(err, pattern.ErrInsufficientExamples),
		errors.Is(err, pattern.ErrMalformedExample),
		errors.Is(err, filter.ErrThresholdRange),
		errors.Is(err, filter.ErrUnknownPreset),
		errors.Is(err, examples.ErrUnsupportedFormat),
		errors.Is(err, generate.ErrNoPatterns):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, generate.ErrAttemptsExhausted):
		return http.StatusUnprocessableEntity, "GENERATION_FAILED"
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", requestField(r), errField(err))
	}
	writeError(w, r, status, code, err.Error())
}
