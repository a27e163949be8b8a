// Package httpserver contains the REST handlers and middleware for the
// interview service. It keeps HTTP concerns out of the usecase layer: every
// handler translates between wire shapes and orchestrator calls, and errors
// map from the domain sentinels to status codes in one place.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, err error, details any) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
		codeStr = "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
		codeStr = "NOT_FOUND"
	case errors.Is(err, domain.ErrSessionBusy):
		code = http.StatusConflict
		codeStr = "SESSION_BUSY"
	case errors.Is(err, domain.ErrConflict):
		code = http.StatusConflict
		codeStr = "CONFLICT"
	case errors.Is(err, domain.ErrGatewayExhausted):
		code = http.StatusBadGateway
		codeStr = "GATEWAY_EXHAUSTED"
	case errors.Is(err, domain.ErrExtractionFailed):
		code = http.StatusBadGateway
		codeStr = "EXTRACTION_FAILED"
	case errors.Is(err, domain.ErrComparisonFailed):
		code = http.StatusBadGateway
		codeStr = "COMPARISON_FAILED"
	case errors.Is(err, domain.ErrRateLimited):
		code = http.StatusServiceUnavailable
		codeStr = "UPSTREAM_RATE_LIMIT"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		code = http.StatusServiceUnavailable
		codeStr = "UPSTREAM_TIMEOUT"
	case errors.Is(err, domain.ErrSchemaInvalid):
		code = http.StatusServiceUnavailable
		codeStr = "SCHEMA_INVALID"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: err.Error(), Details: details}})
}
