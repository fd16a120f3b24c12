package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/complai/complai/internal/auth"
	"github.com/complai/complai/internal/chat"
	"github.com/complai/complai/internal/generate"
	"github.com/complai/complai/internal/knowledge"
	"github.com/complai/complai/internal/session"
)

// writeJSON writes a JSON response. Buffer-first: headers are only sent
// after successful encoding, so an encode failure can still produce a 500.
func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("failed to write response body", "error", err)
	}
}

// maxBodyBytes caps non-chat JSON request bodies.
const maxBodyBytes = 16 << 10

// decodeJSON parses a small JSON body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// ErrorBody is the error envelope returned by every endpoint.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	StatusCode int    `json:"status_code"`
	RequestID  string `json:"request_id,omitempty"`
}

// writeError writes the standard error envelope, picking up the request id
// from the context.
func writeError(w http.ResponseWriter, r *http.Request, status int, errType, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{
		Message:    message,
		Type:       errType,
		StatusCode: status,
		RequestID:  requestIDFromContext(r.Context()),
	}})
}

// writeDomainError maps a pipeline error onto status and type.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, errType := classifyError(err)
	writeError(w, r, status, errType, err.Error())
}

// classifyError maps domain sentinels onto HTTP status and error type.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrEmptyQuery),
		errors.Is(err, generate.ErrInvalidParameter),
		errors.Is(err, knowledge.ErrEmptyQuery),
		errors.Is(err, session.ErrEmptyOwner),
		errors.Is(err, session.ErrInvalidRole):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenMalformed),
		errors.Is(err, auth.ErrBadCredentials):
		return http.StatusUnauthorized, "authentication_error"
	case errors.Is(err, session.ErrNotAuthorized):
		return http.StatusForbidden, "not_authorized"
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, generate.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "model_unavailable"
	case errors.Is(err, generate.ErrModelRejected):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
