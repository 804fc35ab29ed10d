package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/parallaxhq/parallax/internal/auth"
	"github.com/parallaxhq/parallax/internal/chat"
	"github.com/parallaxhq/parallax/internal/conversation"
	"github.com/parallaxhq/parallax/internal/log"
	"github.com/parallaxhq/parallax/internal/user"
)

// errorBody is the JSON error envelope: {"error": {"code", "message"}}.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
// Buffer-first so headers are only sent after successful encoding and a
// proper 500 can still be returned if encoding fails.
func writeJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("failed to write response body", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string, logger log.Logger) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}}, logger)
}

// mapDomainError translates domain sentinels to HTTP status + error code.
// Messages stay generic; internal detail belongs in logs, not responses.
func mapDomainError(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		return http.StatusNotFound, "not_found", "conversation not found"
	case errors.Is(err, conversation.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "conversation belongs to another user"
	case errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound, "not_found", "user not found"
	case errors.Is(err, user.ErrEmailTaken):
		return http.StatusConflict, "email_taken", "email already registered"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid_token", "invalid or expired token"
	case errors.Is(err, chat.ErrInvalidModel):
		return http.StatusBadRequest, "invalid_model", "unknown model identifier"
	case errors.Is(err, chat.ErrInvalidMode):
		return http.StatusBadRequest, "invalid_mode", "unknown mode identifier"
	case errors.Is(err, chat.ErrUpstream):
		return http.StatusBadGateway, "upstream_error", "upstream provider error"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

// writeDomainError maps err and writes the corresponding error response.
func writeDomainError(w http.ResponseWriter, err error, logger log.Logger) {
	status, code, message := mapDomainError(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	writeError(w, status, code, message, logger)
}
