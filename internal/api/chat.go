package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/parallaxhq/parallax/internal/chat"
	"github.com/parallaxhq/parallax/internal/llm"
	"github.com/parallaxhq/parallax/internal/log"
)

// SSE event names on the chat stream.
const (
	EventContent = "content"
	EventUsage   = "usage"
	EventDone    = "done"
	EventError   = "error"
)

// ContentPayload carries one incremental text chunk.
type ContentPayload struct {
	Content string `json:"content"`
}

// UsagePayload carries the provider's token accounting, sent once before
// the done event when the provider reported it.
type UsagePayload struct {
	Usage llm.Usage `json:"usage"`
}

// DonePayload terminates a successful stream.
type DonePayload struct {
	Done      bool      `json:"done"`
	MessageID uuid.UUID `json:"message_id"`
}

// ErrorPayload terminates a failed stream.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type chatHandler struct {
	orchestrator *chat.Orchestrator
	logger       log.Logger
}

type streamRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Model          string `json:"model"`
}

// stream handles POST /api/v1/chat/stream.
//
// The call runs in two phases. Begin validates and commits the user
// message before any SSE headers are sent, so its failures reach the
// client as ordinary JSON error responses. Once streaming starts, all
// failures become terminal SSE error events.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "authorization required", h.logger)
		return
	}

	var req streamRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "conversation_id must be a UUID", h.logger)
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "content is required", h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported", h.logger)
		return
	}

	call, err := h.orchestrator.Begin(r.Context(), chat.Request{
		ConversationID: conversationID,
		UserID:         userID,
		Content:        req.Content,
		Model:          llm.ModelID(req.Model),
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("SSE stream started",
		"conversation_id", conversationID, "request_id", requestIDFromContext(r.Context()))

	result, err := call.Stream(r.Context(), func(delta string) error {
		return writeEvent(w, flusher, EventContent, ContentPayload{Content: delta})
	})
	if err != nil {
		h.handleStreamError(r.Context(), w, flusher, err)
		return
	}

	if result.HasUsage {
		_ = writeEvent(w, flusher, EventUsage, UsagePayload{Usage: result.Usage})
	}
	_ = writeEvent(w, flusher, EventDone, DonePayload{Done: true, MessageID: result.Reply.ID})

	h.logger.Info("SSE stream completed",
		"conversation_id", conversationID, "reply_id", result.Reply.ID)
}

// handleStreamError maps mid-stream failures to terminal SSE error
// events. A disconnected client gets nothing; writing would fail anyway.
func (h *chatHandler) handleStreamError(ctx context.Context, w io.Writer, f http.Flusher, err error) {
	if ctx.Err() != nil {
		h.logger.Info("client disconnected mid-stream")
		return
	}

	code := "stream_error"
	message := "streaming failed"
	switch {
	case errors.Is(err, chat.ErrUpstream):
		code = "upstream_error"
		message = "upstream provider error"
	case errors.Is(err, chat.ErrNotSaved):
		// The client saw the full reply but it is not durable; surfaced
		// distinctly so the UI can warn the user.
		code = "not_saved"
		message = "reply was generated but could not be saved"
	}

	h.logger.Error("stream failed", "code", code, "error", err)
	_ = writeEvent(w, f, EventError, ErrorPayload{Code: code, Message: message})
}

// writeEvent writes a single SSE event with JSON-encoded data.
// SSE format: "event: <type>\ndata: <json>\n\n"
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	flusher.Flush()
	return nil
}
