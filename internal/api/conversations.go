package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/parallaxhq/parallax/internal/conversation"
	"github.com/parallaxhq/parallax/internal/llm"
	"github.com/parallaxhq/parallax/internal/log"
	"github.com/parallaxhq/parallax/internal/mode"
)

type conversationHandler struct {
	store        *conversation.Store
	historyLimit int32
	logger       log.Logger
}

type createConversationRequest struct {
	Model string `json:"model"`
	Mode  string `json:"mode"`
}

type updateConversationRequest struct {
	Title *string `json:"title"`
	Mode  *string `json:"mode"`
}

// pathConversation resolves {id} and enforces ownership.
func (h *conversationHandler) pathConversation(w http.ResponseWriter, r *http.Request) (*conversation.Conversation, bool) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "authorization required", h.logger)
		return nil, false
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "conversation id must be a UUID", h.logger)
		return nil, false
	}

	c, err := h.store.GetOwned(r.Context(), id, userID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return nil, false
	}
	return c, true
}

// list handles GET /api/v1/conversations.
func (h *conversationHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "authorization required", h.logger)
		return
	}

	convs, err := h.store.ListByOwner(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if convs == nil {
		convs = []conversation.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs, h.logger)
}

// create handles POST /api/v1/conversations.
func (h *conversationHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "authorization required", h.logger)
		return
	}

	// Mode and model are optional; an empty body means all defaults.
	var req createConversationRequest
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if req.Mode == "" {
		req.Mode = string(mode.Default)
	}
	if req.Model == "" {
		req.Model = string(llm.Sonnet)
	}
	if !mode.Valid(mode.Mode(req.Mode)) {
		writeError(w, http.StatusBadRequest, "invalid_mode", "unknown mode identifier", h.logger)
		return
	}
	if !llm.ValidModel(llm.ModelID(req.Model)) {
		writeError(w, http.StatusBadRequest, "invalid_model", "unknown model identifier", h.logger)
		return
	}

	c, err := h.store.Create(r.Context(), userID, req.Model, req.Mode)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, c, h.logger)
}

// conversationDetail is a conversation with its messages inlined.
type conversationDetail struct {
	conversation.Conversation
	Messages []conversation.Message `json:"messages"`
}

// get handles GET /api/v1/conversations/{id}. Returns the conversation
// together with its ordered messages.
func (h *conversationHandler) get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.pathConversation(w, r)
	if !ok {
		return
	}

	msgs, err := h.store.Messages(r.Context(), c.ID, h.historyLimit)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	writeJSON(w, http.StatusOK, conversationDetail{Conversation: *c, Messages: msgs}, h.logger)
}

// update handles PATCH /api/v1/conversations/{id}: title rename and
// mode change.
func (h *conversationHandler) update(w http.ResponseWriter, r *http.Request) {
	c, ok := h.pathConversation(w, r)
	if !ok {
		return
	}

	var req updateConversationRequest
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if req.Title == nil && req.Mode == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "nothing to update", h.logger)
		return
	}

	if req.Mode != nil {
		if !mode.Valid(mode.Mode(*req.Mode)) {
			writeError(w, http.StatusBadRequest, "invalid_mode", "unknown mode identifier", h.logger)
			return
		}
		if err := h.store.SetMode(r.Context(), c.ID, *req.Mode); err != nil {
			writeDomainError(w, err, h.logger)
			return
		}
	}
	if req.Title != nil {
		if *req.Title == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "title must not be empty", h.logger)
			return
		}
		if err := h.store.Rename(r.Context(), c.ID, *req.Title); err != nil {
			writeDomainError(w, err, h.logger)
			return
		}
	}

	updated, err := h.store.Get(r.Context(), c.ID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, updated, h.logger)
}

// setMode handles PATCH /api/v1/conversations/{id}/mode: a narrow
// endpoint for the mode switcher in the UI.
func (h *conversationHandler) setMode(w http.ResponseWriter, r *http.Request) {
	c, ok := h.pathConversation(w, r)
	if !ok {
		return
	}

	var req struct {
		Mode string `json:"mode"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if !mode.Valid(mode.Mode(req.Mode)) {
		writeError(w, http.StatusBadRequest, "invalid_mode", "unknown mode identifier", h.logger)
		return
	}

	if err := h.store.SetMode(r.Context(), c.ID, req.Mode); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	updated, err := h.store.Get(r.Context(), c.ID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, updated, h.logger)
}

// remove handles DELETE /api/v1/conversations/{id}.
func (h *conversationHandler) remove(w http.ResponseWriter, r *http.Request) {
	c, ok := h.pathConversation(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), c.ID); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// messages handles GET /api/v1/conversations/{id}/messages.
func (h *conversationHandler) messages(w http.ResponseWriter, r *http.Request) {
	c, ok := h.pathConversation(w, r)
	if !ok {
		return
	}

	msgs, err := h.store.Messages(r.Context(), c.ID, h.historyLimit)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	writeJSON(w, http.StatusOK, msgs, h.logger)
}
