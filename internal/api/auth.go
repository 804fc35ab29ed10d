package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"unicode/utf8"

	"github.com/parallaxhq/parallax/internal/auth"
	"github.com/parallaxhq/parallax/internal/log"
	"github.com/parallaxhq/parallax/internal/user"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt input limit
)

type authHandler struct {
	users  *user.Store
	tokens *auth.Tokens
	logger log.Logger
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Tier  string `json:"tier"`
}

func decodeCredentials(w http.ResponseWriter, r *http.Request, logger log.Logger) (credentialsRequest, bool) {
	var req credentialsRequest
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", logger)
		return req, false
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_email", "invalid email address", logger)
		return req, false
	}
	if n := utf8.RuneCountInString(req.Password); n < minPasswordLength || len(req.Password) > maxPasswordLength {
		writeError(w, http.StatusBadRequest, "invalid_password", "password must be 8-72 characters", logger)
		return req, false
	}
	return req, true
}

// register handles POST /api/v1/auth/register.
func (h *authHandler) register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r, h.logger)
	if !ok {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	u, err := h.users.Create(r.Context(), req.Email, hash)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token}, h.logger)
}

// login handles POST /api/v1/auth/login.
func (h *authHandler) login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r, h.logger)
	if !ok {
		return
	}

	u, err := h.users.ByEmail(r.Context(), req.Email)
	if err != nil {
		// Unknown email and wrong password are indistinguishable to the
		// client.
		if errors.Is(err, user.ErrNotFound) {
			writeDomainError(w, auth.ErrInvalidCredentials, h.logger)
			return
		}
		writeDomainError(w, err, h.logger)
		return
	}

	if err := auth.VerifyPassword(u.PasswordHash, req.Password); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token}, h.logger)
}

// me handles GET /api/v1/auth/me.
func (h *authHandler) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "authorization required", h.logger)
		return
	}

	u, err := h.users.ByID(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: u.ID.String(), Email: u.Email, Tier: u.Tier}, h.logger)
}
