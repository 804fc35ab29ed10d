package api

import (
	"net/http"

	"github.com/parallaxhq/parallax/internal/llm"
	"github.com/parallaxhq/parallax/internal/log"
	"github.com/parallaxhq/parallax/internal/mode"
	"github.com/parallaxhq/parallax/internal/usage"
	"github.com/parallaxhq/parallax/internal/user"
)

// metaHandler serves the static mode and model tables.
type metaHandler struct {
	logger log.Logger
}

// modes handles GET /api/v1/modes.
func (h *metaHandler) modes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, mode.All(), h.logger)
}

// models handles GET /api/v1/models.
func (h *metaHandler) models(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, llm.Models(), h.logger)
}

// usageHandler reports the caller's monthly consumption and limits.
type usageHandler struct {
	usage  *usage.Store
	users  *user.Store
	logger log.Logger
}

type usageResponse struct {
	Tier   string             `json:"tier"`
	Totals []usage.ModelTotal `json:"totals"`
	Limits usage.TierLimits   `json:"limits"`
}

// report handles GET /api/v1/usage.
func (h *usageHandler) report(w http.ResponseWriter, r *http.Request) {
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

	totals, err := h.usage.MonthlyTotals(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if totals == nil {
		totals = []usage.ModelTotal{}
	}

	writeJSON(w, http.StatusOK, usageResponse{
		Tier:   u.Tier,
		Totals: totals,
		Limits: usage.Limits(u.Tier),
	}, h.logger)
}
