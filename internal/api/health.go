package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parallaxhq/parallax/internal/log"
)

// health is a simple health check endpoint for Docker/Kubernetes probes.
// Returns 200 OK with {"status":"ok"}.
func health(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

// readiness reports whether the server can serve traffic: the database
// must answer a ping. A nil pool degrades to a liveness-style check.
func readiness(pool *pgxpool.Pool, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable,
					map[string]string{"status": "unavailable", "reason": "database unreachable"}, logger)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}
