// Package api is the JSON/SSE HTTP surface of parallax.
//
// Middleware stack (outermost first):
//
//	Recovery → RequestID → Logging → CORS → RateLimit → Routes
//
// Authentication is applied per-route: auth endpoints and the static
// mode/model tables are public, everything else requires a bearer
// token. Health probes (/health, /ready) bypass the middleware stack
// via a top-level mux so they stay fast and unauthenticated.
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parallaxhq/parallax/internal/auth"
	"github.com/parallaxhq/parallax/internal/chat"
	"github.com/parallaxhq/parallax/internal/conversation"
	"github.com/parallaxhq/parallax/internal/log"
	"github.com/parallaxhq/parallax/internal/usage"
	"github.com/parallaxhq/parallax/internal/user"
)

// ServerConfig contains dependencies for creating the API server.
type ServerConfig struct {
	Logger            log.Logger
	Orchestrator      *chat.Orchestrator  // Required
	ConversationStore *conversation.Store // Required
	UserStore         *user.Store         // Required
	UsageStore        *usage.Store        // Optional: nil disables the usage endpoint
	Tokens            *auth.Tokens        // Required
	Pool              *pgxpool.Pool       // Optional: nil degrades /ready to a liveness check
	CORSOrigins       []string            // Allowed origins for CORS
	TrustProxy        bool                // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst         int                 // Rate limiter burst size per IP (0 = default 60)
	HistoryLimit      int32               // Message page cap for listing endpoints
}

// Server is the HTTP server for the chat API.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if cfg.ConversationStore == nil {
		return nil, errors.New("conversation store is required")
	}
	if cfg.UserStore == nil {
		return nil, errors.New("user store is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token issuer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Config{})
	}

	ah := &authHandler{users: cfg.UserStore, tokens: cfg.Tokens, logger: logger}
	ch := &conversationHandler{store: cfg.ConversationStore, historyLimit: cfg.HistoryLimit, logger: logger}
	sh := &chatHandler{orchestrator: cfg.Orchestrator, logger: logger}
	mh := &metaHandler{logger: logger}

	authed := requireAuth(cfg.Tokens, logger)

	mux := http.NewServeMux()

	// Authentication
	mux.HandleFunc("POST /api/v1/auth/register", ah.register)
	mux.HandleFunc("POST /api/v1/auth/login", ah.login)
	mux.HandleFunc("GET /api/v1/auth/me", authed(ah.me))

	// Conversation CRUD (ownership-enforced)
	mux.HandleFunc("GET /api/v1/conversations", authed(ch.list))
	mux.HandleFunc("POST /api/v1/conversations", authed(ch.create))
	mux.HandleFunc("GET /api/v1/conversations/{id}", authed(ch.get))
	mux.HandleFunc("PATCH /api/v1/conversations/{id}", authed(ch.update))
	mux.HandleFunc("PATCH /api/v1/conversations/{id}/mode", authed(ch.setMode))
	mux.HandleFunc("DELETE /api/v1/conversations/{id}", authed(ch.remove))
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", authed(ch.messages))

	// Streaming chat
	mux.HandleFunc("POST /api/v1/chat/stream", authed(sh.stream))

	// Static configuration tables
	mux.HandleFunc("GET /api/v1/modes", mh.modes)
	mux.HandleFunc("GET /api/v1/models", mh.models)

	// Usage reporting (optional)
	if cfg.UsageStore != nil {
		uh := &usageHandler{usage: cfg.UsageStore, users: cfg.UserStore, logger: logger}
		mux.HandleFunc("GET /api/v1/usage", authed(uh.report))
	}

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w)
		handler.ServeHTTP(w, r)
	})

	// Top-level mux keeps health probes outside the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.HandleFunc("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Content-Security-Policy", "default-src 'none'")
}
