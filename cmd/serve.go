package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parallaxhq/parallax/db"
	"github.com/parallaxhq/parallax/internal/api"
	"github.com/parallaxhq/parallax/internal/auth"
	"github.com/parallaxhq/parallax/internal/chat"
	"github.com/parallaxhq/parallax/internal/config"
	"github.com/parallaxhq/parallax/internal/conversation"
	"github.com/parallaxhq/parallax/internal/database"
	"github.com/parallaxhq/parallax/internal/llm"
	"github.com/parallaxhq/parallax/internal/log"
	"github.com/parallaxhq/parallax/internal/usage"
	"github.com/parallaxhq/parallax/internal/user"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the REST/SSE API server.

Applies pending database migrations on startup, then serves the chat
API until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (host:port, overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// newLogger builds the process logger. DEBUG=1 lowers the level;
// structured JSON output is the default since the server normally runs
// under a log collector.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: true})
}

// runServe initializes dependencies and starts the HTTP API server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	addr := cfg.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	if err := validateAddr(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	logger.Info("starting HTTP API server", "version", Version)

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	convStore := conversation.NewStore(pool, logger)
	userStore := user.NewStore(pool, logger)
	usageStore := usage.NewStore(pool, logger)
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
	})

	orchestrator := chat.NewOrchestrator(convStore, client, usageStore, logger, chat.Config{
		MaxTokens:     cfg.MaxTokens,
		HistoryLimit:  cfg.MaxHistoryMessages,
		StreamTimeout: cfg.StreamTimeout,
	})

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:            logger,
		Orchestrator:      orchestrator,
		ConversationStore: convStore,
		UserStore:         userStore,
		UsageStore:        usageStore,
		Tokens:            tokens,
		Pool:              pool,
		CORSOrigins:       cfg.CORSOrigins,
		TrustProxy:        cfg.TrustProxy,
		RateBurst:         cfg.RateBurst,
		HistoryLimit:      cfg.MaxHistoryMessages,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		// WriteTimeout must outlast the longest SSE stream.
		WriteTimeout: cfg.StreamTimeout + 30*time.Second,
		IdleTimeout:  idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", addr,
		"api", "/api/v1/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
