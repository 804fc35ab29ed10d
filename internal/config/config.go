// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.parallax/config.yaml)
//  3. Default values
//
// Sensitive data (database password, LLM API key, JWT secret) is never
// logged; MarshalJSON masks it explicitly.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// History limits for replaying conversation context upstream.
const (
	// DefaultMaxHistoryMessages is the default number of messages loaded
	// as upstream context per streaming call.
	DefaultMaxHistoryMessages int32 = 200

	// MaxAllowedHistoryMessages is the absolute maximum to prevent OOM.
	MaxAllowedHistoryMessages int32 = 10000
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// HTTP server
	Addr        string   `mapstructure:"addr" json:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // trust X-Real-IP/X-Forwarded-For behind a reverse proxy
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`   // per-IP token bucket burst (0 = default)

	// Upstream LLM provider (OpenAI-compatible streaming API)
	LLMBaseURL    string        `mapstructure:"llm_base_url" json:"llm_base_url"`
	LLMAPIKey     string        `mapstructure:"llm_api_key" json:"llm_api_key"` // SENSITIVE: masked in MarshalJSON
	MaxTokens     int           `mapstructure:"max_tokens" json:"max_tokens"`
	StreamTimeout time.Duration `mapstructure:"stream_timeout" json:"stream_timeout"` // bound on one upstream streaming call

	// Conversation history
	MaxHistoryMessages int32 `mapstructure:"max_history_messages" json:"max_history_messages"`

	// Authentication
	JWTSecret string        `mapstructure:"jwt_secret" json:"jwt_secret"` // SENSITIVE: masked in MarshalJSON
	TokenTTL  time.Duration `mapstructure:"token_ttl" json:"token_ttl"`

	// Storage (see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".parallax")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:8000")
	v.SetDefault("cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_burst", 0)

	v.SetDefault("llm_base_url", "https://api.openai.com/v1")
	v.SetDefault("max_tokens", 4096)
	v.SetDefault("stream_timeout", 2*time.Minute)

	v.SetDefault("max_history_messages", DefaultMaxHistoryMessages)

	v.SetDefault("token_ttl", 30*time.Minute)

	// PostgreSQL defaults matching docker-compose.yml
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "parallax")
	v.SetDefault("postgres_password", "localdev")
	v.SetDefault("postgres_db_name", "parallax")
	v.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment variables explicitly.
// Secrets come in only through the environment, never the config file
// in production deployments.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("llm_api_key", "LLM_API_KEY")
	mustBind("llm_base_url", "LLM_BASE_URL")
	mustBind("jwt_secret", "JWT_SECRET")
	mustBind("addr", "PARALLAX_ADDR")
	mustBind("cors_origins", "PARALLAX_CORS_ORIGINS")
	mustBind("trust_proxy", "PARALLAX_TRUST_PROXY")
	mustBind("rate_burst", "PARALLAX_RATE_BURST")
	// NOTE: DATABASE_URL is read directly in parseDatabaseURL, not via viper.
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 chars
// or fewer are fully masked; longer ones keep the first and last two
// characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.LLMAPIKey = maskSecret(a.LLMAPIKey)
	a.JWTSecret = maskSecret(a.JWTSecret)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
