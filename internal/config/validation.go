package config

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	ErrMissingPostgresHost   = errors.New("postgres host is required")
	ErrInvalidPostgresPort   = errors.New("postgres port must be between 1 and 65535")
	ErrMissingPostgresUser   = errors.New("postgres user is required")
	ErrMissingPostgresDBName = errors.New("postgres database name is required")
	ErrInvalidSSLMode        = errors.New("invalid postgres ssl mode")
	ErrInvalidMaxTokens      = errors.New("max_tokens must be positive")
	ErrInvalidStreamTimeout  = errors.New("stream_timeout must be positive")
	ErrInvalidHistoryLimit   = errors.New("max_history_messages out of range")
	ErrInvalidTokenTTL       = errors.New("token_ttl must be positive")
	ErrMissingLLMAPIKey      = errors.New("LLM_API_KEY is required")
	ErrMissingJWTSecret      = errors.New("JWT_SECRET is required")
	ErrWeakJWTSecret         = errors.New("JWT_SECRET must be at least 32 bytes")
)

var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks structural configuration: storage, limits, timeouts.
// It does not require secrets, so commands like migrate can run with
// only the database configured.
func (c *Config) Validate() error {
	if c.PostgresHost == "" {
		return ErrMissingPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresUser == "" {
		return ErrMissingPostgresUser
	}
	if c.PostgresDBName == "" {
		return ErrMissingPostgresDBName
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: got %q", ErrInvalidSSLMode, c.PostgresSSLMode)
	}

	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}
	if c.StreamTimeout <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidStreamTimeout, c.StreamTimeout)
	}
	if c.MaxHistoryMessages < 1 || c.MaxHistoryMessages > MaxAllowedHistoryMessages {
		return fmt.Errorf("%w: got %d (max %d)", ErrInvalidHistoryLimit,
			c.MaxHistoryMessages, MaxAllowedHistoryMessages)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidTokenTTL, c.TokenTTL)
	}

	return nil
}

// ValidateServe checks the configuration needed to run the HTTP server,
// on top of Validate: upstream credentials and the token signing secret.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.LLMAPIKey == "" {
		return ErrMissingLLMAPIKey
	}
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if len(c.JWTSecret) < 32 {
		return ErrWeakJWTSecret
	}
	return nil
}
