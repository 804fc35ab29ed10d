// Package user manages account records.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parallaxhq/parallax/internal/log"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

// Tier names for usage limits. Stored as plain text; limits are applied
// at request time, not enforced by the schema.
const (
	TierFree       = "free"
	TierStarter    = "starter"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// User is one account record.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Tier         string
	CreatedAt    time.Time
}

// Store persists users in PostgreSQL. Safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a user store.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Create inserts a new user. A duplicate email returns ErrEmailTaken.
func (s *Store) Create(ctx context.Context, email, passwordHash string) (*User, error) {
	const q = `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, email, password_hash, tier, created_at`

	var u User
	err := s.pool.QueryRow(ctx, q, email, passwordHash).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Tier, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user created", "user_id", u.ID)
	return &u, nil
}

// ByEmail looks up a user by email for login.
func (s *Store) ByEmail(ctx context.Context, email string) (*User, error) {
	const q = `
		SELECT id, email, password_hash, tier, created_at
		FROM users
		WHERE email = $1`

	var u User
	err := s.pool.QueryRow(ctx, q, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Tier, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}
	return &u, nil
}

// ByID looks up a user by identifier.
func (s *Store) ByID(ctx context.Context, id uuid.UUID) (*User, error) {
	const q = `
		SELECT id, email, password_hash, tier, created_at
		FROM users
		WHERE id = $1`

	var u User
	err := s.pool.QueryRow(ctx, q, id).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Tier, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return &u, nil
}
