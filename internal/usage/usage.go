// Package usage tracks per-user token consumption and the monthly
// limits attached to subscription tiers.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parallaxhq/parallax/internal/llm"
	"github.com/parallaxhq/parallax/internal/log"
)

// Store persists usage records in PostgreSQL. Safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a usage store.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Record appends one usage record for a completed stream. Informational,
// non-authoritative accounting; failures are logged by the caller and
// never fail the chat call.
func (s *Store) Record(ctx context.Context, userID, conversationID uuid.UUID, model string, usage llm.Usage) error {
	const q = `
		INSERT INTO usage_records (user_id, conversation_id, model, input_tokens, output_tokens)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q, userID, conversationID, model, usage.InputTokens, usage.OutputTokens)
	if err != nil {
		return fmt.Errorf("recording usage: %w", err)
	}
	return nil
}

// ModelTotal is the aggregated consumption for one upstream model.
type ModelTotal struct {
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// MonthlyTotals aggregates the user's consumption per model since the
// start of the current calendar month (UTC).
func (s *Store) MonthlyTotals(ctx context.Context, userID uuid.UUID) ([]ModelTotal, error) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	const q = `
		SELECT model,
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0)
		FROM usage_records
		WHERE user_id = $1 AND created_at >= $2
		GROUP BY model
		ORDER BY model`

	rows, err := s.pool.Query(ctx, q, userID, monthStart)
	if err != nil {
		return nil, fmt.Errorf("querying monthly totals: %w", err)
	}
	defer rows.Close()

	var out []ModelTotal
	for rows.Next() {
		var t ModelTotal
		if err := rows.Scan(&t.Model, &t.InputTokens, &t.OutputTokens); err != nil {
			return nil, fmt.Errorf("scanning usage total: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage totals: %w", err)
	}
	return out, nil
}
