package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parallaxhq/parallax/internal/log"
)

var (
	// ErrNotFound means the conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrAccessDenied means the conversation exists but belongs to a
	// different user.
	ErrAccessDenied = errors.New("conversation access denied")
)

const conversationColumns = "id, user_id, title, model, mode, created_at, updated_at"

const messageColumns = "id, conversation_id, sequence_number, role, content, mode, input_tokens, output_tokens, created_at"

// Store persists conversations and messages in PostgreSQL.
// Safe for concurrent use; appends take a row lock on the conversation
// so sequence numbers stay gapless and strictly ordered across
// processes.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a conversation store.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Create inserts a new conversation with the default title.
func (s *Store) Create(ctx context.Context, userID uuid.UUID, model, mode string) (*Conversation, error) {
	const q = `
		INSERT INTO conversations (user_id, title, model, mode)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + conversationColumns

	var c Conversation
	err := s.pool.QueryRow(ctx, q, userID, DefaultTitle, model, mode).
		Scan(&c.ID, &c.UserID, &c.Title, &c.Model, &c.Mode, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Info("conversation created", "conversation_id", c.ID, "user_id", userID)
	return &c, nil
}

// Get fetches a conversation by id regardless of owner.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	const q = `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`

	var c Conversation
	err := s.pool.QueryRow(ctx, q, id).
		Scan(&c.ID, &c.UserID, &c.Title, &c.Model, &c.Mode, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return &c, nil
}

// GetOwned fetches a conversation and enforces ownership. The ownership
// check precedes all other work on the chat path; a mismatch yields
// ErrAccessDenied with no side effects.
func (s *Store) GetOwned(ctx context.Context, id, userID uuid.UUID) (*Conversation, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrAccessDenied
	}
	return c, nil
}

// ListByOwner returns the user's conversations, most recently updated
// first.
func (s *Store) ListByOwner(ctx context.Context, userID uuid.UUID) ([]Conversation, error) {
	const q = `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Model, &c.Mode, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return out, nil
}

// SetMode changes the conversation's active mode.
func (s *Store) SetMode(ctx context.Context, id uuid.UUID, mode string) error {
	const q = `UPDATE conversations SET mode = $2, updated_at = now() WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id, mode)
	if err != nil {
		return fmt.Errorf("updating conversation mode: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Rename sets an explicit title, overriding the automatic one.
func (s *Store) Rename(ctx context.Context, id uuid.UUID, title string) error {
	const q = `UPDATE conversations SET title = $2, updated_at = now() WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id, title)
	if err != nil {
		return fmt.Errorf("renaming conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a conversation; messages cascade at the schema level so
// no orphaned messages can exist.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM conversations WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.Info("conversation deleted", "conversation_id", id)
	return nil
}

// Messages returns the conversation's messages oldest first, capped at
// limit (0 means no cap). This order is canonical: it is what gets
// replayed to the upstream provider as history.
func (s *Store) Messages(ctx context.Context, conversationID uuid.UUID, limit int32) ([]Message, error) {
	q := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sequence_number`
	args := []any{conversationID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SequenceNumber, &m.Role,
			&m.Content, &m.Mode, &m.InputTokens, &m.OutputTokens, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return out, nil
}

// AppendUserMessage transactionally appends a user turn. If this is the
// conversation's first message and the title is still the default, the
// proposed title is applied in the same transaction. Commits before any
// streaming begins so the user's message survives a later failure.
func (s *Store) AppendUserMessage(ctx context.Context, conversationID uuid.UUID, content, mode, proposedTitle string) (*Message, error) {
	return s.appendMessage(ctx, conversationID, RoleUser, content, mode, nil, nil, proposedTitle)
}

// AppendAssistantMessage transactionally appends an assistant turn with
// the provider's token accounting. Called exactly once per successfully
// completed stream; never called for partial output.
func (s *Store) AppendAssistantMessage(ctx context.Context, conversationID uuid.UUID, content, mode string, inputTokens, outputTokens *int) (*Message, error) {
	return s.appendMessage(ctx, conversationID, RoleAssistant, content, mode, inputTokens, outputTokens, "")
}

func (s *Store) appendMessage(ctx context.Context, conversationID uuid.UUID, role, content, mode string, inputTokens, outputTokens *int, proposedTitle string) (*Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		// No-op after commit.
		_ = tx.Rollback(ctx)
	}()

	// Row lock serializes appends per conversation across processes and
	// keeps sequence numbers gapless.
	var locked uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, conversationID).
		Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking conversation: %w", err)
	}

	var nextSeq int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM messages WHERE conversation_id = $1`,
		conversationID).Scan(&nextSeq)
	if err != nil {
		return nil, fmt.Errorf("computing sequence number: %w", err)
	}

	var m Message
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sequence_number, role, content, mode, input_tokens, output_tokens)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+messageColumns,
		conversationID, nextSeq, role, content, mode, inputTokens, outputTokens).
		Scan(&m.ID, &m.ConversationID, &m.SequenceNumber, &m.Role,
			&m.Content, &m.Mode, &m.InputTokens, &m.OutputTokens, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if proposedTitle != "" && nextSeq == 1 {
		_, err = tx.Exec(ctx,
			`UPDATE conversations SET title = $2 WHERE id = $1 AND title = $3`,
			conversationID, proposedTitle, DefaultTitle)
		if err != nil {
			return nil, fmt.Errorf("setting title: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("touching conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing message append: %w", err)
	}

	s.logger.Debug("message appended",
		"conversation_id", conversationID, "role", role, "sequence", nextSeq)
	return &m, nil
}
