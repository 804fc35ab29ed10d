// Package conversation is the durable record of conversations and their
// ordered messages.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTitle is assigned to new conversations until the first user
// message replaces it.
const DefaultTitle = "New Conversation"

// Message roles. The system prompt is resolved at request time and is
// never persisted as a message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is one chat thread owned by exactly one user.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one immutable turn in a conversation. SequenceNumber gives
// the strict chronological order replayed upstream as history; creation
// timestamps alone cannot tie-break inserts in the same transaction.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SequenceNumber int64     `json:"sequence_number"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Mode           string    `json:"mode"`
	InputTokens    *int      `json:"input_tokens,omitempty"`
	OutputTokens   *int      `json:"output_tokens,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
