// Package conversation defines conversations, their turns, and the storage
// contract the history compactor and chat pipeline read from.
package conversation

import (
	"context"
	"errors"
	"time"
)

// Role identifies who produced a turn.
type Role string

// Role constants for conversation turns.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Sentinel errors for conversation storage.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidTurn          = errors.New("invalid turn")
)

// Conversation is a dialogue owned by a user and answered by an agent.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	AgentID   string    `json:"agent_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is one message in a conversation. Turns are immutable except the
// conversation's summary turn, which is rewritten in place on compaction.
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	IsSummary      bool      `json:"is_summary"`
}

// Store persists conversations and their turns.
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateConversation stores c. Missing ID and CreatedAt are filled in.
	CreateConversation(ctx context.Context, c Conversation) (Conversation, error)

	// GetConversation returns ErrConversationNotFound for unknown IDs.
	GetConversation(ctx context.Context, id string) (Conversation, error)

	// SetTitle replaces the conversation title.
	SetTitle(ctx context.Context, id, title string) error

	// DeleteConversation removes the conversation and all of its turns.
	DeleteConversation(ctx context.Context, id string) error

	// AppendTurn stores a non-summary turn. Missing ID and timestamps are
	// filled in and the stored turn is returned.
	AppendTurn(ctx context.Context, t Turn) (Turn, error)

	// Turns returns all non-summary turns, oldest first. Turns with equal
	// CreatedAt keep insertion order.
	Turns(ctx context.Context, conversationID string) ([]Turn, error)

	// Summary returns the most recently updated summary turn, if any.
	Summary(ctx context.Context, conversationID string) (Turn, bool, error)

	// SaveSummary inserts t when its ID is unknown, otherwise rewrites its
	// content and UpdatedAt. IsSummary is forced to true.
	SaveSummary(ctx context.Context, t Turn) (Turn, error)
}
