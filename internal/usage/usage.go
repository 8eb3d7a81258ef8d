// Package usage records token and timing telemetry for generator calls.
// Recording is best-effort: unresolvable or unpersistable records are
// dropped and logged, never surfaced to the caller.
package usage

import (
	"context"
	"errors"
	"time"
)

// Operation names the kind of generator call a record describes.
type Operation string

// Operation constants.
const (
	OperationChat      Operation = "chat"
	OperationSummarize Operation = "summarize"
	OperationExtract   Operation = "extract"
	OperationNaming    Operation = "naming"
)

// ErrAgentNotFound is returned by resolvers that cannot map a conversation
// to its agent.
var ErrAgentNotFound = errors.New("usage: agent not found")

// Record is one persisted usage entry.
type Record struct {
	ID             string        `json:"id"`
	Operation      Operation     `json:"operation"`
	InputTokens    int           `json:"input_tokens"`
	OutputTokens   int           `json:"output_tokens"`
	TotalTokens    int           `json:"total_tokens"`
	ResponseTime   time.Duration `json:"response_time"`
	ConversationID string        `json:"conversation_id"`
	MessageID      string        `json:"message_id,omitempty"`
	AgentID        string        `json:"agent_id"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Repository persists usage records.
type Repository interface {
	SaveUsage(ctx context.Context, r Record) error
	ListUsage(ctx context.Context, conversationID string) ([]Record, error)
	// PruneUsage deletes records created before cutoff and returns how many.
	PruneUsage(ctx context.Context, cutoff time.Time) (int, error)
}

// AgentResolver maps a conversation to the agent that owns it.
type AgentResolver interface {
	ResolveAgent(ctx context.Context, conversationID string) (string, error)
}

// AgentResolverFunc adapts a function to AgentResolver.
type AgentResolverFunc func(ctx context.Context, conversationID string) (string, error)

// ResolveAgent implements AgentResolver.
func (f AgentResolverFunc) ResolveAgent(ctx context.Context, conversationID string) (string, error) {
	return f(ctx, conversationID)
}

// Ref attributes generator calls made deep in a call chain to a
// conversation and, optionally, a message.
type Ref struct {
	ConversationID string
	MessageID      string
}

type refKey struct{}

// WithRef returns a context carrying ref.
func WithRef(ctx context.Context, ref Ref) context.Context {
	return context.WithValue(ctx, refKey{}, ref)
}

// RefFromContext returns the Ref stored by WithRef.
func RefFromContext(ctx context.Context) (Ref, bool) {
	ref, ok := ctx.Value(refKey{}).(Ref)
	return ref, ok && ref.ConversationID != ""
}
