package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/mnemo/internal/provider"
)

// Tracker records usage for generator calls.
type Tracker struct {
	repo     Repository
	resolver AgentResolver
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewTracker creates a tracker. metrics may be nil. A nil logger falls back
// to slog.Default().
func NewTracker(repo Repository, resolver AgentResolver, metrics *Metrics, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		repo:     repo,
		resolver: resolver,
		metrics:  metrics,
		logger:   logger.With("component", "usage"),
		now:      time.Now,
	}
}

// Record persists one usage entry. If the conversation's agent cannot be
// resolved the record is dropped. Persistence failures are logged.
func (t *Tracker) Record(ctx context.Context, op Operation, u provider.TokenUsage, elapsed time.Duration, conversationID, messageID string) {
	if t == nil || t.repo == nil || t.resolver == nil {
		return
	}

	agentID, err := t.resolver.ResolveAgent(ctx, conversationID)
	if err != nil || agentID == "" {
		t.logger.Debug("usage record dropped: agent unresolved",
			"operation", op,
			"conversation_id", conversationID,
			"error", err,
		)
		t.metrics.dropped(op)
		return
	}

	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	rec := Record{
		ID:             uuid.NewString(),
		Operation:      op,
		InputTokens:    u.PromptTokens,
		OutputTokens:   u.CompletionTokens,
		TotalTokens:    total,
		ResponseTime:   elapsed,
		ConversationID: conversationID,
		MessageID:      messageID,
		AgentID:        agentID,
		CreatedAt:      t.now().UTC(),
	}

	if err := t.repo.SaveUsage(ctx, rec); err != nil {
		t.logger.Warn("usage record not persisted",
			"operation", op,
			"conversation_id", conversationID,
			"error", err,
		)
		t.metrics.dropped(op)
		return
	}
	t.metrics.observe(rec)
}
