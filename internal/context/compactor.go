package ctxengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flemzord/mnemo/internal/conversation"
	"github.com/flemzord/mnemo/internal/provider"
	"github.com/flemzord/mnemo/internal/usage"
)

// SummaryPrefix starts the content of every summary turn.
const SummaryPrefix = "Summary of earlier conversation: "

// ErrCompactionFailed indicates that compaction could not produce a summary.
var ErrCompactionFailed = errors.New("ctxengine: compaction failed")

var tracer = otel.Tracer("github.com/flemzord/mnemo/internal/context")

// UsageRecorder receives token usage for summarization calls.
type UsageRecorder interface {
	Record(ctx context.Context, op usage.Operation, u provider.TokenUsage, elapsed time.Duration, conversationID, messageID string)
}

// Compactor builds the bounded view of a conversation.
//
// The summary is recomputed on every read once the conversation holds more
// than RetainRecent turns. No per-conversation lock is taken: two concurrent
// reads may each create a summary turn, and later reads use whichever was
// updated last.
type Compactor struct {
	store      conversation.Store
	summarizer Summarizer
	usage      UsageRecorder
	config     ContextConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewCompactor creates a Compactor. recorder may be nil. A nil logger falls
// back to slog.Default().
func NewCompactor(store conversation.Store, summarizer Summarizer, recorder UsageRecorder, cfg ContextConfig, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{
		store:      store,
		summarizer: summarizer,
		usage:      recorder,
		config:     cfg.withDefaults(),
		logger:     logger.With("component", "ctxengine"),
		now:        time.Now,
	}
}

// RetainRecent returns the effective tail size.
func (c *Compactor) RetainRecent() int {
	return c.config.RetainRecent
}

// GetBoundedContext returns the conversation's turns oldest first when they
// fit in the retained tail. Otherwise the older turns are summarized into
// the conversation's single summary turn, which is returned ahead of the
// RetainRecent most recent turns. Summarization failures are returned
// wrapped in ErrCompactionFailed.
func (c *Compactor) GetBoundedContext(ctx context.Context, conversationID string) ([]conversation.Turn, error) {
	ctx, span := tracer.Start(ctx, "ctxengine.bounded_context")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	turns, err := c.store.Turns(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("ctxengine: load turns: %w", err)
	}

	retain := c.config.RetainRecent
	span.SetAttributes(attribute.Int("conversation.turns", len(turns)))
	if len(turns) <= retain {
		return turns, nil
	}

	old := turns[:len(turns)-retain]
	recent := turns[len(turns)-retain:]

	start := c.now()
	text, u, err := c.summarizer.Summarize(ctx, old)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "summarize failed")
		return nil, fmt.Errorf("%w: %w", ErrCompactionFailed, err)
	}
	if c.usage != nil && u != (provider.TokenUsage{}) {
		c.usage.Record(ctx, usage.OperationSummarize, u, c.now().Sub(start), conversationID, "")
	}

	summary, err := c.upsertSummary(ctx, conversationID, text)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("conversation compacted",
		"conversation_id", conversationID,
		"summarized", len(old),
		"retained", len(recent),
	)

	result := make([]conversation.Turn, 0, 1+len(recent))
	result = append(result, summary)
	return append(result, recent...), nil
}

// upsertSummary rewrites the existing summary turn, or creates one.
func (c *Compactor) upsertSummary(ctx context.Context, conversationID, text string) (conversation.Turn, error) {
	existing, ok, err := c.store.Summary(ctx, conversationID)
	if err != nil {
		return conversation.Turn{}, fmt.Errorf("ctxengine: load summary: %w", err)
	}

	st := conversation.Turn{
		ConversationID: conversationID,
		Role:           conversation.RoleSystem,
		Content:        SummaryPrefix + text,
		UpdatedAt:      c.now().UTC(),
		IsSummary:      true,
	}
	if ok {
		st.ID = existing.ID
		st.CreatedAt = existing.CreatedAt
	}

	saved, err := c.store.SaveSummary(ctx, st)
	if err != nil {
		return conversation.Turn{}, fmt.Errorf("ctxengine: save summary: %w", err)
	}
	return saved, nil
}
