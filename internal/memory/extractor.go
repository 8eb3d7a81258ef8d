package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flemzord/mnemo/internal/provider"
	"github.com/flemzord/mnemo/internal/usage"
)

var tracer = otel.Tracer("github.com/flemzord/mnemo/internal/memory")

const extractionInstructions = `You extract durable facts about the user from a single message they wrote.

Return ONLY a JSON array. Do not wrap it in Markdown. Each element is an object:
  "shouldWrite": true if the fact is worth remembering across conversations
  "content":     the fact as a standalone third-person statement ("The user ..."), never "I" or "you"
  "confidence":  number between 0 and 1
  "category":    one short lowercase word such as "personal", "work", "preferences", "health"
  "tags":        lowercase keywords identifying the attribute, e.g. ["age"]
  "searchQuery": set to the tag of the attribute being corrected when the user updates
                 something stated before ("Actually I am 38" -> "age"); omit otherwise

A message often carries several independent facts. Emit one element per fact and
never reuse a tag across elements. Greetings, questions and small talk yield [].

Example: "My name is John, I am 35, I work as a software engineer" ->
[{"shouldWrite":true,"content":"The user's name is John.","confidence":0.95,"category":"personal","tags":["name"]},
 {"shouldWrite":true,"content":"The user is 35 years old.","confidence":0.9,"category":"personal","tags":["age"]},
 {"shouldWrite":true,"content":"The user works as a software engineer.","confidence":0.9,"category":"work","tags":["profession"]}]`

// UsageRecorder receives token usage for generator calls made on behalf of
// a conversation. *usage.Tracker implements it.
type UsageRecorder interface {
	Record(ctx context.Context, op usage.Operation, u provider.TokenUsage, elapsed time.Duration, conversationID, messageID string)
}

// Extractor turns one user utterance into candidate facts.
type Extractor struct {
	generator provider.Provider
	usage     UsageRecorder
	logger    *slog.Logger
}

// NewExtractor creates an extractor backed by the given generator.
// recorder may be nil. A nil logger falls back to slog.Default().
func NewExtractor(generator provider.Provider, recorder UsageRecorder, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{generator: generator, usage: recorder, logger: logger}
}

// Prompt returns the input sent to the generator for utterance.
func Prompt(utterance string) string {
	return fmt.Sprintf("Message:\n%s", utterance)
}

// ExtractCandidates asks the generator for candidate facts. It never fails:
// generator errors and unparsable output are logged and yield no candidates.
func (e *Extractor) ExtractCandidates(ctx context.Context, utterance, userID string) []Candidate {
	ctx, span := tracer.Start(ctx, "memory.extract")
	defer span.End()

	logger := e.logger.With("user_id", userID)

	start := time.Now()
	resp, err := provider.CompleteText(ctx, e.generator, extractionInstructions, Prompt(utterance))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generator failed")
		logger.Warn("memory extraction skipped: generator failed", "error", err)
		return nil
	}
	e.recordUsage(ctx, resp.Usage, time.Since(start))

	res, err := ParseCandidates(resp.Content)
	if err != nil {
		span.RecordError(err)
		logger.Warn("memory extraction skipped: unparsable output", "error", err)
		return nil
	}
	for _, rej := range res.Rejected {
		logger.Debug("memory candidate rejected", "error", rej)
	}
	if len(res.Candidates) == 0 {
		logger.Debug("memory extraction produced no candidates")
	}

	span.SetAttributes(
		attribute.Int("memory.candidates", len(res.Candidates)),
		attribute.Int("memory.rejected", len(res.Rejected)),
	)
	return res.Candidates
}

func (e *Extractor) recordUsage(ctx context.Context, u provider.TokenUsage, elapsed time.Duration) {
	if e.usage == nil {
		return
	}
	ref, ok := usage.RefFromContext(ctx)
	if !ok {
		return
	}
	e.usage.Record(ctx, usage.OperationExtract, u, elapsed, ref.ConversationID, ref.MessageID)
}
