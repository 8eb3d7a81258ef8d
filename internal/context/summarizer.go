package ctxengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/flemzord/mnemo/internal/conversation"
	"github.com/flemzord/mnemo/internal/provider"
)

const summarizeInstructions = `Summarize the conversation transcript below for another assistant that will continue it.
Keep names, numbers, decisions, open questions and anything the user asked to remember.
Write plain prose in the third person, at most a few short paragraphs. Do not add commentary.`

// Summarizer produces a condensed summary of a run of conversation turns.
type Summarizer interface {
	Summarize(ctx context.Context, turns []conversation.Turn) (string, provider.TokenUsage, error)
}

// Transcript renders turns as "role: content" lines, oldest first.
func Transcript(turns []conversation.Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
	}
	return b.String()
}

// GeneratorSummarizer summarizes through a provider.
type GeneratorSummarizer struct {
	generator provider.Provider
}

// NewGeneratorSummarizer creates a summarizer backed by generator.
func NewGeneratorSummarizer(generator provider.Provider) *GeneratorSummarizer {
	return &GeneratorSummarizer{generator: generator}
}

// Summarize implements Summarizer.
func (s *GeneratorSummarizer) Summarize(ctx context.Context, turns []conversation.Turn) (string, provider.TokenUsage, error) {
	resp, err := provider.CompleteText(ctx, s.generator, summarizeInstructions, Transcript(turns))
	if err != nil {
		return "", provider.TokenUsage{}, err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", resp.Usage, fmt.Errorf("ctxengine: empty summary")
	}
	return text, resp.Usage, nil
}

// CachedSummarizer memoizes summaries by transcript hash so an unchanged
// prefix is not summarized twice in one process. Cache hits report zero usage.
type CachedSummarizer struct {
	next  Summarizer
	cache *ristretto.Cache
}

// NewCachedSummarizer wraps next with a cache holding up to entries summaries.
func NewCachedSummarizer(next Summarizer, entries int) (*CachedSummarizer, error) {
	if entries <= 0 {
		return nil, fmt.Errorf("ctxengine: summary cache size must be positive, got %d", entries)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(entries) * 10,
		MaxCost:     int64(entries),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ctxengine: summary cache: %w", err)
	}
	return &CachedSummarizer{next: next, cache: cache}, nil
}

// Summarize implements Summarizer.
func (s *CachedSummarizer) Summarize(ctx context.Context, turns []conversation.Turn) (string, provider.TokenUsage, error) {
	key := transcriptKey(turns)
	if v, ok := s.cache.Get(key); ok {
		if text, ok := v.(string); ok {
			return text, provider.TokenUsage{}, nil
		}
	}

	text, usage, err := s.next.Summarize(ctx, turns)
	if err != nil {
		return "", usage, err
	}
	s.cache.Set(key, text, 1)
	// Make the entry visible to the next read; Set is buffered.
	s.cache.Wait()
	return text, usage, nil
}

// Close releases the cache.
func (s *CachedSummarizer) Close() {
	s.cache.Close()
}

func transcriptKey(turns []conversation.Turn) string {
	h := sha256.New()
	for _, t := range turns {
		h.Write([]byte(t.ID))
		h.Write([]byte{0})
		h.Write([]byte(t.Role))
		h.Write([]byte{0})
		h.Write([]byte(t.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
