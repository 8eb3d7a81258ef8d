package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/mnemo/internal/provider"
)

// DefaultTailTimeout bounds the detached extraction tail.
const DefaultTailTimeout = 30 * time.Second

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Store     Store
	Generator provider.Provider
	Usage     UsageRecorder

	// MinConfidence is the strict write threshold. Default: 0.3.
	MinConfidence float64

	// TailTimeout bounds ExtractAndApplyAsync. Default: 30s.
	TailTimeout time.Duration

	Logger *slog.Logger
}

// Service is the memory entry point used by the chat pipeline and the
// admin API.
type Service struct {
	store       Store
	extractor   *Extractor
	reconciler  *Reconciler
	retriever   *Retriever
	tailTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewService wires an extractor, reconciler and retriever over cfg.Store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("memory: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TailTimeout <= 0 {
		cfg.TailTimeout = DefaultTailTimeout
	}
	logger := cfg.Logger.With("component", "memory")

	return &Service{
		store:       cfg.Store,
		extractor:   NewExtractor(cfg.Generator, cfg.Usage, logger),
		reconciler:  NewReconciler(cfg.Store, cfg.MinConfidence, logger),
		retriever:   NewRetriever(cfg.Store),
		tailTimeout: cfg.TailTimeout,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Retriever returns the service's retriever.
func (s *Service) Retriever() *Retriever { return s.retriever }

// ExtractAndApplyMemories extracts candidates from utterance and reconciles
// them for userID. It never fails and never panics outward; the report is
// informational.
func (s *Service) ExtractAndApplyMemories(ctx context.Context, utterance, userID string) (rep ApplyReport) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("memory tail panicked", "user_id", userID, "panic", r)
			rep = ApplyReport{}
		}
	}()

	candidates := s.extractor.ExtractCandidates(ctx, utterance, userID)
	if len(candidates) == 0 {
		return ApplyReport{}
	}
	rep = s.reconciler.Apply(ctx, candidates, userID)
	s.logger.Info("memory tail applied",
		"user_id", userID,
		"written", rep.Written,
		"skipped", rep.Skipped,
		"deleted", rep.Deleted,
		"delete_failures", rep.DeleteFailures,
		"insert_failures", rep.InsertFailures,
	)
	return rep
}

// ExtractAndApplyAsync runs ExtractAndApplyMemories detached from ctx's
// cancellation, bounded by the tail timeout. The returned channel is closed
// when the work is done.
func (s *Service) ExtractAndApplyAsync(ctx context.Context, utterance, userID string) <-chan struct{} {
	done := make(chan struct{})
	tailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.tailTimeout)
	go func() {
		defer close(done)
		defer cancel()
		s.ExtractAndApplyMemories(tailCtx, utterance, userID)
	}()
	return done
}

// RetrieveMemoryContext returns the formatted memory block for utterance, or
// "" when nothing is stored or the store fails.
func (s *Service) RetrieveMemoryContext(ctx context.Context, userID, utterance string, topN int) string {
	facts, err := s.retriever.Retrieve(ctx, userID, utterance, topN, "")
	if err != nil {
		s.logger.Warn("memory retrieval skipped", "user_id", userID, "error", err)
		return ""
	}
	return FormatForPrompt(facts)
}

// CreateFact stores a user-authored fact.
func (s *Service) CreateFact(ctx context.Context, userID string, in FactInput) (Fact, error) {
	if err := in.validate(); err != nil {
		return Fact{}, err
	}
	now := s.now().UTC()
	f := Fact{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   in.Content,
		Category:  normalizeCategory(in.Category),
		Tags:      normalizeTags(in.Tags),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.store.Import(ctx, f.Content, f.documentTags()); err != nil {
		return Fact{}, unavailable("create fact", err)
	}
	return f, nil
}

// GetFact returns the fact factID owned by userID.
func (s *Service) GetFact(ctx context.Context, userID, factID string) (Fact, error) {
	docs, err := s.store.Search(ctx, "", map[string]string{TagUserID: userID, TagFactID: factID}, 1)
	if err != nil {
		return Fact{}, unavailable("get fact", err)
	}
	if len(docs) == 0 {
		return Fact{}, fmt.Errorf("%w: %s", ErrFactNotFound, factID)
	}
	return FactFromDocument(docs[0]), nil
}

// ListFacts returns every fact for userID, newest first, optionally
// restricted to one category.
func (s *Service) ListFacts(ctx context.Context, userID, category string) ([]Fact, error) {
	filter := map[string]string{TagUserID: userID}
	if category != "" {
		filter[TagCategory] = normalizeCategory(category)
	}
	docs, err := s.store.Search(ctx, "", filter, 0)
	if err != nil {
		return nil, unavailable("list facts", err)
	}
	facts := make([]Fact, 0, len(docs))
	for _, d := range docs {
		facts = append(facts, FactFromDocument(d))
	}
	return facts, nil
}

// UpdateFact replaces factID with a new fact carrying in. Like every update
// in this package it is a delete followed by an insert, so the returned
// fact has a new ID. CreatedAt is preserved.
func (s *Service) UpdateFact(ctx context.Context, userID, factID string, in FactInput) (Fact, error) {
	if err := in.validate(); err != nil {
		return Fact{}, err
	}
	old, err := s.GetFact(ctx, userID, factID)
	if err != nil {
		return Fact{}, err
	}
	if err := s.store.Delete(ctx, old.ID); err != nil {
		if errors.Is(err, ErrFactNotFound) {
			return Fact{}, fmt.Errorf("%w: %s", ErrFactNotFound, factID)
		}
		return Fact{}, unavailable("update fact", err)
	}

	f := Fact{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   in.Content,
		Category:  normalizeCategory(in.Category),
		Tags:      normalizeTags(in.Tags),
		CreatedAt: old.CreatedAt,
		UpdatedAt: s.now().UTC(),
	}
	if _, err := s.store.Import(ctx, f.Content, f.documentTags()); err != nil {
		return Fact{}, unavailable("update fact", err)
	}
	return f, nil
}

// DeleteFact removes factID if owned by userID.
func (s *Service) DeleteFact(ctx context.Context, userID, factID string) error {
	f, err := s.GetFact(ctx, userID, factID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, f.ID); err != nil {
		if errors.Is(err, ErrFactNotFound) {
			return fmt.Errorf("%w: %s", ErrFactNotFound, factID)
		}
		return unavailable("delete fact", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("memory: %s: %w: %w", op, ErrStoreUnavailable, err)
}
