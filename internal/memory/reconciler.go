package memory

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultMinConfidence is the strict lower bound a candidate's confidence
// must exceed to be written.
const DefaultMinConfidence = 0.3

// ApplyReport summarizes one Reconciler.Apply call.
type ApplyReport struct {
	Written        int
	Skipped        int
	Deleted        int
	DeleteFailures int
	InsertFailures int
}

// Reconciler applies extractor candidates to a Store. A correction is a
// search for the superseded facts, an independent delete of each match,
// then an insert. The sequence is not atomic: a failed delete leaves the
// stale fact next to the new one.
type Reconciler struct {
	store         Store
	minConfidence float64
	logger        *slog.Logger
	now           func() time.Time
	locks         keyedMutex
}

// NewReconciler creates a reconciler. minConfidence <= 0 selects
// DefaultMinConfidence. A nil logger falls back to slog.Default().
func NewReconciler(store Store, minConfidence float64, logger *slog.Logger) *Reconciler {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:         store,
		minConfidence: minConfidence,
		logger:        logger,
		now:           time.Now,
	}
}

// Accepts reports whether c passes the write gate.
func (r *Reconciler) Accepts(c Candidate) bool {
	return c.ShouldWrite && c.Confidence > r.minConfidence && strings.TrimSpace(c.Content) != ""
}

// Apply writes every accepted candidate for userID. It never fails; every
// store error is logged and counted in the report.
func (r *Reconciler) Apply(ctx context.Context, candidates []Candidate, userID string) ApplyReport {
	ctx, span := tracer.Start(ctx, "memory.reconcile")
	defer span.End()

	var rep ApplyReport
	for _, c := range candidates {
		if !r.Accepts(c) {
			rep.Skipped++
			continue
		}
		r.applyOne(ctx, c, userID, &rep)
	}

	span.SetAttributes(
		attribute.Int("memory.written", rep.Written),
		attribute.Int("memory.deleted", rep.Deleted),
		attribute.Int("memory.skipped", rep.Skipped),
	)
	return rep
}

func (r *Reconciler) applyOne(ctx context.Context, c Candidate, userID string, rep *ApplyReport) {
	category := normalizeCategory(c.Category)
	tags := normalizeTags(c.Tags)
	logger := r.logger.With("user_id", userID, "category", category)

	if c.IsCorrection() {
		query := strings.ToLower(strings.TrimSpace(c.SearchQuery))
		unlock := r.locks.lock(userID + "\x00" + query)
		defer unlock()

		deleted, failed := r.deleteMatches(ctx, logger, userID, query, c.Category)
		rep.Deleted += deleted
		rep.DeleteFailures += failed

		// Keep the fact findable by the next correction of the same attribute.
		if !slices.Contains(tags, query) {
			tags = append(tags, query)
		}
	}

	now := r.now().UTC()
	f := Fact{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   strings.TrimSpace(c.Content),
		Category:  category,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := r.store.Import(ctx, f.Content, f.documentTags()); err != nil {
		rep.InsertFailures++
		logger.Warn("memory insert failed", "error", err)
		return
	}
	rep.Written++
	logger.Debug("memory fact written", "fact_id", f.ID, "tags", tags)
}

// deleteMatches removes every fact for userID tagged query. The category
// narrows the search only when the candidate names one.
func (r *Reconciler) deleteMatches(ctx context.Context, logger *slog.Logger, userID, query, category string) (deleted, failed int) {
	filter := map[string]string{TagUserID: userID, TagTags: query}
	if strings.TrimSpace(category) != "" {
		filter[TagCategory] = normalizeCategory(category)
	}

	docs, err := r.store.Search(ctx, "", filter, 0)
	if err != nil {
		logger.Warn("memory correction search failed", "search_query", query, "error", err)
		return 0, 0
	}
	for _, d := range docs {
		if err := r.store.Delete(ctx, d.ID); err != nil {
			failed++
			logger.Warn("memory correction delete failed", "fact_id", d.ID, "error", err)
			continue
		}
		deleted++
	}
	return deleted, failed
}

// keyedMutex serializes work per key within this process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
