package usage

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository is a thread-safe, in-memory Repository.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records []Record
	err     error
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

var _ Repository = (*InMemoryRepository)(nil)

// SetError makes SaveUsage fail with err until reset with nil.
func (r *InMemoryRepository) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// SaveUsage implements Repository.
func (r *InMemoryRepository) SaveUsage(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

// ListUsage implements Repository. An empty conversationID lists everything.
func (r *InMemoryRepository) ListUsage(_ context.Context, conversationID string) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for _, rec := range r.records {
		if conversationID == "" || rec.ConversationID == conversationID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// PruneUsage implements Repository.
func (r *InMemoryRepository) PruneUsage(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.records[:0]
	pruned := 0
	for _, rec := range r.records {
		if rec.CreatedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return pruned, nil
}
