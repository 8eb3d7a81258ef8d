package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
)

type memDoc struct {
	id   string
	text string
	tags Tags
	seq  uint64
}

// InMemoryStore is a thread-safe, in-memory implementation of Store.
// Search ranks by the share of query words found in the text; documents
// that share no word are still returned after the scored ones.
type InMemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]*memDoc
	seq   uint64
	fault error
}

// NewInMemoryStore creates a new empty memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		docs: make(map[string]*memDoc),
	}
}

// Compile-time interface check.
var _ Store = (*InMemoryStore)(nil)

// SetFault makes every subsequent call fail with err until reset with nil.
func (s *InMemoryStore) SetFault(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = err
}

// Import implements Store.
func (s *InMemoryStore) Import(_ context.Context, text string, tags Tags) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault != nil {
		return "", s.fault
	}

	id := tags.Get(TagFactID)
	if id == "" {
		id = uuid.NewString()
	}
	s.seq++
	s.docs[id] = &memDoc{id: id, text: text, tags: tags.Clone(), seq: s.seq}
	return id, nil
}

// Search implements Store.
func (s *InMemoryStore) Search(_ context.Context, query string, filter map[string]string, topN int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fault != nil {
		return nil, s.fault
	}

	words := tokenize(query)
	type hit struct {
		doc   *memDoc
		score float64
	}
	var hits []hit
	for _, d := range s.docs {
		if !d.tags.Match(filter) {
			continue
		}
		hits = append(hits, hit{doc: d, score: overlap(words, tokenize(d.text))})
	}

	slices.SortFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(b.doc.seq, a.doc.seq)
	})
	if topN > 0 && len(hits) > topN {
		hits = hits[:topN]
	}

	out := make([]Document, 0, len(hits))
	for _, h := range hits {
		out = append(out, Document{ID: h.doc.id, Text: h.doc.text, Tags: h.doc.tags.Clone(), Score: h.score})
	}
	return out, nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault != nil {
		return s.fault
	}
	if _, ok := s.docs[id]; !ok {
		return ErrFactNotFound
	}
	delete(s.docs, id)
	return nil
}

// Len returns the total number of stored documents.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// overlap returns the fraction of query words present in text.
func overlap(query, text []string) float64 {
	if len(query) == 0 {
		return 0
	}
	n := 0
	for _, w := range query {
		if slices.Contains(text, w) {
			n++
		}
	}
	return float64(n) / float64(len(query))
}
