package chromem

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	chromemgo "github.com/philippgille/chromem-go"

	"github.com/flemzord/mnemo/internal/memory"
)

// tagsKey holds the JSON-encoded tag set in document metadata.
const tagsKey = "_tags"

type entry struct {
	text string
	tags memory.Tags
	seq  uint64
}

// Store implements memory.Store on a chromem-go collection. Similarity
// search goes through the collection; exact listing and existence checks
// use an in-process index kept in step with it.
//
// Every tag pair is stored as metadata "key:value" = "true", so the
// collection's exact-match where clause handles multi-valued tags.
type Store struct {
	col *chromemgo.Collection

	mu    sync.RWMutex
	index map[string]*entry
	seq   uint64
}

// Compile-time interface guard.
var _ memory.Store = (*Store)(nil)

// NewStore creates a store over a fresh in-memory collection using embed.
func NewStore(embed chromemgo.EmbeddingFunc) (*Store, error) {
	if embed == nil {
		embed = HashEmbedding(0)
	}
	db := chromemgo.NewDB()
	col, err := db.GetOrCreateCollection("facts", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection: %w", err)
	}
	return &Store{col: col, index: make(map[string]*entry)}, nil
}

// Import implements memory.Store.
func (s *Store) Import(ctx context.Context, text string, tags memory.Tags) (string, error) {
	id := tags.Get(memory.TagFactID)
	if id == "" {
		id = uuid.NewString()
	}
	tags = tags.Clone()

	blob, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("chromem: marshal tags: %w", err)
	}
	meta := map[string]string{tagsKey: string(blob)}
	for k, values := range tags {
		for _, v := range values {
			meta[pairKey(k, v)] = "true"
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; ok {
		if err := s.col.Delete(ctx, nil, nil, id); err != nil {
			return "", fmt.Errorf("chromem: replace document: %w", err)
		}
		delete(s.index, id)
	}

	if err := s.col.AddDocument(ctx, chromemgo.Document{
		ID:       id,
		Content:  text,
		Metadata: meta,
	}); err != nil {
		return "", fmt.Errorf("chromem: add document: %w", err)
	}

	s.seq++
	s.index[id] = &entry{text: text, tags: tags, seq: s.seq}
	return id, nil
}

// Search implements memory.Store. A non-empty query ranks by embedding
// similarity; an empty one lists newest first.
func (s *Store) Search(ctx context.Context, query string, filter map[string]string, topN int) ([]memory.Document, error) {
	if query == "" {
		return s.list(filter, topN), nil
	}

	// Held across the query so a concurrent delete cannot shrink the
	// collection below n.
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := s.col.Count()
	if total == 0 {
		return nil, nil
	}

	n := total
	if topN > 0 && topN < n {
		n = topN
	}

	var where map[string]string
	if len(filter) > 0 {
		where = make(map[string]string, len(filter))
		for k, v := range filter {
			where[pairKey(k, v)] = "true"
		}
	}

	results, err := s.col.Query(ctx, query, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	docs := make([]memory.Document, 0, len(results))
	for _, r := range results {
		var tags memory.Tags
		if err := json.Unmarshal([]byte(r.Metadata[tagsKey]), &tags); err != nil {
			return nil, fmt.Errorf("chromem: decode tags of %s: %w", r.ID, err)
		}
		docs = append(docs, memory.Document{
			ID:    r.ID,
			Text:  r.Content,
			Tags:  tags,
			Score: float64(r.Similarity),
		})
	}
	return docs, nil
}

// Delete implements memory.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; !ok {
		return fmt.Errorf("%w: %s", memory.ErrFactNotFound, id)
	}
	if err := s.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("chromem: delete document: %w", err)
	}
	delete(s.index, id)
	return nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

func (s *Store) list(filter map[string]string, topN int) []memory.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		id string
		e  *entry
	}
	var hits []hit
	for id, e := range s.index {
		if e.tags.Match(filter) {
			hits = append(hits, hit{id: id, e: e})
		}
	}
	slices.SortFunc(hits, func(a, b hit) int {
		return cmp.Compare(b.e.seq, a.e.seq)
	})
	if topN > 0 && len(hits) > topN {
		hits = hits[:topN]
	}

	docs := make([]memory.Document, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, memory.Document{ID: h.id, Text: h.e.text, Tags: h.e.tags.Clone()})
	}
	return docs
}

func pairKey(key, value string) string {
	return key + ":" + value
}
