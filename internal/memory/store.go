// Package memory maintains a durable, user-scoped fact store: extracting
// candidate facts from utterances, reconciling corrections against a
// tag-indexed document store, and formatting retrieved facts for prompts.
package memory

import (
	"context"
	"maps"
	"slices"
)

// Tag keys every stored fact carries.
const (
	TagUserID    = "userId"
	TagCategory  = "category"
	TagFactID    = "factId"
	TagCreatedAt = "createdAt"
	TagUpdatedAt = "updatedAt"
	TagTags      = "tags"
)

// Tags is the tag set of a stored document. Keys may carry several values;
// TagTags is the only multi-valued key mnemo writes.
type Tags map[string][]string

// Get returns the first value for key, or "".
func (t Tags) Get(key string) string {
	if v := t[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Set replaces all values for key with value.
func (t Tags) Set(key, value string) {
	t[key] = []string{value}
}

// Add appends value to key unless already present.
func (t Tags) Add(key, value string) {
	if !slices.Contains(t[key], value) {
		t[key] = append(t[key], value)
	}
}

// Has reports whether key carries value.
func (t Tags) Has(key, value string) bool {
	return slices.Contains(t[key], value)
}

// Match reports whether every filter pair is present. An empty filter matches.
func (t Tags) Match(filter map[string]string) bool {
	for k, v := range filter {
		if !t.Has(k, v) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (t Tags) Clone() Tags {
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = slices.Clone(v)
	}
	return out
}

// Keys returns the tag keys in sorted order.
func (t Tags) Keys() []string {
	return slices.Sorted(maps.Keys(t))
}

// Document is a stored text with its tags, as returned by Store.Search.
type Document struct {
	ID    string
	Text  string
	Tags  Tags
	Score float64
}

// Store is a tag-indexed document store. Filters are exact-match only.
// Implementations must be safe for concurrent use.
type Store interface {
	// Import stores text with tags and returns the document ID. When tags
	// carry TagFactID its value is used as the ID.
	Import(ctx context.Context, text string, tags Tags) (string, error)

	// Search returns documents matching every filter pair, ranked by
	// relevance to query. An empty query ranks newest first. topN <= 0
	// returns every match.
	Search(ctx context.Context, query string, filter map[string]string, topN int) ([]Document, error)

	// Delete removes a document by ID. Unknown IDs return ErrFactNotFound.
	Delete(ctx context.Context, id string) error
}
