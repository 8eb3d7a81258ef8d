package memory

import (
	"context"
	"fmt"
	"strings"
)

// Markers framing the memory block injected into a prompt.
const (
	MemoryPreamble  = "## Relevant Memory\nFacts remembered about the user from earlier conversations:\n"
	MemoryPostamble = "## End of Relevant Memory\n"
)

// Retriever ranks stored facts for a query through the Store.
type Retriever struct {
	store Store
}

// NewRetriever creates a retriever over store.
func NewRetriever(store Store) *Retriever {
	return &Retriever{store: store}
}

// Retrieve returns up to topN facts for userID ranked by the store against
// query. A non-empty category narrows the search. The store's order is kept.
func (r *Retriever) Retrieve(ctx context.Context, userID, query string, topN int, category string) ([]Fact, error) {
	filter := map[string]string{TagUserID: userID}
	if category != "" {
		filter[TagCategory] = normalizeCategory(category)
	}

	docs, err := r.store.Search(ctx, query, filter, topN)
	if err != nil {
		return nil, fmt.Errorf("memory: retrieve: %w", err)
	}

	facts := make([]Fact, 0, len(docs))
	for _, d := range docs {
		facts = append(facts, FactFromDocument(d))
	}
	return facts, nil
}

// FormatForPrompt renders facts grouped by category in first-seen order.
// Zero facts yield "" so callers skip injection entirely.
func FormatForPrompt(facts []Fact) string {
	if len(facts) == 0 {
		return ""
	}

	var order []string
	groups := make(map[string][]string)
	for _, f := range facts {
		cat := f.Category
		if cat == "" {
			cat = DefaultCategory
		}
		if _, seen := groups[cat]; !seen {
			order = append(order, cat)
		}
		groups[cat] = append(groups[cat], f.Content)
	}

	var b strings.Builder
	b.WriteString(MemoryPreamble)
	for _, cat := range order {
		b.WriteString("\n### ")
		b.WriteString(cat)
		b.WriteString("\n")
		for _, content := range groups[cat] {
			b.WriteString("- ")
			b.WriteString(content)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(MemoryPostamble)
	return b.String()
}
