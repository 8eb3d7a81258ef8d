package memory

import (
	"slices"
	"strings"
	"time"
)

// DefaultCategory is used for facts stored without a category.
const DefaultCategory = "general"

// Fact is a durable statement about a user, stored as a tagged document.
type Fact struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FactInput carries the user-editable fields of a fact.
type FactInput struct {
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

func (in FactInput) validate() error {
	if strings.TrimSpace(in.Content) == "" {
		return ErrInvalidFact
	}
	return nil
}

// documentTags builds the stored tag set for f.
func (f Fact) documentTags() Tags {
	t := Tags{}
	t.Set(TagUserID, f.UserID)
	t.Set(TagCategory, f.Category)
	t.Set(TagFactID, f.ID)
	t.Set(TagCreatedAt, f.CreatedAt.UTC().Format(time.RFC3339Nano))
	t.Set(TagUpdatedAt, f.UpdatedAt.UTC().Format(time.RFC3339Nano))
	for _, tag := range f.Tags {
		t.Add(TagTags, tag)
	}
	return t
}

// FactFromDocument rebuilds a Fact from a stored document.
func FactFromDocument(doc Document) Fact {
	id := doc.Tags.Get(TagFactID)
	if id == "" {
		id = doc.ID
	}
	created, _ := time.Parse(time.RFC3339Nano, doc.Tags.Get(TagCreatedAt))
	updated, err := time.Parse(time.RFC3339Nano, doc.Tags.Get(TagUpdatedAt))
	if err != nil {
		updated = created
	}
	return Fact{
		ID:        id,
		UserID:    doc.Tags.Get(TagUserID),
		Content:   doc.Text,
		Category:  doc.Tags.Get(TagCategory),
		Tags:      slices.Clone(doc.Tags[TagTags]),
		CreatedAt: created,
		UpdatedAt: updated,
	}
}

// normalizeTags lowercases, trims and dedups tags, keeping first-seen order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func normalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return DefaultCategory
	}
	return c
}
