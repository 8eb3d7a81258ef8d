package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type conversationData struct {
	conv      Conversation
	turns     []Turn
	summaries []Turn
}

// InMemoryStore is a thread-safe, in-memory implementation of Store.
type InMemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*conversationData
	now   func() time.Time
}

// NewInMemoryStore creates a new empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		convs: make(map[string]*conversationData),
		now:   time.Now,
	}
}

// Compile-time interface check.
var _ Store = (*InMemoryStore)(nil)

// CreateConversation implements Store.
func (s *InMemoryStore) CreateConversation(_ context.Context, c Conversation) (Conversation, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[c.ID]; ok {
		return Conversation{}, fmt.Errorf("conversation: %s already exists", c.ID)
	}
	s.convs[c.ID] = &conversationData{conv: c}
	return c, nil
}

// GetConversation implements Store.
func (s *InMemoryStore) GetConversation(_ context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cd, ok := s.convs[id]
	if !ok {
		return Conversation{}, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	return cd.conv, nil
}

// SetTitle implements Store.
func (s *InMemoryStore) SetTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cd, ok := s.convs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	cd.conv.Title = title
	return nil
}

// DeleteConversation implements Store.
func (s *InMemoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	delete(s.convs, id)
	return nil
}

// AppendTurn implements Store.
func (s *InMemoryStore) AppendTurn(_ context.Context, t Turn) (Turn, error) {
	if !t.Role.Valid() || t.IsSummary {
		return Turn{}, fmt.Errorf("%w: role %q summary=%v", ErrInvalidTurn, t.Role, t.IsSummary)
	}
	s.fill(&t)

	s.mu.Lock()
	defer s.mu.Unlock()
	cd, ok := s.convs[t.ConversationID]
	if !ok {
		return Turn{}, fmt.Errorf("%w: %s", ErrConversationNotFound, t.ConversationID)
	}
	cd.turns = append(cd.turns, t)
	return t, nil
}

// Turns implements Store. Turns are kept in insertion order, which is
// CreatedAt order for turns stamped by this store.
func (s *InMemoryStore) Turns(_ context.Context, conversationID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cd, ok := s.convs[conversationID]
	if !ok {
		return nil, nil
	}
	result := make([]Turn, len(cd.turns))
	copy(result, cd.turns)
	return result, nil
}

// Summary implements Store.
func (s *InMemoryStore) Summary(_ context.Context, conversationID string) (Turn, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cd, ok := s.convs[conversationID]
	if !ok || len(cd.summaries) == 0 {
		return Turn{}, false, nil
	}
	latest := cd.summaries[0]
	for _, st := range cd.summaries[1:] {
		if st.UpdatedAt.After(latest.UpdatedAt) {
			latest = st
		}
	}
	return latest, true, nil
}

// SaveSummary implements Store.
func (s *InMemoryStore) SaveSummary(_ context.Context, t Turn) (Turn, error) {
	t.IsSummary = true
	if t.Role == "" {
		t.Role = RoleSystem
	}
	s.fill(&t)

	s.mu.Lock()
	defer s.mu.Unlock()
	cd, ok := s.convs[t.ConversationID]
	if !ok {
		return Turn{}, fmt.Errorf("%w: %s", ErrConversationNotFound, t.ConversationID)
	}
	for i := range cd.summaries {
		if cd.summaries[i].ID == t.ID {
			cd.summaries[i].Content = t.Content
			cd.summaries[i].UpdatedAt = t.UpdatedAt
			return cd.summaries[i], nil
		}
	}
	cd.summaries = append(cd.summaries, t)
	return t, nil
}

// SummaryCount returns how many summary turns a conversation holds.
func (s *InMemoryStore) SummaryCount(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cd, ok := s.convs[conversationID]; ok {
		return len(cd.summaries)
	}
	return 0
}

func (s *InMemoryStore) fill(t *Turn) {
	now := s.now().UTC()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() || t.IsSummary {
		t.UpdatedAt = now
	}
}
