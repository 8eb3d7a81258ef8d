package ctxengine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/mnemo/internal/conversation"
	"github.com/flemzord/mnemo/internal/provider"
	"github.com/flemzord/mnemo/internal/usage"
)

// mockSummarizer implements ctxengine.Summarizer for tests.
type mockSummarizer struct {
	mu     sync.Mutex
	result string
	usage  provider.TokenUsage
	err    error
	called int
	seen   [][]conversation.Turn
}

func (m *mockSummarizer) Summarize(_ context.Context, turns []conversation.Turn) (string, provider.TokenUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called++
	m.seen = append(m.seen, turns)
	return m.result, m.usage, m.err
}

func (m *mockSummarizer) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.called
}

type usageCall struct {
	op             usage.Operation
	conversationID string
}

type mockRecorder struct {
	mu    sync.Mutex
	calls []usageCall
}

func (m *mockRecorder) Record(_ context.Context, op usage.Operation, _ provider.TokenUsage, _ time.Duration, conversationID, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, usageCall{op: op, conversationID: conversationID})
}

// seedConversation creates a conversation with n alternating user/assistant turns.
func seedConversation(t *testing.T, store *conversation.InMemoryStore, n int) string {
	t.Helper()
	ctx := context.Background()
	c, err := store.CreateConversation(ctx, conversation.Conversation{UserID: "u1", AgentID: "default"})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	appendTurns(t, store, c.ID, 0, n)
	return c.ID
}

func appendTurns(t *testing.T, store *conversation.InMemoryStore, id string, from, n int) {
	t.Helper()
	for i := from; i < from+n; i++ {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		if _, err := store.AppendTurn(context.Background(), conversation.Turn{
			ConversationID: id,
			Role:           role,
			Content:        fmt.Sprintf("msg-%d", i),
		}); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}
}
