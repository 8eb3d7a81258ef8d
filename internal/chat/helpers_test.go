package chat_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/mnemo/internal/chat"
	ctxengine "github.com/flemzord/mnemo/internal/context"
	"github.com/flemzord/mnemo/internal/conversation"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/provider"
	"github.com/flemzord/mnemo/internal/provider/providertest"
	"github.com/flemzord/mnemo/internal/usage"
)

const factJSON = `[{"shouldWrite":true,"content":"The user's name is Ada.","confidence":0.95,"category":"personal","tags":["name"]}]`

// harness wires a Service over in-memory stores and a scripted generator.
type harness struct {
	svc    *chat.Service
	convs  *conversation.InMemoryStore
	facts  *memory.InMemoryStore
	usage  *usage.InMemoryRepository
	gen    *providertest.MockProvider
	memory *memory.Service
}

type harnessOption func(*chat.Config)

// routeComplete answers summarization, extraction and naming calls by
// looking at the instructions message.
func routeComplete(title string) func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
	return func(_ context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
		instructions := req.Messages[0].Content
		u := provider.TokenUsage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6}
		switch {
		case strings.HasPrefix(instructions, "You name conversations"):
			return provider.CompletionResponse{Content: title, Usage: u}, nil
		case strings.HasPrefix(instructions, "You extract durable facts"):
			return provider.CompletionResponse{Content: factJSON, Usage: u}, nil
		default:
			return provider.CompletionResponse{Content: "earlier talk", Usage: u}, nil
		}
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		convs: conversation.NewInMemoryStore(),
		facts: memory.NewInMemoryStore(),
		usage: usage.NewInMemoryRepository(),
		gen: &providertest.MockProvider{
			CompleteFunc: routeComplete(`"Greetings and names."`),
			StreamFunc:   providertest.Chunks(provider.TokenUsage{PromptTokens: 10, CompletionTokens: 3, TotalTokens: 13}, "Hello", ", ", "Ada"),
		},
	}

	resolver := usage.AgentResolverFunc(func(ctx context.Context, id string) (string, error) {
		c, err := h.convs.GetConversation(ctx, id)
		if err != nil {
			return "", err
		}
		return c.AgentID, nil
	})
	tracker := usage.NewTracker(h.usage, resolver, nil, nil)

	mem, err := memory.NewService(memory.ServiceConfig{
		Store:     h.facts,
		Generator: h.gen,
		Usage:     tracker,
	})
	if err != nil {
		t.Fatalf("memory.NewService: %v", err)
	}
	h.memory = mem

	cfg := ctxengine.ContextConfig{RetainRecent: 3}
	compactor := ctxengine.NewCompactor(h.convs, ctxengine.NewGeneratorSummarizer(h.gen), tracker, cfg, nil)

	chatCfg := chat.Config{
		Conversations: h.convs,
		Context:       compactor,
		Assembler:     ctxengine.NewContextAssembler(nil, cfg),
		Memory:        mem,
		Generator:     h.gen,
		Usage:         tracker,
		SystemPrompt:  "You are helpful.",
		Naming:        true,
	}
	for _, opt := range opts {
		opt(&chatCfg)
	}

	svc, err := chat.NewService(chatCfg)
	if err != nil {
		t.Fatalf("chat.NewService: %v", err)
	}
	h.svc = svc
	return h
}

// collect drains events until the channel closes or the deadline passes.
func collect(t *testing.T, ch <-chan chat.StreamEvent) []chat.StreamEvent {
	t.Helper()
	var events []chat.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("reply channel not closed within timeout")
			return nil
		}
	}
}

func text(events []chat.StreamEvent) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == chat.StreamEventText {
			b.WriteString(ev.Content)
		}
	}
	return b.String()
}

func last(events []chat.StreamEvent) chat.StreamEvent {
	if len(events) == 0 {
		return chat.StreamEvent{}
	}
	return events[len(events)-1]
}
