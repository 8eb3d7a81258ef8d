package ctxengine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	ctxengine "github.com/flemzord/mnemo/internal/context"
	"github.com/flemzord/mnemo/internal/conversation"
	"github.com/flemzord/mnemo/internal/provider"
	"github.com/flemzord/mnemo/internal/usage"
)

func TestCompactor_UnderRetainReturnsAllTurns(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 4, 5} {
		t.Run(fmt.Sprintf("turns=%d", n), func(t *testing.T) {
			t.Parallel()

			store := conversation.NewInMemoryStore()
			id := seedConversation(t, store, n)
			sum := &mockSummarizer{result: "unused"}
			c := ctxengine.NewCompactor(store, sum, nil, ctxengine.ContextConfig{}, nil)

			got, err := c.GetBoundedContext(context.Background(), id)
			if err != nil {
				t.Fatalf("GetBoundedContext: %v", err)
			}
			if len(got) != n {
				t.Fatalf("len = %d, want %d", len(got), n)
			}
			for i, turn := range got {
				if turn.IsSummary || turn.Content != fmt.Sprintf("msg-%d", i) {
					t.Errorf("turn %d = %+v", i, turn)
				}
			}
			if sum.calls() != 0 {
				t.Errorf("summarizer called %d times", sum.calls())
			}
			if store.SummaryCount(id) != 0 {
				t.Error("summary turn created for a short conversation")
			}
		})
	}
}

func TestCompactor_OverRetainSummarizes(t *testing.T) {
	t.Parallel()

	store := conversation.NewInMemoryStore()
	id := seedConversation(t, store, 8)
	sum := &mockSummarizer{result: "they greeted each other"}
	c := ctxengine.NewCompactor(store, sum, nil, ctxengine.ContextConfig{}, nil)

	got, err := c.GetBoundedContext(context.Background(), id)
	if err != nil {
		t.Fatalf("GetBoundedContext: %v", err)
	}
	if len(got) != 1+5 {
		t.Fatalf("len = %d, want 6", len(got))
	}
	if !got[0].IsSummary {
		t.Fatal("first turn is not the summary")
	}
	if got[0].Content != ctxengine.SummaryPrefix+"they greeted each other" {
		t.Errorf("summary content = %q", got[0].Content)
	}
	if !strings.HasPrefix(got[0].Content, "Summary of earlier conversation:") {
		t.Errorf("summary missing prefix: %q", got[0].Content)
	}
	for i, turn := range got[1:] {
		if want := fmt.Sprintf("msg-%d", i+3); turn.Content != want || turn.IsSummary {
			t.Errorf("tail[%d] = %q, want %q", i, turn.Content, want)
		}
	}
	if len(sum.seen[0]) != 3 {
		t.Errorf("summarized %d turns, want 3", len(sum.seen[0]))
	}
}

func TestCompactor_RepeatedReadsKeepOneSummary(t *testing.T) {
	t.Parallel()

	store := conversation.NewInMemoryStore()
	id := seedConversation(t, store, 9)
	sum := &mockSummarizer{result: "s"}
	c := ctxengine.NewCompactor(store, sum, nil, ctxengine.ContextConfig{}, nil)

	first, err := c.GetBoundedContext(context.Background(), id)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := c.GetBoundedContext(context.Background(), id)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if store.SummaryCount(id) != 1 {
		t.Errorf("summary turns = %d, want 1", store.SummaryCount(id))
	}
	if first[0].ID != second[0].ID {
		t.Error("summary turn was not reused")
	}
	if second[0].UpdatedAt.Before(first[0].UpdatedAt) {
		t.Error("UpdatedAt went backwards")
	}

	// New turns move the window but still reuse the same summary row.
	appendTurns(t, store, id, 9, 2)
	sum.result = "s2"
	third, err := c.GetBoundedContext(context.Background(), id)
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if third[0].ID != first[0].ID || third[0].Content != ctxengine.SummaryPrefix+"s2" {
		t.Errorf("summary = %+v", third[0])
	}
	if store.SummaryCount(id) != 1 {
		t.Errorf("summary turns = %d, want 1", store.SummaryCount(id))
	}
	if third[len(third)-1].Content != "msg-10" {
		t.Errorf("last turn = %q", third[len(third)-1].Content)
	}
}

func TestCompactor_CustomRetain(t *testing.T) {
	t.Parallel()

	store := conversation.NewInMemoryStore()
	id := seedConversation(t, store, 4)
	c := ctxengine.NewCompactor(store, &mockSummarizer{result: "s"}, nil, ctxengine.ContextConfig{RetainRecent: 2}, nil)

	got, err := c.GetBoundedContext(context.Background(), id)
	if err != nil {
		t.Fatalf("GetBoundedContext: %v", err)
	}
	if len(got) != 3 || got[1].Content != "msg-2" {
		t.Errorf("got %d turns: %+v", len(got), got)
	}
	if c.RetainRecent() != 2 {
		t.Errorf("RetainRecent = %d", c.RetainRecent())
	}
}

func TestCompactor_SummarizerErrorPropagates(t *testing.T) {
	t.Parallel()

	store := conversation.NewInMemoryStore()
	id := seedConversation(t, store, 7)
	cause := errors.New("generator down")
	c := ctxengine.NewCompactor(store, &mockSummarizer{err: cause}, nil, ctxengine.ContextConfig{}, nil)

	_, err := c.GetBoundedContext(context.Background(), id)
	if !errors.Is(err, ctxengine.ErrCompactionFailed) {
		t.Fatalf("err = %v, want ErrCompactionFailed", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want cause wrapped", err)
	}
	if store.SummaryCount(id) != 0 {
		t.Error("summary written despite failure")
	}
}

func TestCompactor_RecordsSummarizeUsage(t *testing.T) {
	t.Parallel()

	store := conversation.NewInMemoryStore()
	id := seedConversation(t, store, 6)
	rec := &mockRecorder{}
	sum := &mockSummarizer{result: "s", usage: provider.TokenUsage{TotalTokens: 20}}
	c := ctxengine.NewCompactor(store, sum, rec, ctxengine.ContextConfig{}, nil)

	if _, err := c.GetBoundedContext(context.Background(), id); err != nil {
		t.Fatalf("GetBoundedContext: %v", err)
	}
	if len(rec.calls) != 1 || rec.calls[0].op != usage.OperationSummarize || rec.calls[0].conversationID != id {
		t.Errorf("usage calls = %+v", rec.calls)
	}
}

func TestCompactor_ConcurrentReadsMayRaceButStayReadable(t *testing.T) {
	t.Parallel()

	store := conversation.NewInMemoryStore()
	id := seedConversation(t, store, 10)
	c := ctxengine.NewCompactor(store, &mockSummarizer{result: "s"}, nil, ctxengine.ContextConfig{}, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.GetBoundedContext(context.Background(), id)
			if err != nil {
				t.Errorf("GetBoundedContext: %v", err)
				return
			}
			if len(got) != 6 || !got[0].IsSummary {
				t.Errorf("bounded context shape = %d turns", len(got))
			}
		}()
	}
	wg.Wait()

	if n := store.SummaryCount(id); n < 1 {
		t.Errorf("summary turns = %d, want >= 1", n)
	}
	if _, ok, _ := store.Summary(context.Background(), id); !ok {
		t.Error("no readable summary after concurrent compaction")
	}
}
