package memory_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/provider"
	"github.com/flemzord/mnemo/internal/provider/providertest"
)

func newService(t *testing.T, store memory.Store, gen provider.Provider) *memory.Service {
	t.Helper()
	svc, err := memory.NewService(memory.ServiceConfig{Store: store, Generator: gen})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestNewService_RequiresStore(t *testing.T) {
	t.Parallel()

	if _, err := memory.NewService(memory.ServiceConfig{}); err == nil {
		t.Fatal("expected error without store")
	}
}

func TestService_ExtractAndApplyMemories(t *testing.T) {
	t.Parallel()

	store := memory.NewInMemoryStore()
	gen := &providertest.MockProvider{CompleteFunc: providertest.Text(threeFacts, provider.TokenUsage{})}
	svc := newService(t, store, gen)

	rep := svc.ExtractAndApplyMemories(context.Background(), "My name is John, I am 35, I work as a software engineer", "u1")
	if rep.Written != 3 {
		t.Fatalf("written = %d, want 3", rep.Written)
	}
	if store.Len() != 3 {
		t.Errorf("store len = %d, want 3", store.Len())
	}
}

func TestService_ExtractAndApplyMemories_GeneratorThrows(t *testing.T) {
	t.Parallel()

	store := memory.NewInMemoryStore()
	gen := &providertest.MockProvider{CompleteFunc: providertest.Fail(errors.New("generator down"))}
	svc := newService(t, store, gen)

	rep := svc.ExtractAndApplyMemories(context.Background(), "I am 35", "u1")
	if rep != (memory.ApplyReport{}) {
		t.Errorf("report = %+v, want zero", rep)
	}
	if store.Len() != 0 {
		t.Errorf("facts written: %d", store.Len())
	}
}

func TestService_ExtractAndApplyMemories_RecoversPanic(t *testing.T) {
	t.Parallel()

	gen := &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			panic("generator exploded")
		},
	}
	svc := newService(t, memory.NewInMemoryStore(), gen)

	rep := svc.ExtractAndApplyMemories(context.Background(), "I am 35", "u1")
	if rep != (memory.ApplyReport{}) {
		t.Errorf("report = %+v, want zero", rep)
	}
}

func TestService_ExtractAndApplyAsync_DetachedFromCaller(t *testing.T) {
	t.Parallel()

	store := memory.NewInMemoryStore()
	started := make(chan struct{})
	release := make(chan struct{})
	gen := &providertest.MockProvider{
		CompleteFunc: func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
			close(started)
			<-release
			if err := ctx.Err(); err != nil {
				return provider.CompletionResponse{}, err
			}
			return providertest.Text(threeFacts, provider.TokenUsage{})(ctx, req)
		},
	}
	svc := newService(t, store, gen)

	ctx, cancel := context.WithCancel(context.Background())
	done := svc.ExtractAndApplyAsync(ctx, "My name is John, I am 35, I work as a software engineer", "u1")
	<-started
	cancel()
	close(release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tail did not finish")
	}
	if store.Len() != 3 {
		t.Errorf("store len = %d, want 3 (tail must survive caller cancellation)", store.Len())
	}
}

func TestService_RetrieveMemoryContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewInMemoryStore()
	svc := newService(t, store, nil)

	if got := svc.RetrieveMemoryContext(ctx, "u1", "anything", 5); got != "" {
		t.Errorf("empty store produced %q", got)
	}

	if _, err := svc.CreateFact(ctx, "u1", memory.FactInput{Content: "The user likes tea.", Category: "preferences"}); err != nil {
		t.Fatalf("CreateFact: %v", err)
	}
	got := svc.RetrieveMemoryContext(ctx, "u1", "tea", 5)
	if !strings.Contains(got, "The user likes tea.") || !strings.HasPrefix(got, memory.MemoryPreamble) {
		t.Errorf("context = %q", got)
	}

	store.SetFault(errors.New("down"))
	if got := svc.RetrieveMemoryContext(ctx, "u1", "tea", 5); got != "" {
		t.Errorf("store failure leaked context %q", got)
	}
}

func TestService_CRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newService(t, memory.NewInMemoryStore(), nil)

	created, err := svc.CreateFact(ctx, "u1", memory.FactInput{Content: "The user is 35.", Category: "Personal", Tags: []string{"Age"}})
	if err != nil {
		t.Fatalf("CreateFact: %v", err)
	}
	if created.ID == "" || created.Category != "personal" || created.Tags[0] != "age" {
		t.Errorf("created = %+v", created)
	}

	got, err := svc.GetFact(ctx, "u1", created.ID)
	if err != nil {
		t.Fatalf("GetFact: %v", err)
	}
	if got.Content != created.Content || !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("got = %+v, want %+v", got, created)
	}

	if _, err := svc.GetFact(ctx, "u2", created.ID); !errors.Is(err, memory.ErrFactNotFound) {
		t.Errorf("other user's GetFact err = %v, want ErrFactNotFound", err)
	}

	updated, err := svc.UpdateFact(ctx, "u1", created.ID, memory.FactInput{Content: "The user is 36.", Category: "personal", Tags: []string{"age"}})
	if err != nil {
		t.Fatalf("UpdateFact: %v", err)
	}
	if updated.ID == created.ID {
		t.Error("update should insert a new document")
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("update lost CreatedAt")
	}
	if _, err := svc.GetFact(ctx, "u1", created.ID); !errors.Is(err, memory.ErrFactNotFound) {
		t.Errorf("old fact still readable: %v", err)
	}

	list, err := svc.ListFacts(ctx, "u1", "")
	if err != nil {
		t.Fatalf("ListFacts: %v", err)
	}
	if len(list) != 1 || list[0].Content != "The user is 36." {
		t.Errorf("list = %+v", list)
	}

	if err := svc.DeleteFact(ctx, "u2", updated.ID); !errors.Is(err, memory.ErrFactNotFound) {
		t.Errorf("cross-user delete err = %v", err)
	}
	if err := svc.DeleteFact(ctx, "u1", updated.ID); err != nil {
		t.Fatalf("DeleteFact: %v", err)
	}
	if list, _ := svc.ListFacts(ctx, "u1", ""); len(list) != 0 {
		t.Errorf("list after delete = %+v", list)
	}
}

func TestService_CRUDValidation(t *testing.T) {
	t.Parallel()

	svc := newService(t, memory.NewInMemoryStore(), nil)
	if _, err := svc.CreateFact(context.Background(), "u1", memory.FactInput{Content: " "}); !errors.Is(err, memory.ErrInvalidFact) {
		t.Errorf("err = %v, want ErrInvalidFact", err)
	}
}

func TestService_CRUDStoreUnavailable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewInMemoryStore()
	svc := newService(t, store, nil)
	store.SetFault(errors.New("connection refused"))

	if _, err := svc.CreateFact(ctx, "u1", memory.FactInput{Content: "x"}); !errors.Is(err, memory.ErrStoreUnavailable) {
		t.Errorf("CreateFact err = %v", err)
	}
	if _, err := svc.GetFact(ctx, "u1", "f"); !errors.Is(err, memory.ErrStoreUnavailable) {
		t.Errorf("GetFact err = %v", err)
	}
	if _, err := svc.ListFacts(ctx, "u1", ""); !errors.Is(err, memory.ErrStoreUnavailable) {
		t.Errorf("ListFacts err = %v", err)
	}
	if err := svc.DeleteFact(ctx, "u1", "f"); !errors.Is(err, memory.ErrStoreUnavailable) {
		t.Errorf("DeleteFact err = %v", err)
	}
}

func TestService_TailSwallowsStoreUnavailable(t *testing.T) {
	t.Parallel()

	store := memory.NewInMemoryStore()
	store.SetFault(errors.New("connection refused"))
	gen := &providertest.MockProvider{CompleteFunc: providertest.Text(threeFacts, provider.TokenUsage{})}
	svc := newService(t, store, gen)

	rep := svc.ExtractAndApplyMemories(context.Background(), "My name is John", "u1")
	if rep.InsertFailures != 3 || rep.Written != 0 {
		t.Errorf("report = %+v", rep)
	}
}
