package ctxengine_test

import (
	"strings"
	"testing"

	ctxengine "github.com/flemzord/mnemo/internal/context"
	"github.com/flemzord/mnemo/internal/conversation"
	"github.com/flemzord/mnemo/internal/provider"
)

func boundedContext(withSummary bool, n int) []conversation.Turn {
	var turns []conversation.Turn
	if withSummary {
		turns = append(turns, conversation.Turn{Role: conversation.RoleSystem, Content: ctxengine.SummaryPrefix + "earlier", IsSummary: true})
	}
	for i := range n {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		turns = append(turns, conversation.Turn{Role: role, Content: strings.Repeat("x", 40)})
	}
	return turns
}

func TestContextAssembler_Order(t *testing.T) {
	t.Parallel()

	a := ctxengine.NewContextAssembler(nil, ctxengine.ContextConfig{})
	res := a.Assemble(ctxengine.AssemblyRequest{
		SystemPrompt: "You are helpful.",
		Memory:       "## Relevant Memory\n- The user is 35.\n",
		Context:      boundedContext(true, 3),
	})

	if len(res.Messages) != 6 {
		t.Fatalf("messages = %d, want 6", len(res.Messages))
	}
	if res.Messages[0].Content != "You are helpful." || res.Messages[0].Role != provider.MessageRoleSystem {
		t.Errorf("messages[0] = %+v", res.Messages[0])
	}
	if !strings.Contains(res.Messages[1].Content, "Relevant Memory") {
		t.Errorf("messages[1] = %+v", res.Messages[1])
	}
	if !strings.HasPrefix(res.Messages[2].Content, ctxengine.SummaryPrefix) || res.Messages[2].Role != provider.MessageRoleSystem {
		t.Errorf("messages[2] = %+v", res.Messages[2])
	}
	if res.Messages[4].Role != provider.MessageRoleAssistant {
		t.Errorf("messages[4].Role = %q", res.Messages[4].Role)
	}
	if res.Dropped != 0 {
		t.Errorf("dropped = %d", res.Dropped)
	}
	if res.Budget.System == 0 || res.Budget.Memory == 0 || res.Budget.History == 0 {
		t.Errorf("budget = %+v", res.Budget)
	}
}

func TestContextAssembler_EmptyMemorySkipped(t *testing.T) {
	t.Parallel()

	a := ctxengine.NewContextAssembler(nil, ctxengine.ContextConfig{})
	res := a.Assemble(ctxengine.AssemblyRequest{Context: boundedContext(false, 2)})
	if len(res.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(res.Messages))
	}
	if res.Budget.Memory != 0 {
		t.Errorf("memory budget = %d", res.Budget.Memory)
	}
}

func TestContextAssembler_TrimsOldestKeepsSummaryAndLatest(t *testing.T) {
	t.Parallel()

	// Each 40-char turn costs 4 + 11 tokens with the default estimator.
	a := ctxengine.NewContextAssembler(nil, ctxengine.ContextConfig{MaxContextTokens: 60, ReservedForReply: 10})
	res := a.Assemble(ctxengine.AssemblyRequest{Context: boundedContext(true, 5)})

	if res.Dropped == 0 {
		t.Fatal("expected trimming")
	}
	if !strings.HasPrefix(res.Messages[0].Content, ctxengine.SummaryPrefix) {
		t.Error("summary was trimmed")
	}
	if len(res.Messages) < 2 {
		t.Fatal("latest turn was trimmed")
	}
	if got := len(res.Messages) - 1 + res.Dropped; got != 5 {
		t.Errorf("kept+dropped = %d, want 5", got)
	}
}

func TestContextAssembler_NeverDropsLatestTurn(t *testing.T) {
	t.Parallel()

	a := ctxengine.NewContextAssembler(nil, ctxengine.ContextConfig{MaxContextTokens: 1, ReservedForReply: 1})
	res := a.Assemble(ctxengine.AssemblyRequest{Context: boundedContext(false, 3)})
	if len(res.Messages) != 1 || res.Dropped != 2 {
		t.Errorf("messages = %d dropped = %d", len(res.Messages), res.Dropped)
	}
}
