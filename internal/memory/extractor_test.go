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
	"github.com/flemzord/mnemo/internal/usage"
)

type recordedUsage struct {
	op             usage.Operation
	conversationID string
	messageID      string
	tokens         int
}

type fakeRecorder struct {
	records []recordedUsage
}

func (f *fakeRecorder) Record(_ context.Context, op usage.Operation, u provider.TokenUsage, _ time.Duration, conversationID, messageID string) {
	f.records = append(f.records, recordedUsage{op: op, conversationID: conversationID, messageID: messageID, tokens: u.TotalTokens})
}

func TestExtractor_ThreeDisjointCandidates(t *testing.T) {
	t.Parallel()

	gen := &providertest.MockProvider{CompleteFunc: providertest.Text(threeFacts, provider.TokenUsage{TotalTokens: 40})}
	ex := memory.NewExtractor(gen, nil, nil)

	utterance := "My name is John, I am 35, I work as a software engineer"
	got := ex.ExtractCandidates(context.Background(), utterance, "u1")
	if len(got) != 3 {
		t.Fatalf("candidates = %d, want 3", len(got))
	}

	seen := map[string]bool{}
	for _, c := range got {
		for _, tag := range c.Tags {
			if seen[tag] {
				t.Errorf("tag %q appears in more than one candidate", tag)
			}
			seen[tag] = true
		}
	}
	for _, want := range []string{"name", "age", "profession"} {
		if !seen[want] {
			t.Errorf("missing tag %q", want)
		}
	}

	req := gen.Requests[0]
	if !strings.Contains(req.Messages[1].Content, utterance) {
		t.Error("prompt does not embed the utterance")
	}
	if !strings.Contains(req.Messages[0].Content, "JSON array") {
		t.Error("instructions do not ask for a JSON array")
	}
}

func TestExtractor_GeneratorFailureYieldsNothing(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	gen := &providertest.MockProvider{CompleteFunc: providertest.Fail(errors.New("boom"))}
	ex := memory.NewExtractor(gen, nil, logger)

	if got := ex.ExtractCandidates(context.Background(), "hi", "u1"); len(got) != 0 {
		t.Fatalf("candidates = %d, want 0", len(got))
	}
	if !strings.Contains(buf.String(), "generator failed") {
		t.Errorf("failure not logged: %s", buf.String())
	}
	if c, _ := gen.Calls(); c != 1 {
		t.Errorf("generator calls = %d, want 1 (no retry)", c)
	}
}

func TestExtractor_MalformedOutputYieldsNothing(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	gen := &providertest.MockProvider{CompleteFunc: providertest.Text("Sure! The user is John.", provider.TokenUsage{})}
	ex := memory.NewExtractor(gen, nil, logger)

	if got := ex.ExtractCandidates(context.Background(), "I'm John", "u1"); len(got) != 0 {
		t.Fatalf("candidates = %d, want 0", len(got))
	}
	if !strings.Contains(buf.String(), "unparsable output") {
		t.Errorf("parse failure not logged: %s", buf.String())
	}
}

func TestExtractor_RecordsUsageWhenAttributed(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	gen := &providertest.MockProvider{CompleteFunc: providertest.Text("[]", provider.TokenUsage{TotalTokens: 12})}
	ex := memory.NewExtractor(gen, rec, nil)

	ex.ExtractCandidates(context.Background(), "hello", "u1")
	if len(rec.records) != 0 {
		t.Fatalf("recorded without a conversation ref: %+v", rec.records)
	}

	ctx := usage.WithRef(context.Background(), usage.Ref{ConversationID: "c1", MessageID: "m1"})
	ex.ExtractCandidates(ctx, "hello", "u1")
	if len(rec.records) != 1 {
		t.Fatalf("records = %d, want 1", len(rec.records))
	}
	got := rec.records[0]
	if got.op != usage.OperationExtract || got.conversationID != "c1" || got.messageID != "m1" || got.tokens != 12 {
		t.Errorf("record = %+v", got)
	}
}
