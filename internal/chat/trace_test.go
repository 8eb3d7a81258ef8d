package chat_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/flemzord/mnemo/internal/chat"
	"github.com/flemzord/mnemo/internal/provider"
)

func endedSpans(rec *tracetest.SpanRecorder, name string) []sdktrace.ReadOnlySpan {
	var out []sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		if s.Name() == name {
			out = append(out, s)
		}
	}
	return out
}

// Not parallel: installs the global tracer provider.
func TestReply_SpanCoversStream(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	h := newHarness(t)
	release := make(chan struct{})
	h.gen.StreamFunc = func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
		ch := make(chan provider.StreamChunk)
		go func() {
			defer close(ch)
			<-release
			ch <- provider.StreamChunk{Content: "Hello"}
		}()
		return ch, nil
	}

	events, err := h.svc.Reply(context.Background(), chat.Request{UserID: "u1", Message: "Hi, I'm Ada."})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got := endedSpans(rec, "chat.reply"); len(got) != 0 {
		t.Fatalf("chat.reply ended before the stream: %d span(s)", len(got))
	}

	close(release)
	done := last(collect(t, events))
	if done.Type != chat.StreamEventDone {
		t.Fatalf("last event = %q, want done", done.Type)
	}

	replies := endedSpans(rec, "chat.reply")
	if len(replies) != 1 {
		t.Fatalf("chat.reply spans = %d, want 1", len(replies))
	}
	reply := replies[0]

	extracts := endedSpans(rec, "memory.extract")
	if len(extracts) == 0 {
		t.Fatal("no memory.extract span recorded")
	}
	for _, s := range extracts {
		if s.Parent().SpanID() != reply.SpanContext().SpanID() {
			t.Errorf("memory.extract parent = %s, want chat.reply %s", s.Parent().SpanID(), reply.SpanContext().SpanID())
		}
		if s.EndTime().After(reply.EndTime()) {
			t.Error("memory.extract ended after chat.reply")
		}
	}
}
