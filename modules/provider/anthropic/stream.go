package anthropic

import (
	"context"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/flemzord/mnemo/internal/provider"
)

const streamBufferSize = 16

// Stream sends a streaming completion request and returns a channel of StreamChunks.
// Initial connection errors are returned directly; mid-stream errors arrive via StreamChunk.Err.
func (a *Anthropic) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	params := convertRequest(req, &a.config, a.logger)

	stream := a.client.Messages.NewStreaming(ctx, params)

	// Pull the first event synchronously so auth, network and 4xx errors
	// reach the caller before any chunk, which is what Failover needs.
	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close() //nolint:errcheck // best-effort close
		if err != nil {
			return nil, mapError(err)
		}
		ch := make(chan provider.StreamChunk)
		close(ch)
		return ch, nil
	}

	first := stream.Current()
	ch := make(chan provider.StreamChunk, streamBufferSize)

	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }() //nolint:errcheck // best-effort close

		consume(ctx, stream, first, ch)
	}()

	return ch, nil
}

// consume processes first and then the rest of stream.
func consume(
	ctx context.Context,
	stream *ssestream.Stream[sdkanthropic.MessageStreamEventUnion],
	first sdkanthropic.MessageStreamEventUnion,
	ch chan<- provider.StreamChunk,
) {
	var inputTokens int64
	process := func(event sdkanthropic.MessageStreamEventUnion) {
		switch ev := event.AsAny().(type) {
		case sdkanthropic.MessageStartEvent:
			inputTokens = ev.Message.Usage.InputTokens

		case sdkanthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(sdkanthropic.TextDelta); ok && delta.Text != "" {
				emit(ctx, ch, provider.StreamChunk{Content: delta.Text})
			}

		case sdkanthropic.MessageDeltaEvent:
			out := ev.Usage.OutputTokens
			emit(ctx, ch, provider.StreamChunk{
				FinishReason: convertStopReason(ev.Delta.StopReason),
				Usage: &provider.TokenUsage{
					PromptTokens:     int(inputTokens),
					CompletionTokens: int(out),
					TotalTokens:      int(inputTokens + out),
				},
			})
		}
	}

	process(first)
	for stream.Next() {
		if ctx.Err() != nil {
			return
		}
		process(stream.Current())
	}

	if err := stream.Err(); err != nil {
		emit(ctx, ch, provider.StreamChunk{Err: mapError(err)})
	}
}

// emit sends a StreamChunk to the channel, respecting context cancellation.
func emit(ctx context.Context, ch chan<- provider.StreamChunk, chunk provider.StreamChunk) {
	select {
	case ch <- chunk:
	case <-ctx.Done():
	}
}
