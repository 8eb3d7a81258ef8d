package openai

import (
	"context"
	"errors"
	"io"

	goopenai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flemzord/mnemo/internal/provider"
)

// streamChannelBuffer is the buffer size for the streaming channel.
const streamChannelBuffer = 64

var tracer = otel.Tracer("github.com/flemzord/mnemo/modules/provider/openai")

// Complete sends a non-streaming completion request and returns the full response.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	ctx, span := tracer.Start(ctx, "openai.complete")
	defer span.End()

	chatReq := p.buildChatRequest(req, false)
	span.SetAttributes(attribute.String("gen_ai.request.model", chatReq.Model))
	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		err = mapError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, provider.Reason(err))
		return provider.CompletionResponse{}, err
	}
	out := fromResponse(resp)
	span.SetAttributes(
		attribute.Int("gen_ai.usage.input_tokens", out.Usage.PromptTokens),
		attribute.Int("gen_ai.usage.output_tokens", out.Usage.CompletionTokens),
	)
	return out, nil
}

// Stream sends a streaming completion request and returns a channel of chunks.
// HTTP errors are returned directly. Mid-stream errors are delivered via
// StreamChunk.Err.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildChatRequest(req, true))
	if err != nil {
		return nil, mapError(err)
	}

	ch := make(chan provider.StreamChunk, streamChannelBuffer)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()
		readStream(ctx, stream, ch)
	}()
	return ch, nil
}

// chunkReader is the part of *goopenai.ChatCompletionStream readStream uses.
type chunkReader interface {
	Recv() (goopenai.ChatCompletionStreamResponse, error)
}

// readStream forwards text deltas, then a final chunk carrying the finish
// reason and usage once the stream ends.
func readStream(ctx context.Context, stream chunkReader, ch chan<- provider.StreamChunk) {
	var (
		finish provider.FinishReason
		usage  *provider.TokenUsage
	)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() == nil {
				emit(ctx, ch, provider.StreamChunk{Err: mapError(err)})
			}
			return
		}

		if resp.Usage != nil {
			u := fromUsage(*resp.Usage)
			usage = &u
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content != "" {
				if !emit(ctx, ch, provider.StreamChunk{Content: choice.Delta.Content}) {
					return
				}
			}
			if fr := mapFinishReason(choice.FinishReason); fr != "" {
				finish = fr
			}
		}
	}

	if finish != "" || usage != nil {
		emit(ctx, ch, provider.StreamChunk{FinishReason: finish, Usage: usage})
	}
}

// emit sends chunk unless ctx is done first.
func emit(ctx context.Context, ch chan<- provider.StreamChunk, chunk provider.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// ModelName returns the configured model identifier.
func (p *Provider) ModelName() string {
	return p.config.Model
}
