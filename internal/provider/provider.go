// Package provider defines the Generator contract mnemo uses to talk to
// language models, plus a failover wrapper over several backends.
package provider

import "context"

// Provider is the interface for communicating with an LLM.
// Concrete implementations live in separate packages (e.g., provider.anthropic)
// and typically also implement core.Module for lifecycle management.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream sends a completion request and returns a channel of chunks.
	// Initial connection errors are returned directly. Mid-stream errors
	// are delivered via StreamChunk.Err. The channel is closed when the
	// response ends or ctx is cancelled.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// CompleteText runs a single-shot completion where instructions become the
// system message and input the only user message. It is the shape used by
// summarization, extraction and naming.
func CompleteText(ctx context.Context, p Provider, instructions, input string) (CompletionResponse, error) {
	if p == nil {
		return CompletionResponse{}, ErrNoProvider
	}
	req := CompletionRequest{
		Messages: []LLMMessage{
			{Role: MessageRoleSystem, Content: instructions},
			{Role: MessageRoleUser, Content: input},
		},
	}
	return p.Complete(ctx, req)
}
