// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/mnemo/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior. Unset funcs panic on call.
// All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc  func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	StreamFunc    func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
	ModelNameFunc func() string

	mu            sync.Mutex
	CompleteCalls int
	StreamCalls   int
	Requests      []provider.CompletionRequest
}

// Complete delegates to CompleteFunc and tracks call count.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// Stream delegates to StreamFunc and tracks call count.
func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	m.mu.Lock()
	m.StreamCalls++
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	return m.StreamFunc(ctx, req)
}

// ModelName delegates to ModelNameFunc, defaulting to "mock".
func (m *MockProvider) ModelName() string {
	if m.ModelNameFunc == nil {
		return "mock"
	}
	return m.ModelNameFunc()
}

// Calls returns the number of Complete and Stream calls so far.
func (m *MockProvider) Calls() (complete, stream int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompleteCalls, m.StreamCalls
}

// Text returns a CompleteFunc that always answers content with the given usage.
func Text(content string, usage provider.TokenUsage) func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
	return func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
		return provider.CompletionResponse{
			Content:      content,
			FinishReason: provider.FinishReasonStop,
			Usage:        usage,
		}, nil
	}
}

// Fail returns a CompleteFunc that always fails with err.
func Fail(err error) func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
	return func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
		return provider.CompletionResponse{}, err
	}
}

// Chunks returns a StreamFunc that emits one chunk per piece, then a final
// chunk carrying usage. Emission stops early if ctx is cancelled.
func Chunks(usage provider.TokenUsage, pieces ...string) func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	return func(ctx context.Context, _ provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
		ch := make(chan provider.StreamChunk)
		go func() {
			defer close(ch)
			for _, p := range pieces {
				select {
				case ch <- provider.StreamChunk{Content: p}:
				case <-ctx.Done():
					return
				}
			}
			u := usage
			select {
			case ch <- provider.StreamChunk{FinishReason: provider.FinishReasonStop, Usage: &u}:
			case <-ctx.Done():
			}
		}()
		return ch, nil
	}
}

// Interface guards.
var _ provider.Provider = (*MockProvider)(nil)
