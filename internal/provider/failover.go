package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Backoff bounds for a backend that returned a retryable error.
const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = time.Minute
)

// FailoverEntry is one backend in a Failover, tried in declaration order.
type FailoverEntry struct {
	Name     string
	Provider Provider
}

// Failover is a Provider that tries each backend in order, skipping those
// cooling down after a retryable failure (rate limit, outage). Non-retryable
// errors are returned immediately without trying the next backend.
type Failover struct {
	entries []*failoverEntry
	logger  *slog.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

type failoverEntry struct {
	FailoverEntry

	mu       sync.Mutex
	backoff  time.Duration
	retryAt  time.Time
	failures int
}

var _ Provider = (*Failover)(nil)

// NewFailover builds a Failover over the given entries.
// A nil logger falls back to slog.Default().
func NewFailover(entries []FailoverEntry, logger *slog.Logger) (*Failover, error) {
	if len(entries) == 0 {
		return nil, ErrNoProvider
	}
	if logger == nil {
		logger = slog.Default()
	}

	f := &Failover{
		logger:         logger,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		now:            time.Now,
	}
	for _, e := range entries {
		if e.Provider == nil {
			return nil, fmt.Errorf("%w: entry %q has nil provider", ErrNoProvider, e.Name)
		}
		f.entries = append(f.entries, &failoverEntry{FailoverEntry: e})
	}
	return f, nil
}

// Complete implements Provider.
func (f *Failover) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var lastErr error
	for _, e := range f.entries {
		if err := ctx.Err(); err != nil {
			return CompletionResponse{}, err
		}
		if !e.available(f.now()) {
			continue
		}

		resp, err := e.Provider.Complete(ctx, req)
		if err == nil {
			e.recordSuccess()
			return resp, nil
		}
		if !IsRetryable(err) {
			return CompletionResponse{}, err
		}
		lastErr = err
		f.recordFailure(e, err)
	}
	return CompletionResponse{}, f.exhausted(lastErr)
}

// Stream implements Provider. Failover only happens before the first chunk;
// mid-stream errors are delivered to the caller unchanged.
func (f *Failover) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	var lastErr error
	for _, e := range f.entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.available(f.now()) {
			continue
		}

		ch, err := e.Provider.Stream(ctx, req)
		if err == nil {
			e.recordSuccess()
			return ch, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		f.recordFailure(e, err)
	}
	return nil, f.exhausted(lastErr)
}

// ModelName reports the backends' models joined by '|'.
func (f *Failover) ModelName() string {
	names := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		names = append(names, e.Provider.ModelName())
	}
	return strings.Join(names, "|")
}

// Status is a point-in-time view of one failover backend.
type Status struct {
	Name      string    `json:"name"`
	Model     string    `json:"model"`
	Available bool      `json:"available"`
	Failures  int       `json:"failures"`
	RetryAt   time.Time `json:"retry_at,omitzero"`
}

// Status reports every backend in failover order.
func (f *Failover) Status() []Status {
	now := f.now()
	out := make([]Status, 0, len(f.entries))
	for _, e := range f.entries {
		e.mu.Lock()
		out = append(out, Status{
			Name:      e.Name,
			Model:     e.Provider.ModelName(),
			Available: !now.Before(e.retryAt),
			Failures:  e.failures,
			RetryAt:   e.retryAt,
		})
		e.mu.Unlock()
	}
	return out
}

func (f *Failover) recordFailure(e *failoverEntry, err error) {
	e.mu.Lock()
	e.failures++
	if e.backoff == 0 {
		e.backoff = f.initialBackoff
	} else {
		e.backoff = min(e.backoff*2, f.maxBackoff)
	}
	e.retryAt = f.now().Add(e.backoff)
	backoff, failures := e.backoff, e.failures
	e.mu.Unlock()

	f.logger.Warn("provider failed, failing over",
		"provider", e.Name,
		"backoff", backoff,
		"failures", failures,
		"reason", Reason(err),
		"error", err,
	)
}

func (f *Failover) exhausted(lastErr error) error {
	if lastErr != nil {
		f.logger.Error("all providers exhausted", "last_error", lastErr)
		return fmt.Errorf("%w: last error: %w", ErrAllProviders, lastErr)
	}
	return fmt.Errorf("%w: all candidates cooling down", ErrAllProviders)
}

func (e *failoverEntry) available(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !now.Before(e.retryAt)
}

func (e *failoverEntry) recordSuccess() {
	e.mu.Lock()
	e.failures = 0
	e.backoff = 0
	e.retryAt = time.Time{}
	e.mu.Unlock()
}
