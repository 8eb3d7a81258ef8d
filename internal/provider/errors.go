package provider

import (
	"context"
	"errors"
)

// Sentinel errors for generator calls. Backends wrap them so the failover
// chain and the HTTP layer can classify failures.
var (
	// ErrRateLimit indicates the backend returned a rate limit response.
	ErrRateLimit = errors.New("provider: rate limited")

	// ErrContextLength indicates the prompt exceeded the model's window.
	ErrContextLength = errors.New("provider: context length exceeded")

	// ErrProviderDown indicates the backend is temporarily unavailable.
	ErrProviderDown = errors.New("provider: unavailable")

	// ErrAuth indicates the backend rejected the credentials. It is not
	// retried on another backend.
	ErrAuth = errors.New("provider: authentication failed")

	// ErrAllProviders indicates every failover backend was tried or is
	// cooling down.
	ErrAllProviders = errors.New("provider: all providers failed")

	// ErrNoProvider indicates no generator backend is configured.
	ErrNoProvider = errors.New("provider: no provider configured")
)

// IsRetryable reports whether the error is transient and the request
// can be retried with a different provider or after a delay.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}

// Reason returns a short label for err suitable for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRateLimit):
		return "rate_limit"
	case errors.Is(err, ErrProviderDown):
		return "unavailable"
	case errors.Is(err, ErrContextLength):
		return "context_length"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrAllProviders):
		return "exhausted"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
