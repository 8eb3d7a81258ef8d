package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/flemzord/mnemo/internal/provider"
)


// mapError converts a go-openai error into the matching provider sentinel.
// Context errors pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return mapStatus(apiErr.HTTPStatusCode, apiErr.Message, apiCode(apiErr))
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return mapStatus(reqErr.HTTPStatusCode, string(reqErr.Body), "")
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	return fmt.Errorf("openai: %w", err)
}

func mapStatus(status int, msg, code string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", provider.ErrRateLimit, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", provider.ErrAuth, msg)
	case status == http.StatusBadRequest && isContextLength(msg, code):
		return fmt.Errorf("%w: %s", provider.ErrContextLength, msg)
	case status >= 500:
		return fmt.Errorf("%w: %s", provider.ErrProviderDown, msg)
	default:
		return fmt.Errorf("openai: HTTP %d: %s", status, msg)
	}
}

func apiCode(e *goopenai.APIError) string {
	if s, ok := e.Code.(string); ok {
		return s
	}
	return ""
}

func isContextLength(msg, code string) bool {
	return code == "context_length_exceeded" ||
		strings.Contains(strings.ToLower(msg), "context_length") ||
		strings.Contains(strings.ToLower(msg), "maximum context length")
}
