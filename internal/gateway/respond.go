package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flemzord/mnemo/internal/chat"
	ctxengine "github.com/flemzord/mnemo/internal/context"
	"github.com/flemzord/mnemo/internal/conversation"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/provider"
	"github.com/flemzord/mnemo/internal/security"
)

type errorBody struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, memory.ErrFactNotFound),
		errors.Is(err, conversation.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, memory.ErrInvalidFact),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrMissingUser):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrUserMismatch):
		return http.StatusForbidden
	case errors.Is(err, security.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, memory.ErrStoreUnavailable),
		errors.Is(err, provider.ErrAllProviders):
		return http.StatusServiceUnavailable
	case errors.Is(err, ctxengine.ErrCompactionFailed),
		errors.Is(err, provider.ErrAuth),
		errors.Is(err, provider.ErrContextLength):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server-side failures are logged
// and answered with a generic message.
func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		g.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, code, http.StatusText(code))
		return
	}
	writeError(w, code, err.Error())
}
