package security

import (
	"context"
	"log/slog"
	"strings"
)

// sensitiveLogKeys are attribute keys whose string values are masked
// whole, whatever they contain.
var sensitiveLogKeys = map[string]bool{
	"authorization": true,
	"admin_token":   true,
	"api_key":       true,
	"password":      true,
	"secret":        true,
}

// RedactingHandler wraps a slog.Handler and redacts secrets from the
// message and every string-valued attribute before passing the record on.
// Values of sensitive keys such as "authorization" are masked entirely.
type RedactingHandler struct {
	inner    slog.Handler
	redactor *Redactor
}

// Compile-time check.
var _ slog.Handler = (*RedactingHandler)(nil)

// NewRedactingHandler creates a handler that wraps inner, applying
// redactor to every string attribute value.
func NewRedactingHandler(inner slog.Handler, redactor *Redactor) *RedactingHandler {
	if redactor == nil {
		redactor = NewRedactor()
	}
	return &RedactingHandler{
		inner:    inner,
		redactor: redactor,
	}
}

// Enabled delegates to the inner handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle rebuilds record with its message and attributes redacted.
func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	redacted := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, redacted)
}

// WithAttrs redacts attrs once and folds them into the inner handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(redacted), redactor: h.redactor}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), redactor: h.redactor}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	// Resolve LogValuers so errors and Stringers are redacted in their
	// final form.
	a.Value = a.Value.Resolve()

	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if s != "" && sensitiveLogKeys[strings.ToLower(a.Key)] {
			a.Value = slog.StringValue(RedactPlaceholder)
			return a
		}
		a.Value = slog.StringValue(h.redactor.Redact(s))
	case slog.KindGroup:
		attrs := a.Value.Group()
		redacted := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			redacted[i] = h.redactAttr(ga)
		}
		a.Value = slog.GroupValue(redacted...)
	case slog.KindAny:
		resolved := a.Value.String()
		if redacted := h.redactor.Redact(resolved); redacted != resolved {
			a.Value = slog.StringValue(redacted)
		}
	}
	return a
}
