package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// EventType categorizes audit events.
type EventType string

// Audit event types for the admin surface.
const (
	EventAuthSuccess        EventType = "auth_success"
	EventAuthFailure        EventType = "auth_failure"
	EventRateLimit          EventType = "rate_limit"
	EventFactCreate         EventType = "fact_create"
	EventFactUpdate         EventType = "fact_update"
	EventFactDelete         EventType = "fact_delete"
	EventConversationDelete EventType = "conversation_delete"
)

// AuditEvent is a single audit log entry.
type AuditEvent struct {
	Timestamp      time.Time         `json:"timestamp"`
	Type           EventType         `json:"type"`
	UserID         string            `json:"user_id,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	FactID         string            `json:"fact_id,omitempty"`
	RemoteAddr     string            `json:"remote_addr,omitempty"`
	Detail         string            `json:"detail,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	// Writer is the destination for JSONL output. If nil, events are only
	// dispatched to OnEvent.
	Writer io.Writer

	// Redactor, if non-nil, is applied to Detail and Metadata values before writing.
	Redactor *Redactor

	// OnEvent, if non-nil, is called for every event.
	OnEvent func(AuditEvent)

	// Now overrides time.Now for testing. Defaults to time.Now.
	Now func() time.Time
}

// AuditLogger writes structured audit events as JSONL with optional redaction.
type AuditLogger struct {
	writer      io.Writer
	redactor    *Redactor
	onEvent     func(AuditEvent)
	now         func() time.Time
	mu          sync.Mutex
	writeErrors atomic.Int64
}

// NewAuditLogger creates an audit logger with the given configuration.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AuditLogger{
		writer:   cfg.Writer,
		redactor: cfg.Redactor,
		onEvent:  cfg.OnEvent,
		now:      now,
	}
}

// Log writes an audit event. The timestamp is set automatically.
// If a Redactor is configured, Detail and Metadata values are redacted.
// The caller's Metadata map is never mutated.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event.Timestamp = l.now()

	if len(event.Metadata) > 0 {
		event.Metadata = maps.Clone(event.Metadata)
	}

	if l.redactor != nil {
		event.Detail = l.redactor.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactor.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.onEvent != nil {
		l.onEvent(event)
	}

	if l.writer != nil {
		if err := json.NewEncoder(l.writer).Encode(event); err != nil {
			l.writeErrors.Add(1)
		}
	}
}

// WriteErrors reports how many events failed to reach the writer.
func (l *AuditLogger) WriteErrors() int64 {
	return l.writeErrors.Load()
}
