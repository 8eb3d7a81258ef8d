// Package chat runs one chat turn end to end: it records the user's
// message, bounds the conversation context, injects remembered facts,
// streams the generator's reply and finally lets the memory subsystem learn
// from the user's message.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/flemzord/mnemo/internal/conversation"
	ctxengine "github.com/flemzord/mnemo/internal/context"
	"github.com/flemzord/mnemo/internal/provider"
	"github.com/flemzord/mnemo/internal/usage"
)

// Sentinel errors returned by Reply before any event is produced.
var (
	ErrEmptyMessage = errors.New("chat: empty message")
	ErrUserMismatch = errors.New("chat: conversation belongs to another user")
	ErrMissingUser  = errors.New("chat: user id is required")
)

// Defaults applied by NewService.
const (
	DefaultAgentID     = "default"
	DefaultMemoryTopN  = 10
	DefaultPostTimeout = 30 * time.Second
)

var tracer = otel.Tracer("github.com/flemzord/mnemo/internal/chat")

// StreamEventType identifies the kind of reply event.
type StreamEventType string

// StreamEventType constants.
const (
	StreamEventText  StreamEventType = "text"
	StreamEventUsage StreamEventType = "usage"
	StreamEventDone  StreamEventType = "done"
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one item of a streamed reply.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Usage   *provider.TokenUsage

	// ConversationID and TurnID are set on StreamEventDone. TurnID is the
	// persisted assistant turn.
	ConversationID string
	TurnID         string

	Err error
}

// Request is one user message. An empty ConversationID starts a new
// conversation owned by UserID.
type Request struct {
	ConversationID string
	UserID         string
	Message        string
}

// BoundedContexter returns the bounded view of a conversation.
type BoundedContexter interface {
	GetBoundedContext(ctx context.Context, conversationID string) ([]conversation.Turn, error)
}

// Memory is the slice of memory.Service the chat pipeline needs.
type Memory interface {
	RetrieveMemoryContext(ctx context.Context, userID, utterance string, topN int) string
	ExtractAndApplyAsync(ctx context.Context, utterance, userID string) <-chan struct{}
}

// UsageRecorder receives token usage for chat and naming calls.
type UsageRecorder interface {
	Record(ctx context.Context, op usage.Operation, u provider.TokenUsage, elapsed time.Duration, conversationID, messageID string)
}

// Config wires a Service.
type Config struct {
	Conversations conversation.Store
	Context       BoundedContexter
	Assembler     *ctxengine.ContextAssembler
	Memory        Memory
	Generator     provider.Provider
	Usage         UsageRecorder

	// SystemPrompt leads every prompt.
	SystemPrompt string

	// AgentID owns conversations started by Reply. Default: "default".
	AgentID string

	// MemoryTopN bounds injected facts. Default: 10.
	MemoryTopN int

	// Naming asks the generator for a title after the first exchange.
	Naming bool

	// PostTimeout bounds the work done after the last chunk: persisting the
	// reply, naming and the memory tail. Default: 30s.
	PostTimeout time.Duration

	Logger *slog.Logger
}

// Service handles chat turns.
type Service struct {
	convs       conversation.Store
	bounded     BoundedContexter
	assembler   *ctxengine.ContextAssembler
	memory      Memory
	generator   provider.Provider
	usage       UsageRecorder
	system      string
	agentID     string
	topN        int
	naming      bool
	postTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewService validates cfg and builds a Service. Memory and Usage may be nil.
func NewService(cfg Config) (*Service, error) {
	var errs []error
	if cfg.Conversations == nil {
		errs = append(errs, errors.New("chat: conversation store is required"))
	}
	if cfg.Context == nil {
		errs = append(errs, errors.New("chat: context engine is required"))
	}
	if cfg.Generator == nil {
		errs = append(errs, errors.New("chat: generator is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.Assembler == nil {
		cfg.Assembler = ctxengine.NewContextAssembler(nil, ctxengine.ContextConfig{})
	}
	if cfg.AgentID == "" {
		cfg.AgentID = DefaultAgentID
	}
	if cfg.MemoryTopN <= 0 {
		cfg.MemoryTopN = DefaultMemoryTopN
	}
	if cfg.PostTimeout <= 0 {
		cfg.PostTimeout = DefaultPostTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		convs:       cfg.Conversations,
		bounded:     cfg.Context,
		assembler:   cfg.Assembler,
		memory:      cfg.Memory,
		generator:   cfg.Generator,
		usage:       cfg.Usage,
		system:      cfg.SystemPrompt,
		agentID:     cfg.AgentID,
		topN:        cfg.MemoryTopN,
		naming:      cfg.Naming,
		postTimeout: cfg.PostTimeout,
		logger:      cfg.Logger.With("component", "chat"),
		now:         time.Now,
	}, nil
}

func (s *Service) record(ctx context.Context, op usage.Operation, u *provider.TokenUsage, elapsed time.Duration, conversationID, messageID string) {
	if s.usage == nil || u == nil {
		return
	}
	s.usage.Record(ctx, op, *u, elapsed, conversationID, messageID)
}
