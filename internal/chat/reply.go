package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/mnemo/internal/conversation"
	ctxengine "github.com/flemzord/mnemo/internal/context"
	"github.com/flemzord/mnemo/internal/provider"
	"github.com/flemzord/mnemo/internal/usage"
)

const eventBufferSize = 16

// Reply records req.Message, builds the prompt and streams the reply.
//
// Errors before the first event (unknown conversation, compaction failure,
// generator refusing the stream) are returned directly. Afterwards errors
// arrive as StreamEventError. Cancelling ctx stops the generator; chunks
// already delivered stay delivered, and neither the partial reply nor the
// memory tail is persisted. On success the channel carries text events, a
// usage event, then StreamEventDone once the reply is stored and the memory
// tail has finished.
func (s *Service) Reply(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	// The span covers the stream and the memory tail once streaming starts.
	ctx, span := tracer.Start(ctx, "chat.reply")
	streaming := false
	defer func() {
		if !streaming {
			span.End()
		}
	}()

	conv, err := s.resolveConversation(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve conversation")
		return nil, err
	}
	span.SetAttributes(attribute.String("conversation.id", conv.ID))

	userTurn, err := s.convs.AppendTurn(ctx, conversation.Turn{
		ConversationID: conv.ID,
		Role:           conversation.RoleUser,
		Content:        req.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: append user turn: %w", err)
	}

	bounded, err := s.bounded.GetBoundedContext(ctx, conv.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bounded context")
		return nil, err
	}

	var memoryBlock string
	if s.memory != nil {
		memoryBlock = s.memory.RetrieveMemoryContext(ctx, conv.UserID, req.Message, s.topN)
	}

	assembled := s.assembler.Assemble(ctxengine.AssemblyRequest{
		SystemPrompt: s.system,
		Memory:       memoryBlock,
		Context:      bounded,
	})
	if assembled.Dropped > 0 {
		s.logger.Debug("prompt trimmed to fit window",
			"conversation_id", conv.ID,
			"dropped", assembled.Dropped,
		)
	}

	start := s.now()
	chunks, err := s.generator.Stream(ctx, provider.CompletionRequest{Messages: assembled.Messages})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generator stream")
		return nil, fmt.Errorf("chat: stream reply: %w", err)
	}

	t := &turn{
		svc:       s,
		conv:      conv,
		userTurn:  userTurn,
		firstTurn: len(bounded) == 1 && !bounded[0].IsSummary,
		start:     start,
	}
	out := make(chan StreamEvent, eventBufferSize)
	streaming = true
	go func() {
		defer close(out)
		defer span.End()
		t.run(ctx, chunks, out)
	}()
	return out, nil
}

func (s *Service) resolveConversation(ctx context.Context, req Request) (conversation.Conversation, error) {
	if req.ConversationID == "" {
		if req.UserID == "" {
			return conversation.Conversation{}, ErrMissingUser
		}
		conv, err := s.convs.CreateConversation(ctx, conversation.Conversation{
			UserID:  req.UserID,
			AgentID: s.agentID,
		})
		if err != nil {
			return conversation.Conversation{}, fmt.Errorf("chat: create conversation: %w", err)
		}
		s.logger.Info("conversation started", "conversation_id", conv.ID, "user_id", conv.UserID)
		return conv, nil
	}

	conv, err := s.convs.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("chat: load conversation: %w", err)
	}
	if req.UserID != "" && conv.UserID != req.UserID {
		return conversation.Conversation{}, fmt.Errorf("%w: %s", ErrUserMismatch, conv.ID)
	}
	return conv, nil
}

// turn carries one reply from the generator stream to the caller.
type turn struct {
	svc       *Service
	conv      conversation.Conversation
	userTurn  conversation.Turn
	firstTurn bool
	start     time.Time
}

func (t *turn) run(ctx context.Context, chunks <-chan provider.StreamChunk, out chan<- StreamEvent) {
	s := t.svc
	var (
		content strings.Builder
		used    *provider.TokenUsage
	)

	for chunk := range chunks {
		if chunk.Err != nil {
			drain(chunks)
			if errors.Is(chunk.Err, context.Canceled) || ctx.Err() != nil {
				s.logger.Info("reply cancelled", "conversation_id", t.conv.ID)
				return
			}
			s.logger.Warn("reply stream failed", "conversation_id", t.conv.ID, "error", chunk.Err)
			span := trace.SpanFromContext(ctx)
			span.RecordError(chunk.Err)
			span.SetStatus(codes.Error, "generator stream")
			send(ctx, out, StreamEvent{Type: StreamEventError, Err: fmt.Errorf("chat: stream reply: %w", chunk.Err)})
			return
		}
		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			if !send(ctx, out, StreamEvent{Type: StreamEventText, Content: chunk.Content}) {
				drain(chunks)
				s.logger.Info("reply cancelled", "conversation_id", t.conv.ID)
				return
			}
		}
		if chunk.Usage != nil {
			u := *chunk.Usage
			used = &u
		}
	}
	if ctx.Err() != nil {
		s.logger.Info("reply cancelled", "conversation_id", t.conv.ID)
		return
	}
	elapsed := s.now().Sub(t.start)

	// The reply is complete; what follows must not depend on the caller
	// staying around.
	post, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.postTimeout)
	defer cancel()

	assistant, err := s.convs.AppendTurn(post, conversation.Turn{
		ConversationID: t.conv.ID,
		Role:           conversation.RoleAssistant,
		Content:        content.String(),
	})
	if err != nil {
		s.logger.Error("assistant turn not persisted", "conversation_id", t.conv.ID, "error", err)
		send(ctx, out, StreamEvent{Type: StreamEventError, Err: fmt.Errorf("chat: append assistant turn: %w", err)})
		return
	}

	s.record(post, usage.OperationChat, used, elapsed, t.conv.ID, assistant.ID)
	if used != nil {
		send(ctx, out, StreamEvent{Type: StreamEventUsage, Usage: used})
	}

	if s.naming && t.firstTurn && t.conv.Title == "" {
		s.nameConversation(post, t.conv.ID, t.userTurn.Content, assistant.Content)
	}

	if s.memory != nil {
		tailCtx := usage.WithRef(post, usage.Ref{ConversationID: t.conv.ID, MessageID: t.userTurn.ID})
		<-s.memory.ExtractAndApplyAsync(tailCtx, t.userTurn.Content, t.conv.UserID)
	}

	send(ctx, out, StreamEvent{
		Type:           StreamEventDone,
		ConversationID: t.conv.ID,
		TurnID:         assistant.ID,
	})
}

// send delivers ev unless ctx is done first.
func send(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// drain consumes the rest of chunks so the producer can exit.
func drain(chunks <-chan provider.StreamChunk) {
	for range chunks { //nolint:revive // intentional empty drain loop
	}
}
