package gateway

import (
	"io"
	"net/http"
	"strconv"

	"github.com/flemzord/mnemo/internal/chat"
	"github.com/flemzord/mnemo/internal/security"
)

// Trailers sent after a streamed reply.
const (
	TrailerConversationID = "X-Conversation-Id"
	TrailerTurnID         = "X-Turn-Id"
	TrailerInputTokens    = "X-Input-Tokens"
	TrailerOutputTokens   = "X-Output-Tokens"
	TrailerError          = "X-Error"
)

// ChatRequest is the JSON body of POST /api/chat.
type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
}

// handleChat streams the reply as chunked plain text. Identifiers, token
// usage and any mid-stream failure are reported in HTTP trailers because
// they are only known once the reply is complete.
func (g *Gateway) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := decodeJSON(r, &req); err != nil {
			g.badBody(w, r, err)
			return
		}

		if g.limiter != nil && req.UserID != "" {
			if err := g.limiter.Allow(security.KindChat, req.UserID); err != nil {
				g.audit.Log(security.AuditEvent{
					Type:       security.EventRateLimit,
					UserID:     req.UserID,
					RemoteAddr: remoteHost(r),
					Detail:     "chat",
				})
				g.fail(w, r, err)
				return
			}
		}

		events, err := g.chat.Reply(r.Context(), chat.Request{
			ConversationID: req.ConversationID,
			UserID:         req.UserID,
			Message:        req.Message,
		})
		if err != nil {
			g.fail(w, r, err)
			return
		}

		h := w.Header()
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Cache-Control", "no-store")
		h.Add("Trailer", TrailerConversationID)
		h.Add("Trailer", TrailerTurnID)
		h.Add("Trailer", TrailerInputTokens)
		h.Add("Trailer", TrailerOutputTokens)
		h.Add("Trailer", TrailerError)
		w.WriteHeader(http.StatusOK)

		rc := http.NewResponseController(w)
		for ev := range events {
			switch ev.Type {
			case chat.StreamEventText:
				if _, err := io.WriteString(w, ev.Content); err != nil {
					// Client went away; Reply observes the cancelled
					// request context and stops.
					continue
				}
				_ = rc.Flush()
			case chat.StreamEventUsage:
				if ev.Usage != nil {
					h.Set(TrailerInputTokens, strconv.Itoa(ev.Usage.PromptTokens))
					h.Set(TrailerOutputTokens, strconv.Itoa(ev.Usage.CompletionTokens))
				}
			case chat.StreamEventError:
				g.logger.WarnContext(r.Context(), "reply failed", "user_id", req.UserID, "error", ev.Err)
				h.Set(TrailerError, "reply failed")
			case chat.StreamEventDone:
				h.Set(TrailerConversationID, ev.ConversationID)
				h.Set(TrailerTurnID, ev.TurnID)
			}
		}
	}
}
