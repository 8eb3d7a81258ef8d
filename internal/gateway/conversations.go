package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/mnemo/internal/conversation"
	"github.com/flemzord/mnemo/internal/security"
)

// BoundedContextResponse is the JSON response for
// GET /api/conversations/{conversationID}/context.
type BoundedContextResponse struct {
	ConversationID string              `json:"conversation_id"`
	Turns          []conversation.Turn `json:"turns"`
}

func (g *Gateway) handleGetConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := g.convs.GetConversation(r.Context(), chi.URLParam(r, "conversationID"))
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// handleDeleteConversation removes a conversation and all of its turns.
func (g *Gateway) handleDeleteConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "conversationID")
		c, err := g.convs.GetConversation(r.Context(), id)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		if err := g.convs.DeleteConversation(r.Context(), id); err != nil {
			g.fail(w, r, err)
			return
		}
		g.audit.Log(security.AuditEvent{
			Type:           security.EventConversationDelete,
			UserID:         c.UserID,
			ConversationID: id,
			RemoteAddr:     remoteHost(r),
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleBoundedContext returns what the generator would see for the
// conversation. It may compact the conversation as a side effect.
func (g *Gateway) handleBoundedContext() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "conversationID")
		if _, err := g.convs.GetConversation(r.Context(), id); err != nil {
			g.fail(w, r, err)
			return
		}
		turns, err := g.bounded.GetBoundedContext(r.Context(), id)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		if turns == nil {
			turns = []conversation.Turn{}
		}
		writeJSON(w, http.StatusOK, BoundedContextResponse{ConversationID: id, Turns: turns})
	}
}
