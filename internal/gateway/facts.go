package gateway

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/mnemo/internal/chat"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/security"
)

// maxPreviewTopN caps the top_n query parameter of the memory preview.
const maxPreviewTopN = 100

// MemoryPreview is the JSON response for GET /api/users/{userID}/memory.
type MemoryPreview struct {
	UserID  string `json:"user_id"`
	Query   string `json:"query"`
	Context string `json:"context"`
}

func (g *Gateway) handleListFacts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		facts, err := g.facts.ListFacts(r.Context(), userID, r.URL.Query().Get("category"))
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, facts)
	}
}

func (g *Gateway) handleCreateFact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		var in memory.FactInput
		if err := decodeJSON(r, &in); err != nil {
			g.badBody(w, r, err)
			return
		}
		f, err := g.facts.CreateFact(r.Context(), userID, in)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		g.audit.Log(security.AuditEvent{
			Type:       security.EventFactCreate,
			UserID:     userID,
			FactID:     f.ID,
			RemoteAddr: remoteHost(r),
		})
		writeJSON(w, http.StatusCreated, f)
	}
}

func (g *Gateway) handleGetFact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := g.facts.GetFact(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "factID"))
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

// handleUpdateFact replaces a fact. The response carries the new fact,
// whose ID differs from the one in the path.
func (g *Gateway) handleUpdateFact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, factID := chi.URLParam(r, "userID"), chi.URLParam(r, "factID")
		var in memory.FactInput
		if err := decodeJSON(r, &in); err != nil {
			g.badBody(w, r, err)
			return
		}
		f, err := g.facts.UpdateFact(r.Context(), userID, factID, in)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		g.audit.Log(security.AuditEvent{
			Type:       security.EventFactUpdate,
			UserID:     userID,
			FactID:     factID,
			RemoteAddr: remoteHost(r),
			Metadata:   map[string]string{"new_fact_id": f.ID},
		})
		writeJSON(w, http.StatusOK, f)
	}
}

func (g *Gateway) handleDeleteFact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, factID := chi.URLParam(r, "userID"), chi.URLParam(r, "factID")
		if err := g.facts.DeleteFact(r.Context(), userID, factID); err != nil {
			g.fail(w, r, err)
			return
		}
		g.audit.Log(security.AuditEvent{
			Type:       security.EventFactDelete,
			UserID:     userID,
			FactID:     factID,
			RemoteAddr: remoteHost(r),
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleMemoryPreview renders the memory block a message q would inject.
func (g *Gateway) handleMemoryPreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		q := r.URL.Query()

		topN := chat.DefaultMemoryTopN
		if raw := q.Get("top_n"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxPreviewTopN {
				writeError(w, http.StatusBadRequest, "top_n must be an integer in [1,100]")
				return
			}
			topN = n
		}

		writeJSON(w, http.StatusOK, MemoryPreview{
			UserID:  userID,
			Query:   q.Get("q"),
			Context: g.facts.RetrieveMemoryContext(r.Context(), userID, q.Get("q"), topN),
		})
	}
}

// badBody answers a request whose JSON body could not be decoded.
func (g *Gateway) badBody(w http.ResponseWriter, r *http.Request, err error) {
	if code := statusFor(err); code == http.StatusRequestEntityTooLarge {
		writeError(w, code, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
}
