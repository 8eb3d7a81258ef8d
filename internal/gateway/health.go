package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/mnemo/internal/provider"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string            `json:"status"` // "ok" or "degraded"
	Version   string            `json:"version,omitempty"`
	Uptime    int64             `json:"uptime_seconds"`
	Providers []provider.Status `json:"providers,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 while at least one generator backend is available, 503 when
// every backend is cooling down.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			Version: g.version,
			Uptime:  int64(time.Since(g.startedAt) / time.Second),
		}

		if g.providers != nil {
			resp.Providers = g.providers.Status()
			available := false
			for _, p := range resp.Providers {
				if p.Available {
					available = true
					break
				}
			}
			if !available && len(resp.Providers) > 0 {
				resp.Status = "degraded"
			}
		}

		code := http.StatusOK
		if resp.Status == "degraded" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
