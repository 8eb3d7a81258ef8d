package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flemzord/mnemo/internal/security"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid bearer", "Bearer secret-token", http.StatusOK},
		{"wrong bearer", "Bearer wrong-token", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"basic scheme", "Basic c2VjcmV0LXRva2Vu", http.StatusUnauthorized},
		{"lowercase scheme", "bearer secret-token", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := authMiddleware("secret-token", nil, nil)(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestAuthMiddleware_AuditsFailures(t *testing.T) {
	t.Parallel()

	var events []security.AuditEvent
	audit := security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(e security.AuditEvent) { events = append(events, e) },
	})
	handler := authMiddleware("secret-token", audit, nil)(okHandler())

	req := httptest.NewRequest(http.MethodDelete, "/api/users/u1/facts/f1", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(events) != 1 {
		t.Fatalf("got %d audit events, want 1", len(events))
	}
	if events[0].Type != security.EventAuthFailure {
		t.Errorf("type = %q, want %q", events[0].Type, security.EventAuthFailure)
	}
	if events[0].RemoteAddr != "192.0.2.7" {
		t.Errorf("remote addr = %q, want host only", events[0].RemoteAddr)
	}
}

func TestAuthMiddleware_RateLimited(t *testing.T) {
	t.Parallel()

	limiter := security.NewRateLimiter(security.RateLimitConfig{AuthPerMin: 2})
	handler := authMiddleware("secret-token", nil, limiter)(okHandler())

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		req.RemoteAddr = "192.0.2.8:1234"
		req.Header.Set("Authorization", "Bearer wrong")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	want := []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("attempt %d: status = %d, want %d", i, codes[i], want[i])
		}
	}
}

func TestRouter_APIRequiresToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp := env.doWithToken(t, http.MethodGet, "/api/users/u1/facts", nil, "")
	wantStatus(t, resp, http.StatusUnauthorized)

	resp = env.doWithToken(t, http.MethodGet, "/health", nil, "")
	wantStatus(t, resp, http.StatusOK)
}
