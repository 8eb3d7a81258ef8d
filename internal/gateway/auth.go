package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/flemzord/mnemo/internal/security"
)

// authMiddleware validates the admin bearer token in constant time.
// Attempts are rate-limited per remote address when a limiter is given and
// outcomes are sent to the audit logger.
func authMiddleware(token string, audit *security.AuditLogger, limiter *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := remoteHost(r)
			if limiter != nil {
				if err := limiter.Allow(security.KindAuth, addr); err != nil {
					audit.Log(security.AuditEvent{Type: security.EventRateLimit, RemoteAddr: addr, Detail: "auth"})
					writeError(w, http.StatusTooManyRequests, "too many requests")
					return
				}
			}

			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || !constantTimeEqual(got, token) {
				audit.Log(security.AuditEvent{
					Type:       security.EventAuthFailure,
					RemoteAddr: addr,
					Detail:     r.Method + " " + r.URL.Path,
				})
				w.Header().Set("WWW-Authenticate", `Bearer realm="mnemo"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// remoteHost strips the port from r.RemoteAddr.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
