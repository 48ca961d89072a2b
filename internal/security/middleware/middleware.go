package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yourorg/taskhub/internal/security/audit"
	"github.com/yourorg/taskhub/internal/security/ratelimit"
	"github.com/yourorg/taskhub/internal/session"
)

type sessionContextKey struct{}

// SessionLoader is the part of the session gateway API routes depend on.
type SessionLoader interface {
	Active(w http.ResponseWriter, r *http.Request) (*session.Session, error)
}

// SessionMiddleware resolves the session cookie for API routes, refreshing
// tokens as a side effect, and injects a session.Context. Requests without a
// valid session get 401; page routes use the guard's redirects instead.
func SessionMiddleware(gateway SessionLoader, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := gateway.Active(w, r)
			if err != nil {
				log.Error("session resolution failed", slog.String("error", err.Error()))
				writeJSONError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if sess == nil {
				writeJSONError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, sess.Context())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware limits requests per authenticated user; requests
// without a session fall back to the client address.
func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if sc, ok := SessionFromContext(r.Context()); ok {
				key = sc.UserID
			}

			if !limiter.Allow(key) {
				log.Warn("rate limit exceeded", slog.String("key", key))
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// StrictRateLimitMiddleware applies a tighter per-address limit on
// credential endpoints, on top of the regular limit.
func StrictRateLimitMiddleware(limiter *ratelimit.Limiter, maxRequests int, window time.Duration, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.AllowStrict(r.RemoteAddr, maxRequests, window) {
				log.Warn("strict rate limit exceeded",
					slog.String("address", r.RemoteAddr),
					slog.String("path", r.URL.Path),
				)
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuditMiddleware records privileged mutations as they are initiated.
func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := ""
			if sc, ok := SessionFromContext(r.Context()); ok {
				userID = sc.UserID
			}

			switch {
			case r.Method == http.MethodPost && r.URL.Path == "/api/users/invite":
				auditLog.LogAction(r.Context(), "", userID, "invite", "user", "", "initiated", "")
			case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/api/users/") && strings.HasSuffix(r.URL.Path, "/role"):
				targetID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/role")
				auditLog.LogAction(r.Context(), "", userID, "role_change", "user", targetID, "initiated", "")
			case r.Method == http.MethodPost && r.URL.Path == "/api/tasks/check-overdue":
				auditLog.LogSweep(r.Context(), userID, "initiated")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext returns the caller identity injected by
// SessionMiddleware.
func SessionFromContext(ctx context.Context) (session.Context, bool) {
	sc, ok := ctx.Value(sessionContextKey{}).(session.Context)
	return sc, ok
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
