// Package guard intercepts requests to protected page paths and enforces the
// Unauthenticated -> Authenticated -> AuthorizedForPath progression. It only
// ever redirects; services still re-validate role and tenant on every call.
package guard

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/yourorg/taskhub/internal/domain"
	"github.com/yourorg/taskhub/internal/observability/metrics"
	"github.com/yourorg/taskhub/internal/session"
	"github.com/yourorg/taskhub/pkg/config"
)

// SessionLoader resolves (and may refresh) the caller's session.
type SessionLoader interface {
	Active(w http.ResponseWriter, r *http.Request) (*session.Session, error)
}

// RoleResolver returns the caller's current directory role.
type RoleResolver interface {
	Role(ctx context.Context, userID string) (domain.Role, error)
}

// Guard enforces path rules over a configured set of prefixes. Paths outside
// the set proceed unchecked.
type Guard struct {
	sessions    SessionLoader
	roles       RoleResolver
	rules       []config.PathRule
	loginPath   string
	defaultPath string
	logger      *slog.Logger
}

// New creates a guard over the given path rules
func New(sessions SessionLoader, roles RoleResolver, rules []config.PathRule, loginPath, defaultPath string, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		sessions:    sessions,
		roles:       roles,
		rules:       rules,
		loginPath:   loginPath,
		defaultPath: defaultPath,
		logger:      logger,
	}
}

// Middleware wires the guard in front of page handlers.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule, matched := g.match(r.URL.Path)
		if !matched {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := g.sessions.Active(w, r)
		if err != nil || sess == nil {
			// No session (or no way to know): back to sign-in, keeping the
			// original path for the post-login redirect.
			if err != nil {
				g.logger.Error("session check failed, treating as unauthenticated",
					slog.String("error", err.Error()),
				)
			}
			metrics.ObserveGuard("login_redirect")
			g.redirectToLogin(w, r)
			return
		}

		if rule.RequireRole != "" {
			role, err := g.roles.Role(r.Context(), sess.UserID)
			if err != nil || string(role) != rule.RequireRole {
				// Silent downgrade to the landing page, never an error page.
				if err != nil {
					g.logger.Error("role lookup failed, denying path",
						slog.String("user_id", sess.UserID),
						slog.String("error", err.Error()),
					)
				}
				metrics.ObserveGuard("role_redirect")
				http.Redirect(w, r, g.defaultPath, http.StatusFound)
				return
			}
		}

		metrics.ObserveGuard("proceed")
		next.ServeHTTP(w, r)
	})
}

// match returns the most specific rule covering path. Rules are prefix-based;
// the longest prefix wins so /users/invite=admin shadows /users.
func (g *Guard) match(path string) (config.PathRule, bool) {
	var best config.PathRule
	found := false
	for _, rule := range g.rules {
		if !strings.HasPrefix(path, rule.Prefix) {
			continue
		}
		// Prefix boundary: /users must not capture /usersfoo.
		if len(path) > len(rule.Prefix) && path[len(rule.Prefix)] != '/' {
			continue
		}
		if !found || len(rule.Prefix) > len(best.Prefix) {
			best = rule
			found = true
		}
	}
	return best, found
}

func (g *Guard) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := g.loginPath + "?redirectTo=" + url.QueryEscape(r.URL.Path)
	http.Redirect(w, r, target, http.StatusFound)
}
