package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/taskhub/internal/domain"
	"github.com/yourorg/taskhub/internal/identity"
	"github.com/yourorg/taskhub/internal/observability/metrics"
)

// Credential is what Establish exchanges for a session: a password or a
// one-time code, never both.
type Credential struct {
	Email    string
	Password string
	OTPCode  string
}

// Gateway issues, refreshes, and destroys sessions. It sits beneath both the
// guard and the services: every downstream operation depends on the token
// freshness this gateway maintains.
type Gateway struct {
	store         Store
	provider      identity.Provider
	ttl           time.Duration
	refreshLeeway time.Duration
	secureCookies bool
	logger        *slog.Logger
}

// NewGateway creates a session gateway
func NewGateway(store Store, provider identity.Provider, ttl, refreshLeeway time.Duration, secureCookies bool, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		store:         store,
		provider:      provider,
		ttl:           ttl,
		refreshLeeway: refreshLeeway,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// Establish exchanges a credential for a new session and writes the cookie.
// Invalid credentials surface as domain.ErrUnauthenticated; provider outage
// as domain.ErrUpstream.
func (g *Gateway) Establish(ctx context.Context, w http.ResponseWriter, cred Credential) (*Session, error) {
	var (
		pair *identity.TokenPair
		err  error
	)
	switch {
	case cred.OTPCode != "":
		pair, err = g.provider.SignInWithOTP(ctx, cred.Email, cred.OTPCode)
	case cred.Password != "":
		pair, err = g.provider.SignInWithPassword(ctx, cred.Email, cred.Password)
	default:
		return nil, fmt.Errorf("%w: no credential supplied", domain.ErrUnauthenticated)
	}
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnauthenticated, "invalid credentials")
		}
		g.logger.Error("sign-in failed upstream", slog.String("error", err.Error()))
		return nil, domain.ErrUpstream
	}

	acct, err := g.provider.GetUser(ctx, pair.AccessToken)
	if err != nil {
		g.logger.Error("failed to resolve account after sign-in", slog.String("error", err.Error()))
		return nil, domain.ErrUpstream
	}

	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       acct.ID,
		Email:        acct.Email,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}
	if err := g.store.Save(ctx, sess, g.ttl); err != nil {
		g.logger.Error("failed to persist session", slog.String("error", err.Error()))
		return nil, domain.ErrUpstream
	}

	g.writeCookie(w, sess.ID)
	metrics.ObserveSession("established")

	g.logger.Info("session established",
		slog.String("user_id", sess.UserID),
		slog.String("email", sess.Email),
	)
	return sess, nil
}

// Active returns the session behind the request cookie, silently refreshing
// the provider token when it is about to expire. This is a read with side
// effects: a refresh rewrites both the store record and the outgoing cookie.
// No session degrades to (nil, nil), never an error.
func (g *Gateway) Active(w http.ResponseWriter, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	ctx := r.Context()
	sess, err := g.store.Get(ctx, cookie.Value)
	if err != nil {
		g.logger.Error("failed to load session", slog.String("error", err.Error()))
		return nil, domain.ErrUpstream
	}
	if sess == nil {
		return nil, nil
	}

	if time.Until(sess.ExpiresAt) > g.refreshLeeway {
		return sess, nil
	}

	pair, err := g.provider.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			// Refresh token revoked: the session is gone.
			metrics.ObserveSession("refresh_rejected")
			if derr := g.store.Delete(ctx, sess.ID); derr != nil {
				g.logger.Error("failed to drop revoked session", slog.String("error", derr.Error()))
			}
			return nil, nil
		}
		if time.Now().Before(sess.ExpiresAt) {
			// Stale-but-valid must not fail the request.
			g.logger.Warn("token refresh failed, continuing with valid token",
				slog.String("user_id", sess.UserID),
				slog.String("error", err.Error()),
			)
			return sess, nil
		}
		g.logger.Error("token refresh failed with expired token", slog.String("error", err.Error()))
		return nil, domain.ErrUpstream
	}

	sess.AccessToken = pair.AccessToken
	sess.RefreshToken = pair.RefreshToken
	sess.ExpiresAt = pair.ExpiresAt
	if err := g.store.Save(ctx, sess, g.ttl); err != nil {
		g.logger.Error("failed to persist refreshed session", slog.String("error", err.Error()))
		return nil, domain.ErrUpstream
	}

	// Cookie rewrite failures are logged, never raised.
	g.writeCookie(w, sess.ID)
	metrics.ObserveSession("refreshed")

	return sess, nil
}

// Destroy invalidates server-side session state and clears the cookie.
// Provider sign-out is best effort.
func (g *Gateway) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	sess, err := g.store.Get(ctx, cookie.Value)
	if err == nil && sess != nil {
		if serr := g.provider.SignOut(ctx, sess.AccessToken); serr != nil {
			g.logger.Warn("provider sign-out failed", slog.String("error", serr.Error()))
		}
	}

	if err := g.store.Delete(ctx, cookie.Value); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}

	g.clearCookie(w)
	metrics.ObserveSession("destroyed")
	return nil
}

func (g *Gateway) writeCookie(w http.ResponseWriter, sessionID string) {
	if w == nil {
		g.logger.Debug("no response in flight, session cookie not rewritten")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(g.ttl.Seconds()),
		SameSite: http.SameSiteLaxMode,
		Secure:   g.secureCookies,
		HttpOnly: true,
	})
}

func (g *Gateway) clearCookie(w http.ResponseWriter) {
	if w == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		SameSite: http.SameSiteLaxMode,
		Secure:   g.secureCookies,
		HttpOnly: true,
	})
}
