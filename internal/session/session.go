// Package session implements the credential gateway: it exchanges provider
// credentials for server-side sessions, refreshes provider tokens
// transparently on the read path, and owns the session cookie.
package session

import (
	"context"
	"time"
)

// CookieName carries the opaque session ID. The provider tokens themselves
// never leave the server.
const CookieName = "taskhub_session"

// Session is the server-side session record bound to one user identity.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"` // access token expiry
}

// Context is the caller identity handed explicitly to every service call.
// Services re-validate role and tenant against the store; they never trust
// anything beyond the user ID and token carried here.
type Context struct {
	UserID      string
	Email       string
	AccessToken string
}

// Context returns the service-facing identity for this session.
func (s *Session) Context() Context {
	return Context{UserID: s.UserID, Email: s.Email, AccessToken: s.AccessToken}
}

// System is the identity background jobs act under. It maps to no stored
// profile, so it only satisfies checks that require a caller identity to be
// present, not role or tenant checks.
func System() Context {
	return Context{UserID: "system"}
}

// Store persists session records keyed by session ID.
type Store interface {
	// Save writes the session with the given TTL.
	Save(ctx context.Context, session *Session, ttl time.Duration) error
	// Get returns nil, nil when the session does not exist or has expired.
	Get(ctx context.Context, id string) (*Session, error)
	// Delete removes the session. Deleting an absent session is not an error.
	Delete(ctx context.Context, id string) error
}
