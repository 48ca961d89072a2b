// Package identity wraps the external identity provider. The provider owns
// account records and token issuance; this package only mediates access and
// never stores credentials itself.
package identity

import (
	"context"
	"errors"
	"time"
)

// Account is an identity-provider account. Its ID doubles as the directory
// profile ID.
type Account struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// TokenPair is the provider-issued session material. Access tokens are
// short-lived JWTs; refresh tokens are opaque and single-use.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Provider is the RPC surface of the identity provider.
type Provider interface {
	// SignInWithPassword exchanges email/password for a token pair.
	SignInWithPassword(ctx context.Context, email, password string) (*TokenPair, error)
	// SignInWithOTP exchanges a one-time code for a token pair.
	SignInWithOTP(ctx context.Context, email, code string) (*TokenPair, error)
	// SendOTP delivers a one-time code to the address, with optional
	// metadata rendered into the notification (e.g. an invite's temporary
	// credential).
	SendOTP(ctx context.Context, email string, metadata map[string]string) error
	// Refresh exchanges a refresh token for a fresh token pair.
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	// GetUser resolves the account behind an access token.
	GetUser(ctx context.Context, accessToken string) (*Account, error)
	// UpdatePassword sets a new password for the token's account.
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
	// AdminCreateUser provisions a confirmed account with a password.
	AdminCreateUser(ctx context.Context, email, password string) (*Account, error)
	// AdminDeleteUser removes an account. Used by invite compensation.
	AdminDeleteUser(ctx context.Context, accountID string) error
	// SignOut invalidates the token's session on the provider side.
	SignOut(ctx context.Context, accessToken string) error
}

// Provider error categories. Anything else coming out of a Provider is an
// upstream failure and must not reach end users verbatim.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("account already exists")
	ErrAccountNotFound    = errors.New("account not found")
)
