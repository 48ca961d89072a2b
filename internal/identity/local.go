package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	localAccessTokenTTL = 15 * time.Minute
	localOTPTTL         = 10 * time.Minute
)

type localAccount struct {
	account      Account
	passwordHash []byte
}

type localOTP struct {
	code      string
	expiresAt time.Time
}

// LocalProvider is an in-process Provider used in development and tests.
// Passwords are bcrypt-hashed, access tokens are real JWTs, refresh tokens
// rotate on every use.
type LocalProvider struct {
	mu       sync.RWMutex
	accounts map[string]*localAccount // account ID -> account
	byEmail  map[string]string        // email -> account ID
	refresh  map[string]string        // refresh token -> account ID
	otps     map[string]localOTP      // email -> pending code
	tokens   *TokenManager
	logger   *slog.Logger
}

// NewLocalProvider creates an empty local provider
func NewLocalProvider(tokens *TokenManager, logger *slog.Logger) *LocalProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalProvider{
		accounts: map[string]*localAccount{},
		byEmail:  map[string]string{},
		refresh:  map[string]string{},
		otps:     map[string]localOTP{},
		tokens:   tokens,
		logger:   logger,
	}
}

func (p *LocalProvider) SignInWithPassword(ctx context.Context, email, password string) (*TokenPair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.byEmail[email]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	acct := p.accounts[id]
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return p.issueLocked(acct.account)
}

func (p *LocalProvider) SignInWithOTP(ctx context.Context, email, code string) (*TokenPair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending, ok := p.otps[email]
	if !ok || pending.code != code || time.Now().After(pending.expiresAt) {
		return nil, ErrInvalidCredentials
	}
	delete(p.otps, email)

	id, ok := p.byEmail[email]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return p.issueLocked(p.accounts[id].account)
}

func (p *LocalProvider) SendOTP(ctx context.Context, email string, metadata map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	code, err := randomCode()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}
	p.otps[email] = localOTP{code: code, expiresAt: time.Now().Add(localOTPTTL)}

	// Delivery is a log line locally; the hosted provider sends real mail.
	p.logger.Info("one-time code issued",
		slog.String("email", email),
		slog.String("code", code),
	)
	return nil
}

func (p *LocalProvider) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.refresh[refreshToken]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	delete(p.refresh, refreshToken)

	acct, ok := p.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return p.issueLocked(acct.account)
}

func (p *LocalProvider) GetUser(ctx context.Context, accessToken string) (*Account, error) {
	claims, err := p.tokens.ValidateToken(accessToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	acct, ok := p.accounts[claims.UserID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := acct.account
	return &out, nil
}

func (p *LocalProvider) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	claims, err := p.tokens.ValidateToken(accessToken)
	if err != nil {
		return ErrInvalidCredentials
	}
	if len(newPassword) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[claims.UserID]
	if !ok {
		return ErrAccountNotFound
	}
	acct.passwordHash = hash
	return nil
}

func (p *LocalProvider) AdminCreateUser(ctx context.Context, email, password string) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byEmail[email]; exists {
		return nil, ErrAccountExists
	}

	acct := &localAccount{
		account: Account{
			ID:        uuid.NewString(),
			Email:     email,
			CreatedAt: time.Now(),
		},
		passwordHash: hash,
	}
	p.accounts[acct.account.ID] = acct
	p.byEmail[email] = acct.account.ID

	out := acct.account
	return &out, nil
}

func (p *LocalProvider) AdminDeleteUser(ctx context.Context, accountID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	delete(p.accounts, accountID)
	delete(p.byEmail, acct.account.Email)
	for token, id := range p.refresh {
		if id == accountID {
			delete(p.refresh, token)
		}
	}
	return nil
}

func (p *LocalProvider) SignOut(ctx context.Context, accessToken string) error {
	claims, err := p.tokens.ValidateToken(accessToken)
	if err != nil {
		// Already invalid; sign-out is best effort.
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for token, id := range p.refresh {
		if id == claims.UserID {
			delete(p.refresh, token)
		}
	}
	return nil
}

// issueLocked mints a token pair. Caller must hold p.mu.
func (p *LocalProvider) issueLocked(acct Account) (*TokenPair, error) {
	access, err := p.tokens.GenerateToken(acct.ID, acct.Email, localAccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	refresh := uuid.NewString()
	p.refresh[refresh] = acct.ID

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(localAccessTokenTTL),
	}, nil
}

func randomCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

var _ Provider = (*LocalProvider)(nil)
