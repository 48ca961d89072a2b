package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/yourorg/taskhub/internal/reliability/circuitbreaker"
	"github.com/yourorg/taskhub/internal/reliability/retry"
)

// HTTPProvider talks to the hosted identity provider over JSON RPC endpoints.
// Transient failures are retried with backoff; repeated failures trip a
// circuit breaker so a dead provider fails fast instead of stacking requests.
type HTTPProvider struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	oauth    *oauth2.Config
	breaker  *circuitbreaker.CircuitBreaker
	retryCfg *retry.Config
	logger   *slog.Logger
}

// NewHTTPProvider creates a provider client for the given base URL
func NewHTTPProvider(baseURL, apiKey string, logger *slog.Logger) *HTTPProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		oauth: &oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseURL + "/auth/v1/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		breaker:  circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second),
		retryCfg: retry.DefaultConfig(),
		logger:   logger,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (t *tokenResponse) pair() *TokenPair {
	return &TokenPair{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(t.ExpiresIn) * time.Second),
	}
}

type accountResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *accountResponse) account() *Account {
	return &Account{ID: a.ID, Email: a.Email, CreatedAt: a.CreatedAt}
}

func (p *HTTPProvider) SignInWithPassword(ctx context.Context, email, password string) (*TokenPair, error) {
	var resp tokenResponse
	err := p.call(ctx, "sign_in_password", http.MethodPost, "/auth/v1/token?grant_type=password", "",
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.pair(), nil
}

func (p *HTTPProvider) SignInWithOTP(ctx context.Context, email, code string) (*TokenPair, error) {
	var resp tokenResponse
	err := p.call(ctx, "sign_in_otp", http.MethodPost, "/auth/v1/verify", "",
		map[string]string{"email": email, "token": code, "type": "email"}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.pair(), nil
}

func (p *HTTPProvider) SendOTP(ctx context.Context, email string, metadata map[string]string) error {
	body := map[string]any{"email": email}
	if len(metadata) > 0 {
		body["data"] = metadata
	}
	return p.call(ctx, "send_otp", http.MethodPost, "/auth/v1/otp", "", body, nil)
}

// Refresh exchanges a refresh token through the provider's OAuth2 token
// endpoint. oauth2.TokenSource issues the refresh_token grant for us.
func (p *HTTPProvider) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var pair *TokenPair
	err := p.breaker.Do(ctx, func(ctx context.Context) error {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
		src := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		tok, err := src.Token()
		if err != nil {
			return err
		}
		pair = &TokenPair{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			ExpiresAt:    tok.Expiry,
		}
		return nil
	})
	if err != nil {
		if rerr, ok := err.(*oauth2.RetrieveError); ok && rerr.Response != nil && rerr.Response.StatusCode < 500 {
			return nil, ErrInvalidCredentials
		}
		p.logger.Error("token refresh failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("refresh: %w", err)
	}
	return pair, nil
}

func (p *HTTPProvider) GetUser(ctx context.Context, accessToken string) (*Account, error) {
	var resp accountResponse
	if err := p.call(ctx, "get_user", http.MethodGet, "/auth/v1/user", accessToken, nil, &resp); err != nil {
		return nil, err
	}
	return resp.account(), nil
}

func (p *HTTPProvider) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	return p.call(ctx, "update_password", http.MethodPut, "/auth/v1/user", accessToken,
		map[string]string{"password": newPassword}, nil)
}

func (p *HTTPProvider) AdminCreateUser(ctx context.Context, email, password string) (*Account, error) {
	var resp accountResponse
	err := p.call(ctx, "admin_create_user", http.MethodPost, "/auth/v1/admin/users", "",
		map[string]any{"email": email, "password": password, "email_confirm": true}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.account(), nil
}

func (p *HTTPProvider) AdminDeleteUser(ctx context.Context, accountID string) error {
	return p.call(ctx, "admin_delete_user", http.MethodDelete, "/auth/v1/admin/users/"+accountID, "", nil, nil)
}

func (p *HTTPProvider) SignOut(ctx context.Context, accessToken string) error {
	return p.call(ctx, "sign_out", http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

// call performs one provider RPC under the breaker with retries. 4xx results
// are permanent; 5xx and transport errors are retried.
func (p *HTTPProvider) call(ctx context.Context, op, method, path, accessToken string, body, out any) error {
	_, err := retry.Do(ctx, p.retryCfg, p.logger, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.breaker.Do(ctx, func(ctx context.Context) error {
			return p.doRequest(ctx, method, path, accessToken, body, out)
		})
	})
	return err
}

func (p *HTTPProvider) doRequest(ctx context.Context, method, path, accessToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", p.apiKey)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return retry.Permanent(ErrAccountNotFound)
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		return retry.Permanent(ErrAccountExists)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.Permanent(ErrInvalidCredentials)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		p.logger.Error("identity provider error",
			slog.Int("status", resp.StatusCode),
			slog.String("path", path),
			slog.String("detail", string(detail)),
		)
		return fmt.Errorf("identity provider returned %d", resp.StatusCode)
	}
}

var _ Provider = (*HTTPProvider)(nil)
