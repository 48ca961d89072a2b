package identity

import (
	"context"
	"errors"
	"testing"
)

func newTestProvider() *LocalProvider {
	return NewLocalProvider(NewTokenManager("test-secret", "taskhub"), nil)
}

func TestLocalPasswordSignIn(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	acct, err := p.AdminCreateUser(ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("AdminCreateUser failed: %v", err)
	}

	pair, err := p.SignInWithPassword(ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}

	got, err := p.GetUser(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.ID != acct.ID || got.Email != "ada@example.com" {
		t.Errorf("GetUser = %+v, want account %s", got, acct.ID)
	}

	if _, err := p.SignInWithPassword(ctx, "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password should be ErrInvalidCredentials, got %v", err)
	}
	if _, err := p.SignInWithPassword(ctx, "nobody@example.com", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email should be ErrInvalidCredentials, got %v", err)
	}
}

func TestLocalDuplicateAccount(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	if _, err := p.AdminCreateUser(ctx, "a@e.com", "password1"); err != nil {
		t.Fatalf("AdminCreateUser failed: %v", err)
	}
	if _, err := p.AdminCreateUser(ctx, "a@e.com", "password2"); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestLocalRefreshRotates(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	if _, err := p.AdminCreateUser(ctx, "a@e.com", "password1"); err != nil {
		t.Fatalf("AdminCreateUser failed: %v", err)
	}
	pair, err := p.SignInWithPassword(ctx, "a@e.com", "password1")
	if err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}

	next, err := p.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Error("refresh token must rotate")
	}

	// The old token is single-use.
	if _, err := p.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("reused refresh token should be rejected, got %v", err)
	}
}

func TestLocalOTPFlow(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	if _, err := p.AdminCreateUser(ctx, "a@e.com", "password1"); err != nil {
		t.Fatalf("AdminCreateUser failed: %v", err)
	}
	if err := p.SendOTP(ctx, "a@e.com", nil); err != nil {
		t.Fatalf("SendOTP failed: %v", err)
	}

	code := p.otps["a@e.com"].code
	pair, err := p.SignInWithOTP(ctx, "a@e.com", code)
	if err != nil {
		t.Fatalf("SignInWithOTP failed: %v", err)
	}
	if pair.AccessToken == "" {
		t.Error("expected an access token")
	}

	// Codes are single-use.
	if _, err := p.SignInWithOTP(ctx, "a@e.com", code); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("reused code should be rejected, got %v", err)
	}
}

func TestLocalAdminDeleteRevokesRefresh(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	acct, err := p.AdminCreateUser(ctx, "a@e.com", "password1")
	if err != nil {
		t.Fatalf("AdminCreateUser failed: %v", err)
	}
	pair, err := p.SignInWithPassword(ctx, "a@e.com", "password1")
	if err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}

	if err := p.AdminDeleteUser(ctx, acct.ID); err != nil {
		t.Fatalf("AdminDeleteUser failed: %v", err)
	}
	if _, err := p.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("deleted account's refresh token should be revoked, got %v", err)
	}
	if _, err := p.GetUser(ctx, pair.AccessToken); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("deleted account should be gone, got %v", err)
	}
}

func TestLocalUpdatePassword(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	if _, err := p.AdminCreateUser(ctx, "a@e.com", "password1"); err != nil {
		t.Fatalf("AdminCreateUser failed: %v", err)
	}
	pair, err := p.SignInWithPassword(ctx, "a@e.com", "password1")
	if err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}

	if err := p.UpdatePassword(ctx, pair.AccessToken, "short"); err == nil {
		t.Error("short passwords should be rejected")
	}
	if err := p.UpdatePassword(ctx, pair.AccessToken, "password2!"); err != nil {
		t.Fatalf("UpdatePassword failed: %v", err)
	}

	if _, err := p.SignInWithPassword(ctx, "a@e.com", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password should stop working, got %v", err)
	}
	if _, err := p.SignInWithPassword(ctx, "a@e.com", "password2!"); err != nil {
		t.Errorf("new password should work, got %v", err)
	}
}
