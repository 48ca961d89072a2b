package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yourorg/taskhub/internal/domain"
	"github.com/yourorg/taskhub/internal/identity"
)

type memStore struct {
	sessions map[string]*Session
	failGet  bool
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]*Session{}}
}

func (m *memStore) Save(ctx context.Context, s *Session, ttl time.Duration) error {
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) Get(ctx context.Context, id string) (*Session, error) {
	if m.failGet {
		return nil, fmt.Errorf("redis down")
	}
	if s, ok := m.sessions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

type stubProvider struct {
	identity.Provider // panic on anything not stubbed

	password    string
	account     identity.Account
	refreshed   *identity.TokenPair
	refreshErr  error
	refreshSeen []string
}

func (s *stubProvider) SignInWithPassword(ctx context.Context, email, password string) (*identity.TokenPair, error) {
	if password != s.password {
		return nil, identity.ErrInvalidCredentials
	}
	return &identity.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *stubProvider) GetUser(ctx context.Context, accessToken string) (*identity.Account, error) {
	acct := s.account
	return &acct, nil
}

func (s *stubProvider) Refresh(ctx context.Context, refreshToken string) (*identity.TokenPair, error) {
	s.refreshSeen = append(s.refreshSeen, refreshToken)
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	pair := *s.refreshed
	return &pair, nil
}

func (s *stubProvider) SignOut(ctx context.Context, accessToken string) error {
	return nil
}

func newTestGateway(store Store, provider identity.Provider, leeway time.Duration) *Gateway {
	return NewGateway(store, provider, time.Hour, leeway, false, nil)
}

func requestWithCookie(id string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	if id != "" {
		r.AddCookie(&http.Cookie{Name: CookieName, Value: id})
	}
	return r
}

func TestEstablishSetsCookie(t *testing.T) {
	store := newMemStore()
	provider := &stubProvider{password: "pw", account: identity.Account{ID: "u1", Email: "u1@e.com"}}
	g := newTestGateway(store, provider, time.Minute)
	w := httptest.NewRecorder()

	sess, err := g.Establish(context.Background(), w, Credential{Email: "u1@e.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	if sess.UserID != "u1" {
		t.Errorf("user id = %q", sess.UserID)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName {
		t.Fatalf("expected one session cookie, got %v", cookies)
	}
	c := cookies[0]
	if c.Value != sess.ID {
		t.Error("cookie must carry the opaque session id")
	}
	if !c.HttpOnly || c.Path != "/" || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie attributes wrong: %+v", c)
	}
	if store.sessions[sess.ID] == nil {
		t.Error("session not persisted")
	}
}

func TestEstablishBadPassword(t *testing.T) {
	g := newTestGateway(newMemStore(), &stubProvider{password: "right"}, time.Minute)

	_, err := g.Establish(context.Background(), httptest.NewRecorder(), Credential{Email: "u@e.com", Password: "wrong"})
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestActiveNoCookie(t *testing.T) {
	g := newTestGateway(newMemStore(), &stubProvider{}, time.Minute)

	sess, err := g.Active(httptest.NewRecorder(), requestWithCookie(""))
	if err != nil || sess != nil {
		t.Fatalf("expected nil, nil; got %v, %v", sess, err)
	}
}

func TestActiveFreshTokenSkipsRefresh(t *testing.T) {
	store := newMemStore()
	store.sessions["s1"] = &Session{ID: "s1", UserID: "u1", AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour)}
	provider := &stubProvider{}
	g := newTestGateway(store, provider, time.Minute)

	sess, err := g.Active(httptest.NewRecorder(), requestWithCookie("s1"))
	if err != nil || sess == nil {
		t.Fatalf("Active failed: %v, %v", sess, err)
	}
	if len(provider.refreshSeen) != 0 {
		t.Error("fresh token must not be refreshed")
	}
}

func TestActiveRefreshesExpiringToken(t *testing.T) {
	store := newMemStore()
	store.sessions["s1"] = &Session{ID: "s1", UserID: "u1", AccessToken: "old", RefreshToken: "r1", ExpiresAt: time.Now().Add(10 * time.Second)}
	provider := &stubProvider{refreshed: &identity.TokenPair{AccessToken: "new", RefreshToken: "r2", ExpiresAt: time.Now().Add(time.Hour)}}
	g := newTestGateway(store, provider, time.Minute)
	w := httptest.NewRecorder()

	sess, err := g.Active(w, requestWithCookie("s1"))
	if err != nil || sess == nil {
		t.Fatalf("Active failed: %v, %v", sess, err)
	}
	if sess.AccessToken != "new" || sess.RefreshToken != "r2" {
		t.Errorf("tokens not rotated: %+v", sess)
	}
	if store.sessions["s1"].AccessToken != "new" {
		t.Error("refreshed tokens not persisted")
	}
	if len(w.Result().Cookies()) != 1 {
		t.Error("refresh should rewrite the cookie")
	}
}

func TestActiveRevokedRefreshDropsSession(t *testing.T) {
	store := newMemStore()
	store.sessions["s1"] = &Session{ID: "s1", UserID: "u1", RefreshToken: "r1", ExpiresAt: time.Now().Add(10 * time.Second)}
	provider := &stubProvider{refreshErr: identity.ErrInvalidCredentials}
	g := newTestGateway(store, provider, time.Minute)

	sess, err := g.Active(httptest.NewRecorder(), requestWithCookie("s1"))
	if err != nil || sess != nil {
		t.Fatalf("revoked refresh should yield nil, nil; got %v, %v", sess, err)
	}
	if store.sessions["s1"] != nil {
		t.Error("revoked session must be deleted")
	}
}

func TestActiveStaleButValidSurvivesOutage(t *testing.T) {
	store := newMemStore()
	store.sessions["s1"] = &Session{ID: "s1", UserID: "u1", AccessToken: "still-good", RefreshToken: "r1", ExpiresAt: time.Now().Add(30 * time.Second)}
	provider := &stubProvider{refreshErr: fmt.Errorf("provider down")}
	g := newTestGateway(store, provider, time.Minute)

	sess, err := g.Active(httptest.NewRecorder(), requestWithCookie("s1"))
	if err != nil {
		t.Fatalf("stale-but-valid must not fail the request: %v", err)
	}
	if sess == nil || sess.AccessToken != "still-good" {
		t.Fatalf("expected the existing session back, got %+v", sess)
	}
}

func TestActiveExpiredTokenWithOutageIsUpstream(t *testing.T) {
	store := newMemStore()
	store.sessions["s1"] = &Session{ID: "s1", UserID: "u1", RefreshToken: "r1", ExpiresAt: time.Now().Add(-time.Minute)}
	provider := &stubProvider{refreshErr: fmt.Errorf("provider down")}
	g := newTestGateway(store, provider, time.Minute)

	_, err := g.Active(httptest.NewRecorder(), requestWithCookie("s1"))
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestDestroyClearsCookieAndStore(t *testing.T) {
	store := newMemStore()
	store.sessions["s1"] = &Session{ID: "s1", UserID: "u1", AccessToken: "a"}
	g := newTestGateway(store, &stubProvider{}, time.Minute)
	w := httptest.NewRecorder()

	if err := g.Destroy(context.Background(), w, requestWithCookie("s1")); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if store.sessions["s1"] != nil {
		t.Error("session not deleted")
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Errorf("expected a clearing cookie, got %v", cookies)
	}
}
