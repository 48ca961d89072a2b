package test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/taskhub/internal/domain"
	"github.com/yourorg/taskhub/internal/handler"
	"github.com/yourorg/taskhub/internal/identity"
	"github.com/yourorg/taskhub/internal/infrastructure/logger"
	"github.com/yourorg/taskhub/internal/security"
	"github.com/yourorg/taskhub/internal/security/audit"
	"github.com/yourorg/taskhub/internal/security/guard"
	"github.com/yourorg/taskhub/internal/security/middleware"
	"github.com/yourorg/taskhub/internal/security/ratelimit"
	"github.com/yourorg/taskhub/internal/service"
	"github.com/yourorg/taskhub/internal/session"
	"github.com/yourorg/taskhub/pkg/cache"
	"github.com/yourorg/taskhub/pkg/config"
)

// Env is a full in-process stack: local identity provider, in-memory
// stores, real services, real router. No external backend required.
type Env struct {
	Server     *httptest.Server
	Provider   *identity.LocalProvider
	Users      *memUserRepo
	Businesses *memBusinessRepo
	Tasks      *memTaskRepo
	Insts      *memInstanceRepo
	Logger     *slog.Logger
	Limiter    *ratelimit.Limiter
}

func NewEnv(t *testing.T) *Env {
	t.Helper()
	log := logger.NewLogger("error")

	provider := identity.NewLocalProvider(identity.NewTokenManager("test-secret", "taskhub"), log)
	users := newMemUserRepo()
	businesses := newMemBusinessRepo()
	tasks := newMemTaskRepo()
	insts := newMemInstanceRepo()

	store := newMemSessionStore()
	gateway := session.NewGateway(store, provider, time.Hour, time.Minute, false, log)

	authz := security.NewAuthorizationService(log)
	auditLogger := audit.NewLogger(log)
	limiter := ratelimit.NewLimiter(1000, time.Minute)

	directory := service.NewDirectoryService(users, businesses, authz, auditLogger, cache.New(), log)
	invites := service.NewInviteService(users, provider, authz, auditLogger, log)
	taskSvc := service.NewTaskService(tasks, insts, users, authz, log)

	rules := []config.PathRule{
		{Prefix: "/dashboard"},
		{Prefix: "/users"},
		{Prefix: "/tasks"},
		{Prefix: "/users/invite", RequireRole: "admin"},
	}
	pathGuard := guard.New(gateway, directory, rules, "/login", "/dashboard", log)

	router := handler.NewRouter(handler.RouterDeps{
		Auth:    handler.NewAuthHandler(gateway, provider, directory, log),
		Users:   handler.NewUsersHandler(directory, invites, log),
		Tasks:   handler.NewTasksHandler(taskSvc, log),
		Sweep:   handler.NewSweepHandler(taskSvc, log),
		Stream:  handler.NewSweepStreamHandler(taskSvc, log, nil),
		Pages:   handler.NewPagesHandler(directory, log),
		Health:  handler.NewHealthHandler(nil, nil, log),
		Guard:   pathGuard,
		Gateway: gateway,
		Audit:   middleware.AuditMiddleware(auditLogger),
		Limiter: limiter,
		Logger:  log,
	})

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		limiter.Stop()
	})

	return &Env{
		Server:     server,
		Provider:   provider,
		Users:      users,
		Businesses: businesses,
		Tasks:      tasks,
		Insts:      insts,
		Logger:     log,
		Limiter:    limiter,
	}
}

// SeedUser provisions an identity account and a matching directory profile.
func (e *Env) SeedUser(t *testing.T, name, email, password string, role domain.Role, businessID string) *domain.User {
	t.Helper()
	acct, err := e.Provider.AdminCreateUser(context.Background(), email, password)
	if err != nil {
		t.Fatalf("failed to create account for %s: %v", email, err)
	}
	u := &domain.User{ID: acct.ID, Name: name, Email: email, Role: role, BusinessID: businessID}
	if err := e.Users.Create(context.Background(), u); err != nil {
		t.Fatalf("failed to create profile for %s: %v", email, err)
	}
	return u
}

// Client returns an HTTP client with a cookie jar that does not follow
// redirects, so guard behavior stays observable.
func (e *Env) Client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// In-memory session store

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]*session.Session{}}
}

func (m *memSessionStore) Save(ctx context.Context, s *session.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (m *memSessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// In-memory repositories

type memUserRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[string]*domain.User{}}
}

func (m *memUserRepo) Create(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.CreatedAt = time.Now()
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUserRepo) ListByBusiness(ctx context.Context, businessID string) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.User
	for _, u := range m.byID {
		if u.BusinessID == businessID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memUserRepo) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.Role = role
	return nil
}

func (m *memUserRepo) Update(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUserRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

type memBusinessRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.Business
}

func newMemBusinessRepo() *memBusinessRepo {
	return &memBusinessRepo{byID: map[string]*domain.Business{}}
}

func (m *memBusinessRepo) Create(ctx context.Context, b *domain.Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = time.Now()
	cp := *b
	m.byID[b.ID] = &cp
	return nil
}

func (m *memBusinessRepo) GetByID(ctx context.Context, id string) (*domain.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.byID[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memBusinessRepo) List(ctx context.Context) ([]*domain.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Business, 0, len(m.byID))
	for _, b := range m.byID {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memBusinessRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

type memTaskRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.Task
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{byID: map[string]*domain.Task{}}
}

func (m *memTaskRepo) Create(ctx context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now()
	cp := *t
	m.byID[t.ID] = &cp
	return nil
}

func (m *memTaskRepo) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.byID[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memTaskRepo) ListByBusiness(ctx context.Context, businessID string) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Task
	for _, t := range m.byID {
		if t.BusinessID == businessID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTaskRepo) Update(ctx context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[t.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *t
	m.byID[t.ID] = &cp
	return nil
}

func (m *memTaskRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memInstanceRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.TaskInstance
}

func newMemInstanceRepo() *memInstanceRepo {
	return &memInstanceRepo{byID: map[string]*domain.TaskInstance{}}
}

func (m *memInstanceRepo) Create(ctx context.Context, i *domain.TaskInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	cp := *i
	m.byID[i.ID] = &cp
	return nil
}

func (m *memInstanceRepo) GetByID(ctx context.Context, id string) (*domain.TaskInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byID[id]; ok {
		cp := *i
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memInstanceRepo) ListByTask(ctx context.Context, taskID string) ([]*domain.TaskInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.TaskInstance
	for _, i := range m.byID {
		if i.TaskID == taskID {
			cp := *i
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memInstanceRepo) Complete(ctx context.Context, id string, completedBy string, completedAt time.Time, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	i.CompletedAt = completedAt
	i.CompletedBy = completedBy
	i.Data = data
	return nil
}

func (m *memInstanceRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

func (m *memInstanceRepo) SweepOverdue(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var flagged int64
	now := time.Now()
	for _, i := range m.byID {
		overdue := i.DueDate.Before(now) && i.CompletedAt.IsZero()
		if i.IsOverdue != overdue {
			i.IsOverdue = overdue
			flagged++
		}
	}
	return flagged, nil
}
