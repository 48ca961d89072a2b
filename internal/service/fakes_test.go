package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yourorg/taskhub/internal/domain"
	"github.com/yourorg/taskhub/internal/identity"
)

type memUserRepo struct {
	mu              sync.Mutex
	byID            map[string]*domain.User
	updateRoleCalls int
	failCreate      bool
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[string]*domain.User{}}
}

func (m *memUserRepo) Create(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return fmt.Errorf("store unavailable")
	}
	if u.ID == "" {
		u.ID = "u-" + u.Email
	}
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
	m.updateRoleCalls++
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
	if _, ok := m.byID[u.ID]; !ok {
		return domain.ErrNotFound
	}
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

var _ domain.UserRepository = (*memUserRepo)(nil)

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

var _ domain.BusinessRepository = (*memBusinessRepo)(nil)

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
		t.ID = fmt.Sprintf("t-%d", len(m.byID)+1)
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

var _ domain.TaskRepository = (*memTaskRepo)(nil)

type memInstanceRepo struct {
	mu         sync.Mutex
	byID       map[string]*domain.TaskInstance
	sweepCalls int
	failSweep  bool
}

func newMemInstanceRepo() *memInstanceRepo {
	return &memInstanceRepo{byID: map[string]*domain.TaskInstance{}}
}

func (m *memInstanceRepo) Create(ctx context.Context, i *domain.TaskInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i.ID == "" {
		i.ID = fmt.Sprintf("i-%d", len(m.byID)+1)
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

// SweepOverdue mirrors the store procedure: flag due-and-incomplete
// instances, count only the ones whose flag actually changed.
func (m *memInstanceRepo) SweepOverdue(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepCalls++
	if m.failSweep {
		return 0, fmt.Errorf("store unavailable")
	}
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

var _ domain.TaskInstanceRepository = (*memInstanceRepo)(nil)

// fakeProvider is an in-memory identity provider that records calls so saga
// tests can assert the compensation order.
type fakeProvider struct {
	mu           sync.Mutex
	accounts     map[string]identity.Account
	calls        []string
	failCreate   error
	failSendOTP  error
	nextID       int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{accounts: map[string]identity.Account{}}
}

func (f *fakeProvider) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*identity.TokenPair, error) {
	return nil, identity.ErrInvalidCredentials
}

func (f *fakeProvider) SignInWithOTP(ctx context.Context, email, code string) (*identity.TokenPair, error) {
	return nil, identity.ErrInvalidCredentials
}

func (f *fakeProvider) SendOTP(ctx context.Context, email string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("send_otp:" + email)
	return f.failSendOTP
}

func (f *fakeProvider) Refresh(ctx context.Context, refreshToken string) (*identity.TokenPair, error) {
	return nil, identity.ErrInvalidCredentials
}

func (f *fakeProvider) GetUser(ctx context.Context, accessToken string) (*identity.Account, error) {
	return nil, identity.ErrAccountNotFound
}

func (f *fakeProvider) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	return nil
}

func (f *fakeProvider) AdminCreateUser(ctx context.Context, email, password string) (*identity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create:" + email)
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	f.nextID++
	acct := identity.Account{ID: fmt.Sprintf("acct-%d", f.nextID), Email: email, CreatedAt: time.Now()}
	f.accounts[acct.ID] = acct
	return &acct, nil
}

func (f *fakeProvider) AdminDeleteUser(ctx context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete:" + accountID)
	delete(f.accounts, accountID)
	return nil
}

func (f *fakeProvider) SignOut(ctx context.Context, accessToken string) error {
	return nil
}

var _ identity.Provider = (*fakeProvider)(nil)
