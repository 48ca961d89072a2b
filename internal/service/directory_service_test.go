package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/yourorg/taskhub/internal/domain"
	"github.com/yourorg/taskhub/internal/security"
	"github.com/yourorg/taskhub/internal/security/audit"
	"github.com/yourorg/taskhub/internal/session"
	"github.com/yourorg/taskhub/pkg/cache"
)

func newDirectoryService(users *memUserRepo) *DirectoryService {
	log := slog.Default()
	return NewDirectoryService(
		users,
		newMemBusinessRepo(),
		security.NewAuthorizationService(log),
		audit.NewLogger(log),
		cache.New(),
		log,
	)
}

func seedUsers(repo *memUserRepo) {
	repo.byID["admin-a"] = &domain.User{ID: "admin-a", Name: "Alice", Email: "alice@a.com", Role: domain.RoleAdmin, BusinessID: "biz-a"}
	repo.byID["staff-a"] = &domain.User{ID: "staff-a", Name: "Bob", Email: "bob@a.com", Role: domain.RoleStaff, BusinessID: "biz-a"}
	repo.byID["staff-b"] = &domain.User{ID: "staff-b", Name: "Carol", Email: "carol@b.com", Role: domain.RoleStaff, BusinessID: "biz-b"}
	repo.byID["unassigned"] = &domain.User{ID: "unassigned", Name: "Drew", Email: "drew@x.com", Role: domain.RoleStaff}
}

func TestListUsersRequiresAdmin(t *testing.T) {
	repo := newMemUserRepo()
	seedUsers(repo)
	svc := newDirectoryService(repo)

	_, err := svc.ListUsers(context.Background(), session.Context{UserID: "staff-a"})
	if !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestListUsersScopedAndOrdered(t *testing.T) {
	repo := newMemUserRepo()
	seedUsers(repo)
	svc := newDirectoryService(repo)

	users, err := svc.ListUsers(context.Background(), session.Context{UserID: "admin-a"})
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users in biz-a, got %d", len(users))
	}
	if users[0].Name != "Alice" || users[1].Name != "Bob" {
		t.Errorf("expected name order [Alice Bob], got [%s %s]", users[0].Name, users[1].Name)
	}
	for _, u := range users {
		if u.BusinessID != "biz-a" {
			t.Errorf("user %s from other business leaked into listing", u.ID)
		}
	}
}

func TestListUsersMissingProfileIsUnauthenticated(t *testing.T) {
	repo := newMemUserRepo()
	svc := newDirectoryService(repo)

	_, err := svc.ListUsers(context.Background(), session.Context{UserID: "ghost"})
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestChangeUserRoleCheckOrder(t *testing.T) {
	tests := []struct {
		name    string
		actor   string
		target  string
		wantErr error
	}{
		{"no session", "", "staff-a", domain.ErrUnauthenticated},
		{"unknown actor", "ghost", "staff-a", domain.ErrUnauthenticated},
		// A staff actor targeting a missing user must see the authorization
		// failure, not the lookup failure.
		{"staff actor beats missing target", "staff-a", "ghost", domain.ErrNotAuthorized},
		{"missing target beats tenant check", "admin-a", "ghost", domain.ErrNotFound},
		{"other business", "admin-a", "staff-b", domain.ErrCrossTenant},
		{"unassigned target", "admin-a", "unassigned", domain.ErrCrossTenant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemUserRepo()
			seedUsers(repo)
			svc := newDirectoryService(repo)

			err := svc.ChangeUserRole(context.Background(), session.Context{UserID: tt.actor}, tt.target, domain.RoleAdmin)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if repo.updateRoleCalls != 0 {
				t.Errorf("no update should run on a failed check, got %d calls", repo.updateRoleCalls)
			}
		})
	}
}

func TestChangeUserRoleSuccess(t *testing.T) {
	repo := newMemUserRepo()
	seedUsers(repo)
	svc := newDirectoryService(repo)

	err := svc.ChangeUserRole(context.Background(), session.Context{UserID: "admin-a"}, "staff-a", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("ChangeUserRole failed: %v", err)
	}
	if repo.updateRoleCalls != 1 {
		t.Errorf("expected exactly one update, got %d", repo.updateRoleCalls)
	}

	updated, _ := repo.GetByID(context.Background(), "staff-a")
	if updated.Role != domain.RoleAdmin {
		t.Errorf("role not updated, got %s", updated.Role)
	}
}

func TestChangeUserRoleInvalidatesRoleCache(t *testing.T) {
	repo := newMemUserRepo()
	seedUsers(repo)
	svc := newDirectoryService(repo)
	ctx := context.Background()

	role, err := svc.Role(ctx, "staff-a")
	if err != nil || role != domain.RoleStaff {
		t.Fatalf("Role() = %v, %v", role, err)
	}

	if err := svc.ChangeUserRole(ctx, session.Context{UserID: "admin-a"}, "staff-a", domain.RoleAdmin); err != nil {
		t.Fatalf("ChangeUserRole failed: %v", err)
	}

	role, err = svc.Role(ctx, "staff-a")
	if err != nil || role != domain.RoleAdmin {
		t.Fatalf("cached role not invalidated: Role() = %v, %v", role, err)
	}
}

func TestCurrentBusiness(t *testing.T) {
	repo := newMemUserRepo()
	seedUsers(repo)
	businesses := newMemBusinessRepo()
	businesses.byID["biz-a"] = &domain.Business{ID: "biz-a", Name: "Acme"}

	log := slog.Default()
	svc := NewDirectoryService(
		repo,
		businesses,
		security.NewAuthorizationService(log),
		audit.NewLogger(log),
		cache.New(),
		log,
	)
	ctx := context.Background()

	business, err := svc.CurrentBusiness(ctx, session.Context{UserID: "staff-a"})
	if err != nil {
		t.Fatalf("CurrentBusiness failed: %v", err)
	}
	if business.Name != "Acme" {
		t.Errorf("business name = %q, want Acme", business.Name)
	}

	if _, err := svc.CurrentBusiness(ctx, session.Context{UserID: "unassigned"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unassigned user: expected ErrNotFound, got %v", err)
	}

	if _, err := svc.CurrentBusiness(ctx, session.Context{}); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("no session: expected ErrUnauthenticated, got %v", err)
	}
}
