package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/taskhub/internal/domain"
	"github.com/yourorg/taskhub/internal/observability/metrics"
	"github.com/yourorg/taskhub/internal/security"
	"github.com/yourorg/taskhub/internal/security/audit"
	"github.com/yourorg/taskhub/internal/session"
	"github.com/yourorg/taskhub/pkg/cache"
)

const profileCacheTTL = 30 * time.Second

// DirectoryService handles directory profiles: listing, role management and
// the guard's role lookups. Every operation takes the caller's session
// context explicitly and re-resolves the acting profile from the store; the
// path guard alone is never trusted.
type DirectoryService struct {
	userRepository     domain.UserRepository
	businessRepository domain.BusinessRepository
	authorization      *security.AuthorizationService
	auditLogger        *audit.Logger
	cache              *cache.Cache
	logger             *slog.Logger
}

// NewDirectoryService creates a new directory service
func NewDirectoryService(
	userRepo domain.UserRepository,
	businessRepo domain.BusinessRepository,
	authz *security.AuthorizationService,
	auditLogger *audit.Logger,
	profileCache *cache.Cache,
	logger *slog.Logger,
) *DirectoryService {
	if logger == nil {
		logger = slog.Default()
	}

	return &DirectoryService{
		userRepository:     userRepo,
		businessRepository: businessRepo,
		authorization:      authz,
		auditLogger:        auditLogger,
		cache:              profileCache,
		logger:             logger,
	}
}

// CurrentBusiness resolves the caller's business record. Unassigned users
// have no business; that reads as not-found, not as an authorization error.
func (s *DirectoryService) CurrentBusiness(ctx context.Context, sess session.Context) (*domain.Business, error) {
	actor, err := s.Profile(ctx, sess)
	if err != nil {
		return nil, err
	}

	if !actor.Assigned() {
		return nil, domain.ErrNotFound
	}

	business, err := s.businessRepository.GetByID(ctx, actor.BusinessID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve business: %w", err)
	}

	return business, nil
}

// Profile resolves the acting user's directory profile. A session whose
// profile row is missing counts as unauthenticated, not as a 404: the
// identity exists upstream but has no standing in the directory.
func (s *DirectoryService) Profile(ctx context.Context, sess session.Context) (*domain.User, error) {
	if sess.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}

	actor, err := s.userRepository.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to resolve acting profile: %w", err)
	}

	return actor, nil
}

// Role returns the directory role for a user ID, caching briefly. The guard
// calls this on every guarded request; role changes invalidate the entry.
func (s *DirectoryService) Role(ctx context.Context, userID string) (domain.Role, error) {
	key := "role:" + userID

	if cached, ok := s.cache.Get(key); ok {
		if role, ok := cached.(domain.Role); ok {
			return role, nil
		}
	}

	user, err := s.userRepository.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	s.cache.Set(key, user.Role, profileCacheTTL)
	return user.Role, nil
}

// ListUsers returns the users of the caller's business, ordered by name.
// The admin check lives here rather than in the handler, so every caller of
// the directory gets the same enforcement.
func (s *DirectoryService) ListUsers(ctx context.Context, sess session.Context) ([]*domain.User, error) {
	actor, err := s.Profile(ctx, sess)
	if err != nil {
		return nil, err
	}

	if err := s.authorization.ValidatePermission(actor.Role, security.PermViewUsers); err != nil {
		return nil, err
	}

	if !actor.Assigned() {
		return []*domain.User{}, nil
	}

	users, err := s.userRepository.ListByBusiness(ctx, actor.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

// ChangeUserRole updates the role of one user in the caller's business.
//
// Checks run in a fixed order, each with its own error category:
// unauthenticated before unauthorized, unauthorized before not-found,
// not-found before cross-tenant. Only after all four pass does the single-row
// update run.
func (s *DirectoryService) ChangeUserRole(ctx context.Context, sess session.Context, targetUserID string, newRole domain.Role) error {
	// 1. Resolve the acting profile
	actor, err := s.Profile(ctx, sess)
	if err != nil {
		metrics.ObserveRoleChange("unauthenticated")
		return err
	}

	// 2. Only admins change roles
	if err := s.authorization.ValidatePermission(actor.Role, security.PermChangeRoles); err != nil {
		metrics.ObserveRoleChange("denied")
		s.auditLogger.LogRoleChange(ctx, actor.BusinessID, actor.ID, targetUserID, string(newRole), "denied")
		return err
	}

	// 3. The target must exist
	target, err := s.userRepository.GetByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.ObserveRoleChange("not_found")
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to resolve target user: %w", err)
	}

	// 4. Actor and target must share a business. An unassigned actor or an
	// unassigned target fails this check; they match no tenant.
	if err := s.authorization.ValidateTenantAccess(actor.BusinessID, target.BusinessID); err != nil {
		metrics.ObserveRoleChange("cross_tenant")
		s.auditLogger.LogRoleChange(ctx, actor.BusinessID, actor.ID, targetUserID, string(newRole), "cross_tenant")
		return err
	}

	// 5. Single-row update
	if err := s.userRepository.UpdateRole(ctx, targetUserID, newRole); err != nil {
		metrics.ObserveRoleChange("error")
		return fmt.Errorf("failed to update role: %w", err)
	}

	s.cache.Delete("role:" + targetUserID)
	metrics.ObserveRoleChange("success")
	s.auditLogger.LogRoleChange(ctx, actor.BusinessID, actor.ID, targetUserID, string(newRole), "success")
	s.logger.Info("role changed",
		slog.String("acting_user", actor.ID),
		slog.String("target_user", targetUserID),
		slog.String("new_role", string(newRole)),
	)

	return nil
}
