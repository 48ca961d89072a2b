package security

import (
	"fmt"
	"log/slog"

	"github.com/yourorg/taskhub/internal/domain"
)

// Permission represents an action permission
type Permission string

const (
	PermViewUsers     Permission = "view_users"
	PermInviteUsers   Permission = "invite_users"
	PermChangeRoles   Permission = "change_roles"
	PermManageTasks   Permission = "manage_tasks"
	PermCompleteTasks Permission = "complete_tasks"
	PermRunSweep      Permission = "run_sweep"
)

// RolePermissions maps directory roles to their permissions
var RolePermissions = map[domain.Role][]Permission{
	domain.RoleAdmin: {
		PermViewUsers,
		PermInviteUsers,
		PermChangeRoles,
		PermManageTasks,
		PermCompleteTasks,
		PermRunSweep,
	},
	domain.RoleStaff: {
		PermManageTasks,
		PermCompleteTasks,
		PermRunSweep,
	},
}

// AuthorizationService handles role and tenant checks. Services call it on
// every privileged mutation; the path guard is necessary but not sufficient.
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{
		logger: logger,
	}
}

// HasPermission checks if a role has a specific permission
func (as *AuthorizationService) HasPermission(role domain.Role, permission Permission) bool {
	permissions, exists := RolePermissions[role]
	if !exists {
		return false
	}
	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// ValidatePermission validates that a role has a specific permission
func (as *AuthorizationService) ValidatePermission(role domain.Role, permission Permission) error {
	if !as.HasPermission(role, permission) {
		as.logger.Warn("permission denied",
			slog.String("role", string(role)),
			slog.String("permission", string(permission)),
		)
		return fmt.Errorf("%w: %s role cannot %s", domain.ErrNotAuthorized, role, permission)
	}
	return nil
}

// ValidateTenantAccess checks that both business IDs name the same tenant.
// An empty caller business means the caller is unassigned and can access
// nothing.
func (as *AuthorizationService) ValidateTenantAccess(callerBusinessID, targetBusinessID string) error {
	if callerBusinessID == "" || callerBusinessID != targetBusinessID {
		as.logger.Warn("tenant access denied",
			slog.String("caller_business", callerBusinessID),
			slog.String("target_business", targetBusinessID),
		)
		return domain.ErrCrossTenant
	}
	return nil
}
