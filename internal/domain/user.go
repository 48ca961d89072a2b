package domain

import (
	"context"
	"time"
)

// Role is a directory role within a business.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStaff
}

// User represents a directory profile
type User struct {
	ID         string // UUID, matches the identity-provider account ID
	Name       string
	Email      string // Unique email address
	Role       Role
	BusinessID string // Empty for unassigned users (business_id NULL in the store)
	CreatedAt  time.Time
}

// Assigned reports whether the user belongs to a business.
// Unassigned users cannot be role-managed by any admin.
func (u *User) Assigned() bool {
	return u.BusinessID != ""
}

// UserRepository defines data access for directory profiles
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListByBusiness(ctx context.Context, businessID string) ([]*User, error)
	UpdateRole(ctx context.Context, id string, role Role) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
}

// Business represents a tenant: the isolation boundary for users and tasks
type Business struct {
	ID        string // UUID
	Name      string
	CreatedAt time.Time
}

// BusinessRepository defines data access for businesses
type BusinessRepository interface {
	Create(ctx context.Context, business *Business) error
	GetByID(ctx context.Context, id string) (*Business, error)
	List(ctx context.Context) ([]*Business, error)
	Delete(ctx context.Context, id string) error
}
