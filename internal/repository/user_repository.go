package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/taskhub/internal/domain"
)

// UserRow is a directory profile exactly as the store returns it. business_id
// is nullable for unassigned users.
type UserRow struct {
	ID         string
	Name       string
	Email      string
	Role       string
	BusinessID sql.NullString
	CreatedAt  time.Time
}

// TransformUser maps a store row to the domain profile. It is total: a NULL
// business_id normalizes to the empty string, every other field passes
// through unchanged.
func TransformUser(row UserRow) *domain.User {
	businessID := ""
	if row.BusinessID.Valid {
		businessID = row.BusinessID.String
	}
	return &domain.User{
		ID:         row.ID,
		Name:       row.Name,
		Email:      row.Email,
		Role:       domain.Role(row.Role),
		BusinessID: businessID,
		CreatedAt:  row.CreatedAt,
	}
}

// PostgresUserRepository implements domain.UserRepository using PostgreSQL
type PostgresUserRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *sql.DB, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUserRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new directory profile. An empty BusinessID is stored as
// NULL: the user is unassigned until an admin attaches them to a business.
func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, name, email, role, business_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		user.ID,
		user.Name,
		user.Email,
		string(user.Role),
		nullString(user.BusinessID),
	).Scan(&user.CreatedAt)

	if err != nil {
		r.logger.Error("failed to create user",
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a profile by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, name, email, role, business_id, created_at
		FROM users
		WHERE id = $1
	`

	var row UserRow
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&row.ID,
		&row.Name,
		&row.Email,
		&row.Role,
		&row.BusinessID,
		&row.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("failed to get user by id",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return TransformUser(row), nil
}

// GetByEmail retrieves a profile by email
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT id, name, email, role, business_id, created_at
		FROM users
		WHERE email = $1
	`

	var row UserRow
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&row.ID,
		&row.Name,
		&row.Email,
		&row.Role,
		&row.BusinessID,
		&row.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return TransformUser(row), nil
}

// ListByBusiness lists the profiles of one business ordered by name
func (r *PostgresUserRepository) ListByBusiness(ctx context.Context, businessID string) ([]*domain.User, error) {
	query := `
		SELECT id, name, email, role, business_id, created_at
		FROM users
		WHERE business_id = $1
		ORDER BY name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, businessID)
	if err != nil {
		r.logger.Error("failed to list users by business",
			slog.String("business_id", businessID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		var row UserRow
		err := rows.Scan(
			&row.ID,
			&row.Name,
			&row.Email,
			&row.Role,
			&row.BusinessID,
			&row.CreatedAt,
		)
		if err != nil {
			r.logger.Error("failed to scan user row",
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, TransformUser(row))
	}

	return users, rows.Err()
}

// UpdateRole performs the single-row role update that concludes a role
// change; all authorization checks happen in the service before this call.
func (r *PostgresUserRepository) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	query := `
		UPDATE users
		SET role = $1
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, string(role), id)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Update updates a profile's mutable fields
func (r *PostgresUserRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET name = $1, email = $2, role = $3, business_id = $4
		WHERE id = $5
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Name,
		user.Email,
		string(user.Role),
		nullString(user.BusinessID),
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Delete removes a profile. Used by invite compensation, so deleting an
// already-absent row is not an error.
func (r *PostgresUserRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM users
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ domain.UserRepository = (*PostgresUserRepository)(nil)
