package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/yourorg/taskhub/internal/domain"
)

// PostgresBusinessRepository implements domain.BusinessRepository using PostgreSQL
type PostgresBusinessRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresBusinessRepository creates a new business repository
func NewPostgresBusinessRepository(db *sql.DB, logger *slog.Logger) *PostgresBusinessRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresBusinessRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new business
func (r *PostgresBusinessRepository) Create(ctx context.Context, business *domain.Business) error {
	if business.ID == "" {
		business.ID = uuid.NewString()
	}

	query := `
		INSERT INTO businesses (id, name)
		VALUES ($1, $2)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query, business.ID, business.Name).Scan(&business.CreatedAt)
	if err != nil {
		r.logger.Error("failed to create business",
			slog.String("name", business.Name),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create business: %w", err)
	}

	return nil
}

// GetByID retrieves a business by ID
func (r *PostgresBusinessRepository) GetByID(ctx context.Context, id string) (*domain.Business, error) {
	business := &domain.Business{}

	query := `
		SELECT id, name, created_at
		FROM businesses
		WHERE id = $1
	`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&business.ID,
		&business.Name,
		&business.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get business: %w", err)
	}

	return business, nil
}

// List returns all businesses
func (r *PostgresBusinessRepository) List(ctx context.Context) ([]*domain.Business, error) {
	query := `
		SELECT id, name, created_at
		FROM businesses
		ORDER BY name ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list businesses: %w", err)
	}
	defer rows.Close()

	var businesses []*domain.Business
	for rows.Next() {
		business := &domain.Business{}
		if err := rows.Scan(&business.ID, &business.Name, &business.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan business: %w", err)
		}
		businesses = append(businesses, business)
	}

	return businesses, rows.Err()
}

// Delete removes a business
func (r *PostgresBusinessRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM businesses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete business: %w", err)
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

var _ domain.BusinessRepository = (*PostgresBusinessRepository)(nil)
