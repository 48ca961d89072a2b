package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/yourorg/taskhub/internal/domain"
)

// PostgresTaskRepository implements domain.TaskRepository using PostgreSQL
type PostgresTaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresTaskRepository creates a new task repository
func NewPostgresTaskRepository(db *sql.DB, logger *slog.Logger) *PostgresTaskRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new task definition
func (r *PostgresTaskRepository) Create(ctx context.Context, task *domain.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	query := `
		INSERT INTO tasks (id, title, description, category_id, business_id, assigned_to_user_id, frequency, schedule_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		nullString(task.CategoryID),
		task.BusinessID,
		nullString(task.AssignedToUserID),
		string(task.Frequency),
		pq.Array(task.ScheduleDays),
	).Scan(&task.CreatedAt)

	if err != nil {
		r.logger.Error("failed to create task",
			slog.String("title", task.Title),
			slog.String("business_id", task.BusinessID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// GetByID retrieves a task by ID
func (r *PostgresTaskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	query := `
		SELECT id, title, description, category_id, business_id, assigned_to_user_id, frequency, schedule_days, created_at
		FROM tasks
		WHERE id = $1
	`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// ListByBusiness returns all task definitions for a business
func (r *PostgresTaskRepository) ListByBusiness(ctx context.Context, businessID string) ([]*domain.Task, error) {
	query := `
		SELECT id, title, description, category_id, business_id, assigned_to_user_id, frequency, schedule_days, created_at
		FROM tasks
		WHERE business_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// Update updates a task definition
func (r *PostgresTaskRepository) Update(ctx context.Context, task *domain.Task) error {
	query := `
		UPDATE tasks
		SET title = $1, description = $2, category_id = $3, assigned_to_user_id = $4, frequency = $5, schedule_days = $6
		WHERE id = $7
	`

	result, err := r.db.ExecContext(ctx, query,
		task.Title,
		task.Description,
		nullString(task.CategoryID),
		nullString(task.AssignedToUserID),
		string(task.Frequency),
		pq.Array(task.ScheduleDays),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
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

// Delete removes a task and its instances
func (r *PostgresTaskRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
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

// scanner abstracts sql.Row and sql.Rows for shared scan logic
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*domain.Task, error) {
	task := &domain.Task{}
	var categoryID, assignedTo sql.NullString
	var frequency string
	var days pq.Int64Array

	err := s.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&categoryID,
		&task.BusinessID,
		&assignedTo,
		&frequency,
		&days,
		&task.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.CategoryID = categoryID.String
	task.AssignedToUserID = assignedTo.String
	task.Frequency = domain.Frequency(frequency)
	task.ScheduleDays = make([]int, len(days))
	for i, d := range days {
		task.ScheduleDays[i] = int(d)
	}

	return task, nil
}

var _ domain.TaskRepository = (*PostgresTaskRepository)(nil)
