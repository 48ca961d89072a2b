package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/taskhub/internal/domain"
)

// PostgresTaskInstanceRepository implements domain.TaskInstanceRepository using PostgreSQL
type PostgresTaskInstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresTaskInstanceRepository creates a new task instance repository
func NewPostgresTaskInstanceRepository(db *sql.DB, logger *slog.Logger) *PostgresTaskInstanceRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskInstanceRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new task instance
func (r *PostgresTaskInstanceRepository) Create(ctx context.Context, instance *domain.TaskInstance) error {
	if instance.ID == "" {
		instance.ID = uuid.NewString()
	}

	data, err := marshalData(instance.Data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO task_instances (id, task_id, due_date, data, comment)
		VALUES ($1, $2, $3, $4, $5)
	`

	// comment is NOT NULL in the schema; an empty comment stays ''.
	_, err = r.db.ExecContext(ctx, query,
		instance.ID,
		instance.TaskID,
		instance.DueDate,
		data,
		instance.Comment,
	)
	if err != nil {
		r.logger.Error("failed to create task instance",
			slog.String("task_id", instance.TaskID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create task instance: %w", err)
	}

	return nil
}

// GetByID retrieves a task instance by ID
func (r *PostgresTaskInstanceRepository) GetByID(ctx context.Context, id string) (*domain.TaskInstance, error) {
	query := `
		SELECT id, task_id, due_date, completed_at, completed_by, is_overdue, data, comment
		FROM task_instances
		WHERE id = $1
	`

	instance, err := scanTaskInstance(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task instance: %w", err)
	}

	return instance, nil
}

// ListByTask returns all instances for a task, most recent due date first
func (r *PostgresTaskInstanceRepository) ListByTask(ctx context.Context, taskID string) ([]*domain.TaskInstance, error) {
	query := `
		SELECT id, task_id, due_date, completed_at, completed_by, is_overdue, data, comment
		FROM task_instances
		WHERE task_id = $1
		ORDER BY due_date DESC
	`

	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task instances: %w", err)
	}
	defer rows.Close()

	var instances []*domain.TaskInstance
	for rows.Next() {
		instance, err := scanTaskInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task instance: %w", err)
		}
		instances = append(instances, instance)
	}

	return instances, rows.Err()
}

// Complete stamps an instance as completed with the given payload
func (r *PostgresTaskInstanceRepository) Complete(ctx context.Context, id string, completedBy string, completedAt time.Time, data map[string]any) error {
	payload, err := marshalData(data)
	if err != nil {
		return err
	}

	query := `
		UPDATE task_instances
		SET completed_at = $1, completed_by = $2, data = $3
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, completedAt, completedBy, payload, id)
	if err != nil {
		return fmt.Errorf("failed to complete task instance: %w", err)
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

// Delete removes a task instance
func (r *PostgresTaskInstanceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM task_instances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task instance: %w", err)
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

// SweepOverdue runs the store-side overdue check and returns the number of
// instances whose flag changed. Re-running it without new data is a no-op.
func (r *PostgresTaskInstanceRepository) SweepOverdue(ctx context.Context) (int64, error) {
	var flagged int64

	err := r.db.QueryRowContext(ctx, `SELECT check_overdue_tasks()`).Scan(&flagged)
	if err != nil {
		r.logger.Error("overdue sweep failed",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to run overdue sweep: %w", err)
	}

	return flagged, nil
}

func scanTaskInstance(s scanner) (*domain.TaskInstance, error) {
	instance := &domain.TaskInstance{}
	var completedAt sql.NullTime
	var completedBy, comment sql.NullString
	var data []byte

	err := s.Scan(
		&instance.ID,
		&instance.TaskID,
		&instance.DueDate,
		&completedAt,
		&completedBy,
		&instance.IsOverdue,
		&data,
		&comment,
	)
	if err != nil {
		return nil, err
	}

	instance.CompletedAt = completedAt.Time
	instance.CompletedBy = completedBy.String
	instance.Comment = comment.String

	if len(data) > 0 {
		if err := json.Unmarshal(data, &instance.Data); err != nil {
			return nil, fmt.Errorf("failed to decode instance data: %w", err)
		}
	}

	return instance, nil
}

func marshalData(data map[string]any) ([]byte, error) {
	if data == nil {
		return nil, nil
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode instance data: %w", err)
	}

	return payload, nil
}

var _ domain.TaskInstanceRepository = (*PostgresTaskInstanceRepository)(nil)
