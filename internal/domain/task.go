package domain

import (
	"context"
	"time"
)

// Frequency describes how often task instances are generated for a task.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	return f == FrequencyDaily || f == FrequencyWeekly || f == FrequencyMonthly
}

// Task represents a recurring task definition, scoped to exactly one business
type Task struct {
	ID               string // UUID
	Title            string
	Description      string
	CategoryID       string
	BusinessID       string
	AssignedToUserID string // Empty when unassigned
	Frequency        Frequency
	ScheduleDays     []int // Day numbers for weekly/monthly tasks
	CreatedAt        time.Time
}

// TaskInstance is a dated occurrence of a Task. IsOverdue is owned by the
// store-side sweep; clients never set it directly.
type TaskInstance struct {
	ID          string // UUID
	TaskID      string
	DueDate     time.Time
	CompletedAt time.Time // Zero when not completed
	CompletedBy string
	IsOverdue   bool
	Data        map[string]any // Arbitrary completion payload
	Comment     string
}

// Completed reports whether the instance has been completed.
func (i *TaskInstance) Completed() bool {
	return !i.CompletedAt.IsZero()
}

// TaskRepository defines data access for task definitions
type TaskRepository interface {
	Create(ctx context.Context, task *Task) error
	GetByID(ctx context.Context, id string) (*Task, error)
	ListByBusiness(ctx context.Context, businessID string) ([]*Task, error)
	Update(ctx context.Context, task *Task) error
	Delete(ctx context.Context, id string) error
}

// TaskInstanceRepository defines data access for task instances.
// SweepOverdue invokes the store-side check_overdue_tasks procedure and
// returns the number of instances flagged; it is idempotent.
type TaskInstanceRepository interface {
	Create(ctx context.Context, instance *TaskInstance) error
	GetByID(ctx context.Context, id string) (*TaskInstance, error)
	ListByTask(ctx context.Context, taskID string) ([]*TaskInstance, error)
	Complete(ctx context.Context, id string, completedBy string, completedAt time.Time, data map[string]any) error
	Delete(ctx context.Context, id string) error
	SweepOverdue(ctx context.Context) (int64, error)
}
