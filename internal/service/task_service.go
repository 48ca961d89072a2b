package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/yourorg/taskhub/internal/domain"
	"github.com/yourorg/taskhub/internal/observability/metrics"
	"github.com/yourorg/taskhub/internal/security"
	"github.com/yourorg/taskhub/internal/session"
)

// TaskService handles task definitions and instances, scoped to the caller's
// business. Reads outside the caller's business surface as not-found rather
// than leaking that the resource exists elsewhere.
type TaskService struct {
	taskRepository     domain.TaskRepository
	instanceRepository domain.TaskInstanceRepository
	userRepository     domain.UserRepository
	authorization      *security.AuthorizationService
	sanitizer          *bluemonday.Policy
	tracker            *SweepTracker
	logger             *slog.Logger
}

// NewTaskService creates a new task service
func NewTaskService(
	taskRepo domain.TaskRepository,
	instanceRepo domain.TaskInstanceRepository,
	userRepo domain.UserRepository,
	authz *security.AuthorizationService,
	logger *slog.Logger,
) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}

	return &TaskService{
		taskRepository:     taskRepo,
		instanceRepository: instanceRepo,
		userRepository:     userRepo,
		authorization:      authz,
		sanitizer:          bluemonday.StrictPolicy(),
		tracker:            NewSweepTracker(),
		logger:             logger,
	}
}

// Tracker exposes sweep run state for the status endpoint.
func (s *TaskService) Tracker() *SweepTracker {
	return s.tracker
}

// CreateTask creates a task definition in the caller's business
func (s *TaskService) CreateTask(ctx context.Context, sess session.Context, task *domain.Task) (*domain.Task, error) {
	actor, err := s.resolveActor(ctx, sess)
	if err != nil {
		return nil, err
	}

	if err := s.authorization.ValidatePermission(actor.Role, security.PermManageTasks); err != nil {
		return nil, err
	}

	if !actor.Assigned() {
		return nil, fmt.Errorf("%w: user has no business", domain.ErrNotAuthorized)
	}

	if !task.Frequency.Valid() {
		return nil, fmt.Errorf("invalid frequency %q", task.Frequency)
	}

	task.BusinessID = actor.BusinessID
	task.Title = s.sanitizer.Sanitize(task.Title)
	task.Description = s.sanitizer.Sanitize(task.Description)

	if task.Title == "" {
		return nil, errors.New("task title is required")
	}

	if err := s.taskRepository.Create(ctx, task); err != nil {
		return nil, err
	}

	s.logger.Info("task created",
		slog.String("task_id", task.ID),
		slog.String("business_id", task.BusinessID),
		slog.String("created_by", actor.ID),
	)

	return task, nil
}

// GetTask retrieves a task in the caller's business
func (s *TaskService) GetTask(ctx context.Context, sess session.Context, taskID string) (*domain.Task, error) {
	actor, err := s.resolveActor(ctx, sess)
	if err != nil {
		return nil, err
	}

	return s.scopedTask(ctx, actor, taskID)
}

// ListTasks returns all task definitions in the caller's business
func (s *TaskService) ListTasks(ctx context.Context, sess session.Context) ([]*domain.Task, error) {
	actor, err := s.resolveActor(ctx, sess)
	if err != nil {
		return nil, err
	}

	if !actor.Assigned() {
		return []*domain.Task{}, nil
	}

	return s.taskRepository.ListByBusiness(ctx, actor.BusinessID)
}

// UpdateTask updates a task definition in the caller's business
func (s *TaskService) UpdateTask(ctx context.Context, sess session.Context, task *domain.Task) (*domain.Task, error) {
	actor, err := s.resolveActor(ctx, sess)
	if err != nil {
		return nil, err
	}

	if err := s.authorization.ValidatePermission(actor.Role, security.PermManageTasks); err != nil {
		return nil, err
	}

	existing, err := s.scopedTask(ctx, actor, task.ID)
	if err != nil {
		return nil, err
	}

	if !task.Frequency.Valid() {
		return nil, fmt.Errorf("invalid frequency %q", task.Frequency)
	}

	task.BusinessID = existing.BusinessID
	task.Title = s.sanitizer.Sanitize(task.Title)
	task.Description = s.sanitizer.Sanitize(task.Description)

	if err := s.taskRepository.Update(ctx, task); err != nil {
		return nil, err
	}

	return task, nil
}

// DeleteTask removes a task definition and its instances
func (s *TaskService) DeleteTask(ctx context.Context, sess session.Context, taskID string) error {
	actor, err := s.resolveActor(ctx, sess)
	if err != nil {
		return err
	}

	if err := s.authorization.ValidatePermission(actor.Role, security.PermManageTasks); err != nil {
		return err
	}

	if _, err := s.scopedTask(ctx, actor, taskID); err != nil {
		return err
	}

	return s.taskRepository.Delete(ctx, taskID)
}

// CreateInstance creates a dated occurrence for a task
func (s *TaskService) CreateInstance(ctx context.Context, sess session.Context, taskID string, dueDate time.Time) (*domain.TaskInstance, error) {
	actor, err := s.resolveActor(ctx, sess)
	if err != nil {
		return nil, err
	}

	if _, err := s.scopedTask(ctx, actor, taskID); err != nil {
		return nil, err
	}

	instance := &domain.TaskInstance{
		TaskID:  taskID,
		DueDate: dueDate,
	}

	if err := s.instanceRepository.Create(ctx, instance); err != nil {
		return nil, err
	}

	return instance, nil
}

// ListInstances returns the instances of a task in the caller's business
func (s *TaskService) ListInstances(ctx context.Context, sess session.Context, taskID string) ([]*domain.TaskInstance, error) {
	actor, err := s.resolveActor(ctx, sess)
	if err != nil {
		return nil, err
	}

	if _, err := s.scopedTask(ctx, actor, taskID); err != nil {
		return nil, err
	}

	return s.instanceRepository.ListByTask(ctx, taskID)
}

// CompleteInstance stamps a task instance as completed by the caller,
// attaching the submitted payload.
func (s *TaskService) CompleteInstance(ctx context.Context, sess session.Context, instanceID string, data map[string]any) (*domain.TaskInstance, error) {
	actor, err := s.resolveActor(ctx, sess)
	if err != nil {
		return nil, err
	}

	if err := s.authorization.ValidatePermission(actor.Role, security.PermCompleteTasks); err != nil {
		return nil, err
	}

	instance, err := s.instanceRepository.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if _, err := s.scopedTask(ctx, actor, instance.TaskID); err != nil {
		return nil, err
	}

	for key, value := range data {
		if str, ok := value.(string); ok {
			data[key] = s.sanitizer.Sanitize(str)
		}
	}

	completedAt := time.Now()
	if err := s.instanceRepository.Complete(ctx, instanceID, actor.ID, completedAt, data); err != nil {
		return nil, err
	}

	s.logger.Info("task instance completed",
		slog.String("instance_id", instanceID),
		slog.String("completed_by", actor.ID),
	)

	return s.instanceRepository.GetByID(ctx, instanceID)
}

// RunSweep flags overdue instances store-side and returns how many flags
// changed. The sweep is idempotent; a concurrent run yields zero and both
// callers succeed. source names the trigger ("api" or "worker"). The caller
// must carry an identity; the background worker acts as session.System.
func (s *TaskService) RunSweep(ctx context.Context, sess session.Context, source string) (int64, error) {
	if sess.UserID == "" {
		return 0, domain.ErrUnauthenticated
	}

	s.tracker.Begin()
	start := time.Now()

	flagged, err := s.instanceRepository.SweepOverdue(ctx)
	if err != nil {
		s.tracker.Finish(0, err)
		metrics.ObserveSweep(source, "error", 0, time.Since(start))
		return 0, fmt.Errorf("%w: overdue sweep failed", domain.ErrUpstream)
	}

	s.tracker.Finish(flagged, nil)
	metrics.ObserveSweep(source, "success", flagged, time.Since(start))
	s.logger.Info("overdue sweep completed",
		slog.String("source", source),
		slog.String("actor", sess.UserID),
		slog.Int64("flagged", flagged),
		slog.Duration("duration", time.Since(start)),
	)

	return flagged, nil
}

// resolveActor maps a missing profile to unauthenticated, matching the
// directory service.
func (s *TaskService) resolveActor(ctx context.Context, sess session.Context) (*domain.User, error) {
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

// scopedTask loads a task and hides it behind not-found when it belongs to
// another business.
func (s *TaskService) scopedTask(ctx context.Context, actor *domain.User, taskID string) (*domain.Task, error) {
	task, err := s.taskRepository.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !actor.Assigned() || task.BusinessID != actor.BusinessID {
		return nil, domain.ErrNotFound
	}
	return task, nil
}
