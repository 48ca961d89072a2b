package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/yourorg/taskhub/internal/domain"
	"github.com/yourorg/taskhub/internal/security"
	"github.com/yourorg/taskhub/internal/session"
)

func newTaskServiceForTest(users *memUserRepo, tasks *memTaskRepo, instances *memInstanceRepo) *TaskService {
	log := slog.Default()
	return NewTaskService(tasks, instances, users, security.NewAuthorizationService(log), log)
}

func seedTask(tasks *memTaskRepo, id, businessID string) {
	tasks.byID[id] = &domain.Task{ID: id, Title: "Clean kitchen", BusinessID: businessID, Frequency: domain.FrequencyDaily}
}

func TestCreateTaskScopesToActorBusiness(t *testing.T) {
	users := newMemUserRepo()
	seedUsers(users)
	svc := newTaskServiceForTest(users, newMemTaskRepo(), newMemInstanceRepo())

	task, err := svc.CreateTask(context.Background(), session.Context{UserID: "staff-a"}, &domain.Task{
		Title:     "Restock shelves",
		Frequency: domain.FrequencyWeekly,
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.BusinessID != "biz-a" {
		t.Errorf("task business = %q, want biz-a", task.BusinessID)
	}
}

func TestCreateTaskSanitizesMarkup(t *testing.T) {
	users := newMemUserRepo()
	seedUsers(users)
	svc := newTaskServiceForTest(users, newMemTaskRepo(), newMemInstanceRepo())

	task, err := svc.CreateTask(context.Background(), session.Context{UserID: "staff-a"}, &domain.Task{
		Title:     "Wipe counters<script>alert(1)</script>",
		Frequency: domain.FrequencyDaily,
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.Title != "Wipe counters" {
		t.Errorf("title not sanitized: %q", task.Title)
	}
}

func TestGetTaskFromOtherBusinessIsNotFound(t *testing.T) {
	users := newMemUserRepo()
	seedUsers(users)
	tasks := newMemTaskRepo()
	seedTask(tasks, "t1", "biz-b")
	svc := newTaskServiceForTest(users, tasks, newMemInstanceRepo())

	_, err := svc.GetTask(context.Background(), session.Context{UserID: "staff-a"}, "t1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cross-business read should be not-found, got %v", err)
	}
}

func TestCompleteInstanceStamps(t *testing.T) {
	users := newMemUserRepo()
	seedUsers(users)
	tasks := newMemTaskRepo()
	seedTask(tasks, "t1", "biz-a")
	instances := newMemInstanceRepo()
	instances.byID["i1"] = &domain.TaskInstance{ID: "i1", TaskID: "t1", DueDate: time.Now().Add(time.Hour)}
	svc := newTaskServiceForTest(users, tasks, instances)

	done, err := svc.CompleteInstance(context.Background(), session.Context{UserID: "staff-a"}, "i1", map[string]any{"note": "all good"})
	if err != nil {
		t.Fatalf("CompleteInstance failed: %v", err)
	}
	if !done.Completed() {
		t.Error("instance should be completed")
	}
	if done.CompletedBy != "staff-a" {
		t.Errorf("completed_by = %q, want staff-a", done.CompletedBy)
	}
	if done.Data["note"] != "all good" {
		t.Errorf("payload not stored: %v", done.Data)
	}
}

func TestCompleteInstanceAcrossBusinessIsNotFound(t *testing.T) {
	users := newMemUserRepo()
	seedUsers(users)
	tasks := newMemTaskRepo()
	seedTask(tasks, "t1", "biz-b")
	instances := newMemInstanceRepo()
	instances.byID["i1"] = &domain.TaskInstance{ID: "i1", TaskID: "t1", DueDate: time.Now()}
	svc := newTaskServiceForTest(users, tasks, instances)

	_, err := svc.CompleteInstance(context.Background(), session.Context{UserID: "staff-a"}, "i1", nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunSweepIsIdempotent(t *testing.T) {
	users := newMemUserRepo()
	seedUsers(users)
	instances := newMemInstanceRepo()
	instances.byID["late"] = &domain.TaskInstance{ID: "late", TaskID: "t1", DueDate: time.Now().Add(-time.Hour)}
	instances.byID["done"] = &domain.TaskInstance{ID: "done", TaskID: "t1", DueDate: time.Now().Add(-time.Hour), CompletedAt: time.Now()}
	instances.byID["future"] = &domain.TaskInstance{ID: "future", TaskID: "t1", DueDate: time.Now().Add(time.Hour)}
	svc := newTaskServiceForTest(users, newMemTaskRepo(), instances)
	ctx := context.Background()

	flagged, err := svc.RunSweep(ctx, session.Context{UserID: "admin-a"}, "api")
	if err != nil {
		t.Fatalf("RunSweep failed: %v", err)
	}
	if flagged != 1 {
		t.Errorf("first sweep flagged %d, want 1", flagged)
	}

	flagged, err = svc.RunSweep(ctx, session.Context{UserID: "admin-a"}, "api")
	if err != nil {
		t.Fatalf("second RunSweep failed: %v", err)
	}
	if flagged != 0 {
		t.Errorf("second sweep flagged %d, want 0", flagged)
	}
}

func TestRunSweepRequiresIdentity(t *testing.T) {
	instances := newMemInstanceRepo()
	instances.byID["late"] = &domain.TaskInstance{ID: "late", TaskID: "t1", DueDate: time.Now().Add(-time.Hour)}
	svc := newTaskServiceForTest(newMemUserRepo(), newMemTaskRepo(), instances)

	_, err := svc.RunSweep(context.Background(), session.Context{}, "api")
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if instances.sweepCalls != 0 {
		t.Errorf("store swept %d times for an anonymous caller, want 0", instances.sweepCalls)
	}

	if _, err := svc.RunSweep(context.Background(), session.System(), "worker"); err != nil {
		t.Fatalf("system identity sweep failed: %v", err)
	}
}

func TestSweepTrackerStates(t *testing.T) {
	users := newMemUserRepo()
	instances := newMemInstanceRepo()
	svc := newTaskServiceForTest(users, newMemTaskRepo(), instances)
	ctx := context.Background()

	if got := svc.Tracker().Status().State; got != SweepIdle {
		t.Errorf("initial state = %q, want idle", got)
	}

	if _, err := svc.RunSweep(ctx, session.System(), "worker"); err != nil {
		t.Fatalf("RunSweep failed: %v", err)
	}
	if got := svc.Tracker().Status().State; got != SweepSucceeded {
		t.Errorf("state after success = %q, want succeeded", got)
	}

	instances.failSweep = true
	if _, err := svc.RunSweep(ctx, session.System(), "worker"); !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	status := svc.Tracker().Status()
	if status.State != SweepFailed {
		t.Errorf("state after failure = %q, want failed", status.State)
	}
	if status.LastError == "" {
		t.Error("failed sweep should record an error")
	}
}
