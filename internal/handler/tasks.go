package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yourorg/taskhub/internal/domain"
	"github.com/yourorg/taskhub/internal/security/middleware"
	"github.com/yourorg/taskhub/internal/service"
	"github.com/yourorg/taskhub/internal/session"
)

// TaskRequest creates or updates a task definition
type TaskRequest struct {
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	CategoryID       string `json:"categoryId,omitempty"`
	AssignedToUserID string `json:"assignedToUserId,omitempty"`
	Frequency        string `json:"frequency"`
	ScheduleDays     []int  `json:"scheduleDays,omitempty"`
}

// TaskResponse is the wire form of a task definition
type TaskResponse struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	CategoryID       string    `json:"categoryId,omitempty"`
	BusinessID       string    `json:"businessId"`
	AssignedToUserID string    `json:"assignedToUserId,omitempty"`
	Frequency        string    `json:"frequency"`
	ScheduleDays     []int     `json:"scheduleDays,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// InstanceRequest creates a dated occurrence
type InstanceRequest struct {
	DueDate time.Time `json:"dueDate"`
}

// CompleteRequest completes a task instance with an arbitrary payload
type CompleteRequest struct {
	Data map[string]any `json:"data,omitempty"`
}

// InstanceResponse is the wire form of a task instance
type InstanceResponse struct {
	ID          string         `json:"id"`
	TaskID      string         `json:"taskId"`
	DueDate     time.Time      `json:"dueDate"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	CompletedBy string         `json:"completedBy,omitempty"`
	IsOverdue   bool           `json:"isOverdue"`
	Data        map[string]any `json:"data,omitempty"`
	Comment     string         `json:"comment,omitempty"`
}

// TasksHandler handles task and task-instance endpoints
type TasksHandler struct {
	tasks  *service.TaskService
	logger *slog.Logger
}

// NewTasksHandler creates a new tasks handler
func NewTasksHandler(tasks *service.TaskService, logger *slog.Logger) *TasksHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TasksHandler{tasks: tasks, logger: logger}
}

// Create handles POST /api/tasks
func (h *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionOr401(w, r)
	if !ok {
		return
	}

	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request")
		return
	}
	if req.Title == "" {
		writeBadRequest(w, "title is required")
		return
	}

	task, err := h.tasks.CreateTask(r.Context(), sc, taskFromRequest(req, ""))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTaskResponse(task))
}

// List handles GET /api/tasks
func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionOr401(w, r)
	if !ok {
		return
	}

	tasks, err := h.tasks.ListTasks(r.Context(), sc)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	responses := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		responses = append(responses, toTaskResponse(task))
	}
	writeJSON(w, http.StatusOK, responses)
}

// Get handles GET /api/tasks/{id}
func (h *TasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionOr401(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.GetTask(r.Context(), sc, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

// Update handles PUT /api/tasks/{id}
func (h *TasksHandler) Update(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionOr401(w, r)
	if !ok {
		return
	}

	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request")
		return
	}

	task, err := h.tasks.UpdateTask(r.Context(), sc, taskFromRequest(req, chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

// Delete handles DELETE /api/tasks/{id}
func (h *TasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionOr401(w, r)
	if !ok {
		return
	}

	if err := h.tasks.DeleteTask(r.Context(), sc, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateInstance handles POST /api/tasks/{id}/instances
func (h *TasksHandler) CreateInstance(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionOr401(w, r)
	if !ok {
		return
	}

	var req InstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request")
		return
	}
	if req.DueDate.IsZero() {
		writeBadRequest(w, "dueDate is required")
		return
	}

	instance, err := h.tasks.CreateInstance(r.Context(), sc, chi.URLParam(r, "id"), req.DueDate)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toInstanceResponse(instance))
}

// ListInstances handles GET /api/tasks/{id}/instances
func (h *TasksHandler) ListInstances(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionOr401(w, r)
	if !ok {
		return
	}

	instances, err := h.tasks.ListInstances(r.Context(), sc, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	responses := make([]InstanceResponse, 0, len(instances))
	for _, instance := range instances {
		responses = append(responses, toInstanceResponse(instance))
	}
	writeJSON(w, http.StatusOK, responses)
}

// Complete handles POST /api/instances/{id}/complete
func (h *TasksHandler) Complete(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionOr401(w, r)
	if !ok {
		return
	}

	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request")
		return
	}

	instance, err := h.tasks.CompleteInstance(r.Context(), sc, chi.URLParam(r, "id"), req.Data)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toInstanceResponse(instance))
}

func sessionOr401(w http.ResponseWriter, r *http.Request) (session.Context, bool) {
	sc, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
	}
	return sc, ok
}

func taskFromRequest(req TaskRequest, id string) *domain.Task {
	return &domain.Task{
		ID:               id,
		Title:            req.Title,
		Description:      req.Description,
		CategoryID:       req.CategoryID,
		AssignedToUserID: req.AssignedToUserID,
		Frequency:        domain.Frequency(req.Frequency),
		ScheduleDays:     req.ScheduleDays,
	}
}

func toTaskResponse(task *domain.Task) TaskResponse {
	return TaskResponse{
		ID:               task.ID,
		Title:            task.Title,
		Description:      task.Description,
		CategoryID:       task.CategoryID,
		BusinessID:       task.BusinessID,
		AssignedToUserID: task.AssignedToUserID,
		Frequency:        string(task.Frequency),
		ScheduleDays:     task.ScheduleDays,
		CreatedAt:        task.CreatedAt,
	}
}

func toInstanceResponse(instance *domain.TaskInstance) InstanceResponse {
	resp := InstanceResponse{
		ID:          instance.ID,
		TaskID:      instance.TaskID,
		DueDate:     instance.DueDate,
		CompletedBy: instance.CompletedBy,
		IsOverdue:   instance.IsOverdue,
		Data:        instance.Data,
		Comment:     instance.Comment,
	}
	if instance.Completed() {
		completedAt := instance.CompletedAt
		resp.CompletedAt = &completedAt
	}
	return resp
}
