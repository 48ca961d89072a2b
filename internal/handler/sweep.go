package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/taskhub/internal/security/middleware"
	"github.com/yourorg/taskhub/internal/service"
)

// SweepResponse mirrors the overdue-check contract: success plus the number
// of instances whose overdue flag changed.
type SweepResponse struct {
	Success bool  `json:"success"`
	Updated int64 `json:"updated"`
}

// SweepHandler handles the overdue sweep trigger and its status endpoint
type SweepHandler struct {
	tasks  *service.TaskService
	logger *slog.Logger
}

// NewSweepHandler creates a new sweep handler
func NewSweepHandler(tasks *service.TaskService, logger *slog.Logger) *SweepHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepHandler{tasks: tasks, logger: logger}
}

// Run handles POST /api/tasks/check-overdue. Any authenticated user may
// trigger it; the sweep only recomputes flags the store would converge to
// anyway.
func (h *SweepHandler) Run(w http.ResponseWriter, r *http.Request) {
	sc, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	flagged, err := h.tasks.RunSweep(r.Context(), sc, "api")
	if err != nil {
		h.logger.Error("sweep failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to check overdue tasks"})
		return
	}

	writeJSON(w, http.StatusOK, SweepResponse{Success: true, Updated: flagged})
}

// Status handles GET /api/tasks/check-overdue/status
func (h *SweepHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tasks.Tracker().Status())
}
