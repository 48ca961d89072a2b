package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yourorg/taskhub/internal/service"
)

// SweepStreamHandler pushes sweep status over a WebSocket so dashboards can
// watch a run in flight instead of polling the status endpoint.
type SweepStreamHandler struct {
	tasks          *service.TaskService
	logger         *slog.Logger
	allowedOrigins []string
}

// NewSweepStreamHandler creates a new sweep stream handler
func NewSweepStreamHandler(tasks *service.TaskService, logger *slog.Logger, allowedOrigins []string) *SweepStreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepStreamHandler{
		tasks:          tasks,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
}

func (h *SweepStreamHandler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /ws/sweep. It emits a status frame whenever the
// sweep state changes, plus a heartbeat ping to keep the connection alive.
func (h *SweepStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := h.getUpgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	ctx := r.Context()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	last := h.tasks.Tracker().Status()
	if err := ws.WriteJSON(last); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			_ = ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		case <-ticker.C:
			status := h.tasks.Tracker().Status()
			if status == last {
				continue
			}
			last = status
			if err := ws.WriteJSON(status); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Debug("sweep stream closed")
				}
				return
			}
		}
	}
}
