package audit

import (
	"context"
	"log/slog"
	"time"
)

// Logger emits structured audit records for privileged operations. Records
// never include credentials or upstream error detail.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (al *Logger) LogAction(ctx context.Context, businessID, userID, action, resource, resourceID, status, details string) {
	requestID := ""
	if reqID := ctx.Value("request_id"); reqID != nil {
		requestID = reqID.(string)
	}

	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("business_id", businessID),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", requestID),
		slog.Time("timestamp", time.Now()),
	)
}

func (al *Logger) LogRoleChange(ctx context.Context, businessID, actingUserID, targetUserID, newRole, status string) {
	al.LogAction(ctx, businessID, actingUserID, "role_change", "user", targetUserID, status, "new_role="+newRole)
}

func (al *Logger) LogInvite(ctx context.Context, actingUserID, email, status string) {
	al.LogAction(ctx, "", actingUserID, "invite", "user", "", status, "email="+email)
}

func (al *Logger) LogSweep(ctx context.Context, userID, status string) {
	al.LogAction(ctx, "", userID, "sweep", "task_instances", "", status, "")
}
