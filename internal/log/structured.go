package log

import (
	"context"
	"log/slog"
	"net/http"
)

// StructuredLogger emits the ledger's recurring events with a fixed field
// set, so dashboards can key on them.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogHTTPStart logs the start of an HTTP request
func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.DebugContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd logs the outcome at a level chosen by status class.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogProjectSaved records a create or update together with who made it.
func (sl *StructuredLogger) LogProjectSaved(ctx context.Context, op, id, name string, balanceCents int64, username string) {
	fields := NewFields().
		WithProject(id, name, balanceCents).
		WithOperation(op).
		WithComponent(ComponentProject)
	fields[FieldUsername] = username

	sl.logger.InfoContext(ctx, "Project saved", fields.ToSlice()...)
}

// LogAccessDenied records an action the access gate refused.
func (sl *StructuredLogger) LogAccessDenied(ctx context.Context, username, role, action string) {
	fields := NewFields().
		WithUser(username, role).
		WithOperation(OpAuthorize).
		WithErrorType(ErrorTypeForbidden).
		WithComponent(ComponentAuth)
	fields[FieldAction] = action

	sl.logger.WarnContext(ctx, "Action denied", fields.ToSlice()...)
}
