package log

import "context"

type contextKey struct{}

// NewContext returns ctx carrying l for FromContext.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the request-scoped logger, or the slog default
// tagged "unknown" outside a traced request.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return l
	}
	return Default("unknown")
}
