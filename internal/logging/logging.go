// Package logging wraps go.uber.org/zap with the field conventions used
// across the orchestration core: every call site keys fields the way
// kubernaut-style orchestrators do (task_id, status, attempt), and a logger
// is threaded explicitly through the process context rather than reached for
// as a global (spec.md §9 "encapsulate in a single process-context value").
package logging

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// New builds a production zap.Logger; level and encoding follow zap's
// defaults (JSON, info level) since the CLI's human-facing output goes
// through internal/cli's fatih/color renderer instead.
func New() (*zap.Logger, error) {
	return zap.NewProduction()
}

// NewDevelopment builds a development zap.Logger (console-encoded, debug
// level).
func NewDevelopment() (*zap.Logger, error) {
	return zap.NewDevelopment()
}

// WithContext returns a child context carrying l, retrievable via FromContext.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger carried by ctx, or a no-op logger if none
// was attached.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// TaskFields builds the standard (task_id, status, attempt) field triple
// used throughout the orchestration core's log lines.
func TaskFields(taskID string, status string, attempt int) []zap.Field {
	return []zap.Field{
		zap.String("task_id", taskID),
		zap.String("status", status),
		zap.Int("attempt", attempt),
	}
}
