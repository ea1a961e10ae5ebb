package logger

import (
	"context"
)

type contextKey struct{}

// WithLogger stores l in ctx
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx, or the global logger
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(*Logger); ok && l != nil {
			return l
		}
	}
	return Get()
}
