package events

import (
	"context"
	"os"
	"sync"
)

type contextKey int

const (
	loggerKey contextKey = iota
	profileKey
)

// FromContext extracts logger from context.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return defaultLogger
}

// WithLogger adds logger to context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithProfile tags the context, and its logger, with a connection profile name.
func WithProfile(ctx context.Context, name string) context.Context {
	logger := FromContext(ctx).WithField("profile", name)
	ctx = context.WithValue(ctx, profileKey, name)
	return WithLogger(ctx, logger)
}

// GetProfile retrieves the profile name from context.
func GetProfile(ctx context.Context) string {
	if name, ok := ctx.Value(profileKey).(string); ok {
		return name
	}
	return ""
}

var defaultLogger = &Logger{
	mu:     &sync.Mutex{},
	level:  InfoLevel,
	format: "text",
	output: os.Stderr,
	fields: make(map[string]interface{}),
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
