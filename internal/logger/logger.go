package logger

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field names for structured logging across the job board.
const (
	FieldStudentID     = "student_id"
	FieldJobID         = "job_id"
	FieldCVID          = "cv_id"
	FieldApplicationID = "application_id"
	FieldRequestID     = "request_id"
	FieldComponent     = "component"
	FieldError         = "error"
	FieldCount         = "count"
	FieldDurationMS    = "duration_ms"
	FieldStatus        = "status"
	FieldMethod        = "method"
	FieldPath          = "path"
)

type contextKey string

const requestIDKey contextKey = "logger_request_id"

// New builds a sugared logger. Development mode uses the console encoder.
func New(level string, development bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// Nop returns a logger that discards everything, for tests.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// Component returns a child logger tagged with a component name.
func Component(l *zap.SugaredLogger, name string) *zap.SugaredLogger {
	return l.With(FieldComponent, name)
}

// WithRequestID adds a request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request ID stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// FromContext returns l with the request ID from ctx attached.
func FromContext(ctx context.Context, l *zap.SugaredLogger) *zap.SugaredLogger {
	if id := RequestID(ctx); id != "" {
		return l.With(FieldRequestID, id)
	}
	return l
}
