package logger

import (
	"context"

	wcontext "github.com/poltergeist/wraith/pkg/context"
)

// LoggerContext extends the Logger interface with context-aware methods
type LoggerContext interface {
	Logger
	InfoContext(ctx context.Context, message string, fields ...Field)
	ErrorContext(ctx context.Context, message string, fields ...Field)
	WarnContext(ctx context.Context, message string, fields ...Field)
	DebugContext(ctx context.Context, message string, fields ...Field)
}

var _ LoggerContext = (*FileLogger)(nil)

// InfoContext logs an info message with run fields
func (l *FileLogger) InfoContext(ctx context.Context, message string, fields ...Field) {
	l.Info(message, append(contextFields(ctx), fields...)...)
}

// ErrorContext logs an error message with run fields
func (l *FileLogger) ErrorContext(ctx context.Context, message string, fields ...Field) {
	l.Error(message, append(contextFields(ctx), fields...)...)
}

// WarnContext logs a warning message with run fields
func (l *FileLogger) WarnContext(ctx context.Context, message string, fields ...Field) {
	l.Warn(message, append(contextFields(ctx), fields...)...)
}

// DebugContext logs a debug message with run fields
func (l *FileLogger) DebugContext(ctx context.Context, message string, fields ...Field) {
	l.Debug(message, append(contextFields(ctx), fields...)...)
}

func contextFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}

	var fields []Field
	if runID := wcontext.GetRunID(ctx); runID != wcontext.UnknownRun {
		fields = append(fields, WithField("run_id", runID))
	}
	if phase := wcontext.GetPhase(ctx); phase != "" {
		fields = append(fields, WithField("phase", string(phase)))
	}
	return fields
}

// WithContext creates a logger that automatically includes run fields
func WithContext(ctx context.Context, logger Logger) Logger {
	if ctx == nil {
		return logger
	}
	return &contextualLogger{ctx: ctx, logger: logger}
}

type contextualLogger struct {
	ctx    context.Context
	logger Logger
}

func (cl *contextualLogger) Info(message string, fields ...Field) {
	cl.logger.Info(message, append(contextFields(cl.ctx), fields...)...)
}

func (cl *contextualLogger) Error(message string, fields ...Field) {
	cl.logger.Error(message, append(contextFields(cl.ctx), fields...)...)
}

func (cl *contextualLogger) Warn(message string, fields ...Field) {
	cl.logger.Warn(message, append(contextFields(cl.ctx), fields...)...)
}

func (cl *contextualLogger) Debug(message string, fields ...Field) {
	cl.logger.Debug(message, append(contextFields(cl.ctx), fields...)...)
}

func (cl *contextualLogger) Success(message string, fields ...Field) {
	cl.logger.Success(message, append(contextFields(cl.ctx), fields...)...)
}

func (cl *contextualLogger) WithFile(path string) Logger {
	return &contextualLogger{ctx: cl.ctx, logger: cl.logger.WithFile(path)}
}
