package logger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	l *zap.SugaredLogger
}

func New(l *zap.Logger) *Logger {
	return &Logger{l: l.Sugar()}
}

func NewNop() *Logger {
	return New(zap.NewNop())
}

// Build creates the zap logger used by the application. Development mode switches to the
// console encoder with caller and stack traces on warnings.
func Build(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	conf := zap.NewProductionConfig()
	if development {
		conf = zap.NewDevelopmentConfig()
	}

	conf.Level = zap.NewAtomicLevelAt(lvl)

	l, err := conf.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}

	return l, nil
}

func (l *Logger) LogErrorf(format string, v ...any) {
	l.l.Errorf(format, v...)
}

func (l *Logger) LogWarnf(format string, v ...any) {
	l.l.Warnf(format, v...)
}

func (l *Logger) LogInfo(format string, v ...any) {
	l.l.Infof(format, v...)
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{l: l.l.With(kv...)}
}

// WithContext attaches the trace id of the span stored in ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}

	traceID := sc.TraceID().String()

	if spanTraceID := uuid.UUID(sc.TraceID()); spanTraceID != uuid.Nil {
		traceID = spanTraceID.String()
	}

	return l.With("traceID", traceID)
}

func (l *Logger) Sync() error {
	return l.l.Sync() //nolint:wrapcheck
}
