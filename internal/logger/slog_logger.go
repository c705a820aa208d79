package logger

import (
	"context"
	"log/slog"
	"os"
)

// slogLogger is the production Logger, emitting JSON lines via log/slog.
type slogLogger struct {
	base   *slog.Logger
	module string
	min    Level
}

// NewSlog returns a Logger writing JSON to standard output at or above min.
func NewSlog(min Level) Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel(min)})
	return &slogLogger{base: slog.New(h), min: min}
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError, LevelCritical:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (s *slogLogger) Module(name string) Logger {
	mod := name
	if s.module != "" {
		mod = s.module + "." + name
	}
	return &slogLogger{base: s.base, module: mod, min: s.min}
}

func (s *slogLogger) With(fields ...Field) Logger {
	return &slogLogger{base: s.base.With(toArgs(fields)...), module: s.module, min: s.min}
}

func (s *slogLogger) WithContext(ctx context.Context) Logger {
	if traceID, ok := ctx.Value(traceIDKey{}).(string); ok && traceID != "" {
		return s.With(String("trace_id", traceID))
	}
	return s
}

func (s *slogLogger) Log(level Level, msg string, fields ...Field) {
	if level < s.min {
		return
	}
	args := toArgs(fields)
	if s.module != "" {
		args = append(args, "module", s.module)
	}
	s.base.Log(context.Background(), slogLevel(level), msg, args...)
}

func (s *slogLogger) Debug(msg string, fields ...Field)    { s.Log(LevelDebug, msg, fields...) }
func (s *slogLogger) Info(msg string, fields ...Field)     { s.Log(LevelInfo, msg, fields...) }
func (s *slogLogger) Warn(msg string, fields ...Field)     { s.Log(LevelWarn, msg, fields...) }
func (s *slogLogger) Error(msg string, fields ...Field)    { s.Log(LevelError, msg, fields...) }
func (s *slogLogger) Critical(msg string, fields ...Field) { s.Log(LevelCritical, msg, fields...) }

type traceIDKey struct{}

// WithTraceID returns a context carrying a correlation id for WithContext.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, id)
}

func toArgs(fields []Field) []any {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return args
}
