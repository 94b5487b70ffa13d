// Package logger provides a zap-based application logger that tags every
// record with the service name and the trace id carried by the context.
package logger

import (
	"context"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a logging severity.
type Level int8

// Supported levels.
const (
	LevelDebug Level = iota - 1
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a textual level to a Level, defaulting to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// TraceIDFn extracts a trace id from a context.
type TraceIDFn func(ctx context.Context) string

// Logger is the project logger.
type Logger struct {
	log     *zap.SugaredLogger
	traceID TraceIDFn
}

// New returns a JSON logger writing to w.
func New(w io.Writer, level Level, service string, traceIDFn TraceIDFn) *Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(cfg),
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.Level(level),
	)
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).With(zap.String("service", service))
	return &Logger{log: l.Sugar(), traceID: traceIDFn}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{log: zap.NewNop().Sugar()}
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(keyvals ...any) *Logger {
	return &Logger{log: l.log.With(keyvals...), traceID: l.traceID}
}

// Debug logs at debug level.
func (l *Logger) Debug(ctx context.Context, msg string, keyvals ...any) {
	l.log.Debugw(msg, l.fields(ctx, keyvals)...)
}

// Info logs at info level.
func (l *Logger) Info(ctx context.Context, msg string, keyvals ...any) {
	l.log.Infow(msg, l.fields(ctx, keyvals)...)
}

// Warn logs at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, keyvals ...any) {
	l.log.Warnw(msg, l.fields(ctx, keyvals)...)
}

// Error logs at error level.
func (l *Logger) Error(ctx context.Context, msg string, keyvals ...any) {
	l.log.Errorw(msg, l.fields(ctx, keyvals)...)
}

// Sync flushes buffered records.
func (l *Logger) Sync() error {
	return l.log.Sync()
}

func (l *Logger) fields(ctx context.Context, keyvals []any) []any {
	if l.traceID == nil || ctx == nil {
		return keyvals
	}
	if id := l.traceID(ctx); id != "" {
		return append([]any{"trace_id", id}, keyvals...)
	}
	return keyvals
}
