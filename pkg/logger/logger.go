// Package logger is the tracker's structured logger: a thin layer over zap
// that adds classroom field helpers and context propagation, so call sites
// never import zap directly.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVELS
// ══════════════════════════════════════════════════════════════════════════════

// Level is a minimum severity.
type Level int8

const (
	LevelDebug = Level(zapcore.DebugLevel)
	LevelInfo  = Level(zapcore.InfoLevel)
	LevelWarn  = Level(zapcore.WarnLevel)
	LevelError = Level(zapcore.ErrorLevel)
)

func (l Level) String() string { return strings.ToUpper(zapcore.Level(l).String()) }

// ParseLevel accepts debug, info, warn/warning and error in any case.
// Anything else is info, including zap's dpanic, panic and fatal.
func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(s)); err != nil || zl > zapcore.ErrorLevel {
		return LevelInfo
	}
	return Level(zl)
}

// ══════════════════════════════════════════════════════════════════════════════
// FIELDS
// ══════════════════════════════════════════════════════════════════════════════

// Field is one structured key/value pair.
type Field = zap.Field

func String(key, value string) Field          { return zap.String(key, value) }
func Int(key string, value int) Field         { return zap.Int(key, value) }
func Float64(key string, value float64) Field { return zap.Float64(key, value) }
func Bool(key string, value bool) Field       { return zap.Bool(key, value) }
func Strings(key string, v []string) Field    { return zap.Strings(key, v) }
func Duration(key string, d time.Duration) Field {
	return zap.String(key, d.String())
}

// Err records err under "error". A nil error is skipped.
func Err(err error) Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.String("error", err.Error())
}

// Classroom fields.
func StudentID(id string) Field     { return String("student_id", id) }
func Subject(name string) Field     { return String("subject", name) }
func Outcome(name string) Field     { return String("outcome", name) }
func PoolSize(n int) Field          { return Int("pool_size", n) }
func GradeFilter(f string) Field    { return String("grade_filter", f) }
func Component(name string) Field   { return String("component", name) }
func Operation(name string) Field   { return String("operation", name) }
func Latency(d time.Duration) Field { return Duration("latency", d) }
func Version(v int64) Field         { return zap.Int64("version", v) }
func StoreKeys(keys []string) Field { return Strings("store_keys", keys) }

// ══════════════════════════════════════════════════════════════════════════════
// LOGGER
// ══════════════════════════════════════════════════════════════════════════════

// Format selects the zap encoder.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Options configures New. A nil Output means stdout.
type Options struct {
	Output    io.Writer
	Level     Level
	Format    Format
	AddCaller bool
}

// DefaultOptions is JSON at info level on stdout, with caller.
func DefaultOptions() Options {
	return Options{Output: os.Stdout, Level: LevelInfo, Format: FormatJSON, AddCaller: true}
}

// Logger writes leveled entries with fields.
type Logger struct {
	z *zap.Logger
}

// New builds a Logger from opts.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder

	encoder := zapcore.NewJSONEncoder(enc)
	if opts.Format == FormatConsole {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(enc)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), zapcore.Level(opts.Level))

	var zopts []zap.Option
	if opts.AddCaller {
		zopts = append(zopts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	return &Logger{z: zap.New(core, zopts...)}
}

// Default is New(DefaultOptions()).
func Default() *Logger { return New(DefaultOptions()) }

// Nop discards everything.
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

// Sync flushes buffered entries.
func (l *Logger) Sync() { _ = l.z.Sync() }

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

// WithRequestID tags entries with the HTTP request id.
func (l *Logger) WithRequestID(id string) *Logger {
	return l.With(String("request_id", id))
}

func (l *Logger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

type ctxKey struct{}

// WithContext attaches l to ctx.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the attached logger, or Default when there is none.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return Default()
}
