// Package logging wraps log/slog behind a context-first interface shared by
// the daemon, the batch runner and the library packages.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is one key/value pair attached to a record.
type Field struct {
	Key   string
	Value any
}

func (f Field) attr() slog.Attr { return slog.Any(f.Key, f.Value) }

func String(key, value string) Field        { return Field{key, value} }
func Int(key string, value int) Field       { return Field{key, value} }
func Float(key string, value float64) Field { return Field{key, value} }
func Any(key string, value any) Field       { return Field{key, value} }

// Err stores the error text under "error". A nil error logs as null.
func Err(err error) Field {
	f := Field{Key: "error"}
	if err != nil {
		f.Value = err.Error()
	}
	return f
}

// SatelliteID tags a record with the satellite it concerns.
func SatelliteID(id string) Field { return Field{"satellite_id", id} }

// Logger is the logging surface used across the module. Every call takes the
// caller's context so handlers can pick up request-scoped values.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

const defaultMaxSizeMB = 64

// Config selects level, encoding and destination.
type Config struct {
	Level     string // debug, info, warn or error
	Format    string // "json"; anything else is text
	AddSource bool

	// File switches output from stdout to a rotated file.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Writer returns stdout, or a lumberjack rotator when File is set.
func (c Config) Writer() io.Writer {
	if c.File == "" {
		return os.Stdout
	}
	size := c.MaxSizeMB
	if size <= 0 {
		size = defaultMaxSizeMB
	}
	return &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    size,
		MaxBackups: c.MaxBackups,
		Compress:   true,
	}
}

func (c Config) handler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: levelOf(c.Level), AddSource: c.AddSource}
	if strings.EqualFold(c.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// New builds a slog-backed Logger for cfg.
func New(cfg Config) Logger {
	return &slogger{l: slog.New(cfg.handler(cfg.Writer()))}
}

// NewFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_FILE and LOG_MAX_SIZE_MB.
// Unset variables give info-level text on stdout.
func NewFromEnv() Logger {
	size, _ := strconv.Atoi(os.Getenv("LOG_MAX_SIZE_MB"))
	return New(Config{
		Level:      os.Getenv("LOG_LEVEL"),
		Format:     os.Getenv("LOG_FORMAT"),
		AddSource:  true,
		File:       os.Getenv("LOG_FILE"),
		MaxSizeMB:  size,
		MaxBackups: 3,
	})
}

// NewWithWriter emits JSON records to w. Tests use it to decode what was logged.
func NewWithWriter(w io.Writer, level string) Logger {
	return &slogger{l: slog.New(Config{Level: level, Format: "json"}.handler(w))}
}

// Noop discards everything.
func Noop() Logger { return noopLogger{} }

type slogger struct {
	l *slog.Logger
}

func (s *slogger) log(ctx context.Context, level slog.Level, msg string, fields []Field) {
	if !s.l.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = f.attr()
	}
	s.l.LogAttrs(ctx, level, msg, attrs...)
}

func (s *slogger) Debug(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelDebug, msg, fields)
}

func (s *slogger) Info(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelInfo, msg, fields)
}

func (s *slogger) Warn(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelWarn, msg, fields)
}

func (s *slogger) Error(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelError, msg, fields)
}

func (s *slogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return s
	}
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f.attr()
	}
	return &slogger{l: s.l.With(args...)}
}

type noopLogger struct{}

func (n noopLogger) With(...Field) Logger                  { return n }
func (noopLogger) Debug(context.Context, string, ...Field) {}
func (noopLogger) Info(context.Context, string, ...Field)  {}
func (noopLogger) Warn(context.Context, string, ...Field)  {}
func (noopLogger) Error(context.Context, string, ...Field) {}

func levelOf(name string) slog.Level {
	var lvl slog.Level
	switch name = strings.ToLower(strings.TrimSpace(name)); name {
	case "":
		return slog.LevelInfo
	case "warning":
		return slog.LevelWarn
	}
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

type contextKey int

const (
	requestIDKey contextKey = iota
	loggerKey
)

// ContextWithRequestID returns a child of ctx carrying id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the stored request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// EnsureRequestID keeps an existing request ID or mints a new one.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := newRequestID()
	return ContextWithRequestID(ctx, id), id
}

// WithRequestLogger pairs EnsureRequestID with a logger tagged request_id.
func WithRequestLogger(ctx context.Context, base Logger) (context.Context, Logger) {
	if base == nil {
		base = Noop()
	}
	ctx, id := EnsureRequestID(ctx)
	return ctx, base.With(String("request_id", id))
}

// ContextWithLogger stores l on ctx. A nil l stores Noop.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	if l == nil {
		l = Noop()
	}
	return context.WithValue(ctx, loggerKey, l)
}

// LoggerFromContext returns the logger set by ContextWithLogger, or nil.
func LoggerFromContext(ctx context.Context) Logger {
	if ctx == nil {
		return nil
	}
	l, _ := ctx.Value(loggerKey).(Logger)
	return l
}

// newRequestID is a random UUID without dashes: 32 hex characters.
func newRequestID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}
