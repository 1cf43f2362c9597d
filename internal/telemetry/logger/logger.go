package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the application logger interface.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger

	// Slog returns the underlying slog.Logger for components that take one.
	Slog() *slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level     string    // debug, info, warn or error
	Format    string    // json or text
	Output    io.Writer // os.Stderr when nil
	AddSource bool
}

// DefaultConfig returns JSON logging at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: os.Stderr}
}

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// level is shared by every logger built with New so that a reload of
// log.level takes effect everywhere at once.
var level slog.LevelVar

// ValidLevel reports whether name is a known log level.
func ValidLevel(name string) bool {
	_, ok := levelNames[strings.ToLower(name)]
	return ok
}

// SetLevel changes the level of all loggers. Unknown names mean info.
func SetLevel(name string) {
	l, ok := levelNames[strings.ToLower(name)]
	if !ok {
		l = slog.LevelInfo
	}
	level.Set(l)
}

// GetLevel returns the current level name.
func GetLevel() string {
	return strings.ToLower(level.Level().String())
}

// New creates a logger and sets the shared level from cfg.
func New(cfg Config) (Logger, error) {
	SetLevel(cfg.Level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     &level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a)
		},
	}

	var h slog.Handler
	if f := strings.ToLower(cfg.Format); f == "text" || f == "console" {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	return &appLogger{sl: slog.New(contextHandler{h}), ctx: context.Background()}, nil
}

type appLogger struct {
	sl  *slog.Logger
	ctx context.Context
}

func (l *appLogger) Debug(msg string, args ...any) { l.sl.Log(l.ctx, slog.LevelDebug, msg, args...) }
func (l *appLogger) Info(msg string, args ...any)  { l.sl.Log(l.ctx, slog.LevelInfo, msg, args...) }
func (l *appLogger) Warn(msg string, args ...any)  { l.sl.Log(l.ctx, slog.LevelWarn, msg, args...) }
func (l *appLogger) Error(msg string, args ...any) { l.sl.Log(l.ctx, slog.LevelError, msg, args...) }

func (l *appLogger) With(args ...any) Logger {
	return &appLogger{sl: l.sl.With(args...), ctx: l.ctx}
}

func (l *appLogger) WithContext(ctx context.Context) Logger {
	return &appLogger{sl: l.sl, ctx: ctx}
}

func (l *appLogger) Slog() *slog.Logger {
	return l.sl
}

var std atomic.Pointer[appLogger]

func init() {
	l, _ := New(DefaultConfig())
	std.Store(l.(*appLogger))
}

// SetDefault replaces the package logger and the slog default.
// Loggers not built by New are ignored.
func SetDefault(l Logger) {
	al, ok := l.(*appLogger)
	if !ok {
		return
	}
	std.Store(al)
	slog.SetDefault(al.sl)
}

// Default returns the package logger.
func Default() Logger {
	return std.Load()
}

// Package-level helpers log through Default.

func Debug(msg string, args ...any) { std.Load().Debug(msg, args...) }
func Info(msg string, args ...any)  { std.Load().Info(msg, args...) }
func Warn(msg string, args ...any)  { std.Load().Warn(msg, args...) }
func Error(msg string, args ...any) { std.Load().Error(msg, args...) }
