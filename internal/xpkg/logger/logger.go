package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a thin value wrapper around slog that keeps the
// action/details shape used across all services.
type Logger struct {
	l *slog.Logger
}

// New builds a JSON logger writing to stdout at the given level
// (DEBUG, INFO, WARN, ERROR).
func New(level string) (Logger, error) {
	return NewWithWriter(level, os.Stdout)
}

func NewWithWriter(level string, w io.Writer) (Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return Logger{}, err
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			return a
		},
	})

	hostname, _ := os.Hostname()
	return Logger{l: slog.New(h).With("hostname", hostname)}, nil
}

// Nop discards everything. Used by tests and tools.
func Nop() Logger {
	return Logger{l: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", level)
	}
}

func (l Logger) Action(action string) Logger {
	return Logger{l: l.logger().With("action", action)}
}

func (l Logger) With(args ...any) Logger {
	return Logger{l: l.logger().With(args...)}
}

func (l Logger) WithGroup(name string) Logger {
	return Logger{l: l.logger().WithGroup(name)}
}

func (l Logger) Debug(msg string, args ...any) {
	l.logger().Debug(msg, args...)
}

func (l Logger) Info(msg string, args ...any) {
	l.logger().Info(msg, args...)
}

func (l Logger) Warn(msg string, args ...any) {
	l.logger().Warn(msg, args...)
}

// Error logs msg with err attached under the "error" key.
func (l Logger) Error(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	l.logger().Error(msg, args...)
}

// zero Logger{} still works, it falls back to slog's default.
func (l Logger) logger() *slog.Logger {
	if l.l == nil {
		return slog.Default()
	}
	return l.l
}
