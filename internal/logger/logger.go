// Package logger provides the structured logger used across mlcchat. Log
// records go to stderr so they never interleave with chat output on stdout.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Logger is the logging surface components depend on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

type slogLogger struct {
	*slog.Logger
}

func (l slogLogger) With(args ...any) Logger {
	return slogLogger{l.Logger.With(args...)}
}

func (l slogLogger) WithGroup(name string) Logger {
	return slogLogger{l.Logger.WithGroup(name)}
}

// New wraps handler in a Logger.
func New(handler slog.Handler) Logger {
	return slogLogger{slog.New(handler)}
}

// Default logs info and above to stderr, pretty on a terminal and JSON
// otherwise.
func Default() Logger {
	return Open(os.Stderr, FormatAuto, slog.LevelInfo)
}

// JSON logs one JSON object per record, with source locations.
func JSON(w io.Writer, level slog.Level) Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true, Level: level}))
}

// Pretty logs colored single-line records for people reading a terminal.
func Pretty(w io.Writer, level slog.Level) Logger {
	return New(NewPrettyHandler(w, &slog.HandlerOptions{AddSource: true, Level: level}))
}

type loggerKey struct{}

// WithContext returns a copy of ctx carrying log.
func WithContext(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

// FromContext returns the Logger stored in ctx, or Default when there is none.
func FromContext(ctx context.Context) Logger {
	if log, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return log
	}
	return Default()
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel maps a --log-level value to a slog.Level. Unknown names fall
// back to info.
func ParseLevel(s string) slog.Level {
	if level, ok := levels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return level
	}
	return slog.LevelInfo
}

// Format selects the handler used by Open.
type Format string

const (
	FormatAuto   Format = "auto"
	FormatPretty Format = "pretty"
	FormatJSON   Format = "json"
	FormatText   Format = "text"
)

// ParseFormat validates a --log-format value. Empty means auto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatPretty, FormatJSON, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("unknown log format %q (want auto, pretty, json or text)", s)
	}
}

// isTerminal is replaced in tests.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Open builds a Logger for w. FormatAuto picks pretty output on a terminal
// and JSON otherwise.
func Open(w io.Writer, format Format, level slog.Level) Logger {
	if format == FormatAuto || format == "" {
		format = FormatJSON
		if isTerminal(w) {
			format = FormatPretty
		}
	}
	switch format {
	case FormatPretty:
		return Pretty(w, level)
	case FormatText:
		return New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	default:
		return JSON(w, level)
	}
}
