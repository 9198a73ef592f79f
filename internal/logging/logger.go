// Package logging builds the zerolog loggers used across CellGen.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Event names written in the "event" field.
const (
	EventDispatch = "dispatch"
	EventFormula  = "formula"
	EventFill     = "fill"
	EventRequest  = "request"
	EventSettings = "credentials"
)

// New returns a JSON-lines logger appending to path. An empty path yields a
// disabled logger. If the file cannot be opened the logger writes to stderr
// instead.
func New(path, level string) zerolog.Logger {
	if strings.TrimSpace(path) == "" {
		return zerolog.Nop()
	}
	var w io.Writer
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err == nil {
			w = f
		} else {
			fmt.Fprintf(os.Stderr, "cellgen: cannot open log file %s: %v\n", path, err)
		}
	}
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// Console returns a human-readable logger for long-running modes.
func Console(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(ParseLevel(level)).
		With().Timestamp().Logger()
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// Elapsed renders a duration in milliseconds for log fields.
func Elapsed(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// Truncate shortens raw provider payloads before they reach a log line. The
// result is at most max bytes and never splits a UTF-8 sequence.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:runeStart(s, max)]
	}
	return s[:runeStart(s, max-3)] + "..."
}

// runeStart moves i back to the start of the rune it falls in.
func runeStart(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

type requestIDKey struct{}

// WithRequestID attaches id to ctx so log lines further down the call share it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
