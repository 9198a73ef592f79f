package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

func TestLogger_WriteJSON(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")
	logger := New(logFile, "info")

	logger.Info().Str("event", EventDispatch).Str("provider", "gemini").Msg("ok")
	logger.Warn().Str("event", EventFormula).Msg("failed")
	logger.Debug().Msg("filtered out at info level")

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), content)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("failed to unmarshal log entry: %v", err)
	}
	if entry["event"] != EventDispatch {
		t.Errorf("expected event 'dispatch', got %v", entry["event"])
	}
	if entry["provider"] != "gemini" {
		t.Errorf("expected provider field, got %v", entry["provider"])
	}
}

func TestLogger_NoPath(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("logging with an empty path panicked: %v", r)
		}
	}()
	logger := New("", "debug")
	logger.Info().Msg("dropped")
	if logger.GetLevel() != zerolog.Disabled {
		t.Errorf("expected disabled logger, got level %v", logger.GetLevel())
	}
}

func TestLogger_FileError(t *testing.T) {
	// A directory cannot be opened for appending.
	logger := New(t.TempDir(), "info")
	logger.Info().Msg("falls back to stderr")
}

func TestLogger_Concurrency(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "concurrent.log")
	logger := New(logFile, "info")

	var wg sync.WaitGroup
	numRoutines := 50
	for i := 0; i < numRoutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info().Str("event", EventFill).Msg("row")
		}()
	}
	wg.Wait()

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != numRoutines {
		t.Errorf("expected %d log lines, got %d", numRoutines, len(lines))
	}
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := Console(&buf, "warn")
	logger.Info().Msg("hidden")
	logger.Warn().Str("event", EventRequest).Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("expected warn line, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestID(t *testing.T) {
	if got := RequestID(context.Background()); got != "" {
		t.Errorf("expected no id, got %q", got)
	}
	ctx := WithRequestID(context.Background(), "abc")
	if got := RequestID(ctx); got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("unexpected %q", got)
	}
	if got := Truncate("0123456789abc", 10); got != "0123456..." {
		t.Errorf("unexpected %q", got)
	}
	if got := Truncate("abcdef", 2); got != "ab" {
		t.Errorf("unexpected %q", got)
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	// "héllo wörld": é and ö are two bytes each.
	s := "héllo wörld"
	for max := 1; max < len(s); max++ {
		got := Truncate(s, max)
		if len(got) > max {
			t.Errorf("Truncate(%d) = %q is longer than %d bytes", max, got, max)
		}
		if !utf8.ValidString(got) {
			t.Errorf("Truncate(%d) = %q is not valid UTF-8", max, got)
		}
	}
	if got := Truncate("日本語テキスト", 8); got != "日..." {
		t.Errorf("unexpected %q", got)
	}
}
