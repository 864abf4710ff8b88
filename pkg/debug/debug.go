// Package debug provides category-based debug logging for codinit.
//
// Two orthogonal controls:
//   - Categories (WHAT to debug): controlled via CODINIT_DEBUG env or config
//   - Levels (HOW MUCH detail): controlled via CODINIT_LOG_LEVEL env or config
//
// Usage:
//
//	debug.Log("sandbox", "run", "env", env.Name, "exit", res.ExitCode)
//	if debug.Enabled("provider") { /* expensive formatting */ }
//
// Categories: provider, engine, sandbox, lint, imports, retrieval, scrape,
// transport, storage, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
//
// Output goes to stderr unless a log file is configured, in which case it
// is written to a size-rotated file.
package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace is below slog.LevelDebug for maximum verbosity.
// At TRACE, full prompts and completions are logged.
const LevelTrace = slog.LevelDebug - 4

// categories holds the set of enabled debug categories.
// Access is read-only after Init(), so no synchronization needed.
var categories map[string]bool

// rawOut receives Raw output. It follows the handler destination.
var rawOut io.Writer = os.Stderr

func init() {
	categories = parseCategories(os.Getenv("CODINIT_DEBUG"))
}

// FileOptions configures the rotated log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Init configures the debug system and the default slog logger. Called at
// startup with values from config; environment overrides config. When
// file is non-nil and has a path, logs are written there with rotation.
// The returned closer releases the log file and must be closed on exit.
func Init(configCategories string, configLevel string, file *FileOptions) io.Closer {
	cats := os.Getenv("CODINIT_DEBUG")
	if cats == "" {
		cats = configCategories
	}
	categories = parseCategories(cats)

	level := os.Getenv("CODINIT_LOG_LEVEL")
	if level == "" {
		level = configLevel
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if file != nil && file.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
			Compress:   file.Compress,
		}
		out = lj
		closer = lj
	}
	rawOut = out

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})))
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message for the given category.
// If the category is not enabled, this is a no-op.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
// Only visible when CODINIT_LOG_LEVEL=TRACE.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE level is active for the given category.
func TraceIsEnabled(category string) bool {
	if !Enabled(category) {
		return false
	}
	return slog.Default().Enabled(context.Background(), LevelTrace)
}

// Raw writes plain text without any slog formatting, for copy-paste-ready
// output such as full prompts or generated code.
// Only emitted when category is enabled AND level is TRACE.
func Raw(category string, text string) {
	if !TraceIsEnabled(category) {
		return
	}
	fmt.Fprintln(rawOut, text)
}

// ParseLevel converts a level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the list of enabled categories.
func Categories() []string {
	var result []string
	for k := range categories {
		result = append(result, k)
	}
	return result
}

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	if s == "" {
		return m
	}
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
