package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/pipeline"
)

// ChangeType represents the type of file change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "+"
	ChangeModified ChangeType = "~"
	ChangeDeleted  ChangeType = "-"
)

// Logger prints the watch session for a human or, with JSON, one event per line.
type Logger struct {
	writer  io.Writer
	isTTY   bool
	verbose bool
	noColor bool
	jsonOut bool
	now     func() time.Time

	statsMu sync.Mutex
	stats   WatchStats
}

// WatchStats tracks statistics for the watch session.
type WatchStats struct {
	BuildCount int
	ErrorCount int
	StartTime  time.Time
}

// LoggerConfig configures the logger.
type LoggerConfig struct {
	Writer  io.Writer
	Verbose bool
	NoColor bool
	JSON    bool
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg LoggerConfig) *Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	isTTY := false
	if f, ok := writer.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	return &Logger{
		writer:  writer,
		isTTY:   isTTY,
		verbose: cfg.Verbose,
		noColor: cfg.NoColor,
		jsonOut: cfg.JSON,
		now:     time.Now,
		stats: WatchStats{
			StartTime: time.Now(),
		},
	}
}

// Ready logs that the initial build finished and events are being watched.
func (l *Logger) Ready(fileCount int, path string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "ready",
			"files": fileCount,
			"path":  path,
		})
		return
	}

	l.printf("vaultbuild: watching %d files in %s\n", fileCount, path)
	l.println("vaultbuild: ready")
	l.println()
}

// FileChanged logs a file change event. Text output only shows it when verbose.
func (l *Logger) FileChanged(path string, change ChangeType) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":  "file_changed",
			"path":   path,
			"change": string(change),
			"time":   l.now().Format(time.RFC3339),
		})
		return
	}

	if l.verbose {
		l.printf("[%s] %s %s\n", l.timestamp(), l.colorize(string(change), change), path)
	}
}

// Building logs that a rebuild is starting.
func (l *Logger) Building(paths []string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "building",
			"paths": paths,
			"time":  l.now().Format(time.RFC3339),
		})
		return
	}

	if len(paths) == 1 {
		l.printf("[%s] rebuilding after change to %s...\n", l.timestamp(), paths[0])
	} else {
		l.printf("[%s] rebuilding after %d changes...\n", l.timestamp(), len(paths))
	}
}

// Built logs a finished build.
func (l *Logger) Built(sum *pipeline.Summary) {
	l.statsMu.Lock()
	l.stats.BuildCount++
	l.statsMu.Unlock()

	c := sum.Counts
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":    "built",
			"run_id":   sum.RunID,
			"added":    c.Added,
			"updated":  c.Updated,
			"cached":   c.Cached,
			"moved":    c.Moved,
			"removed":  c.Removed,
			"failed":   len(sum.Failures),
			"duration": sum.Duration.String(),
			"time":     l.now().Format(time.RFC3339),
		})
		return
	}

	mark := l.colorize("✓", ChangeAdded)
	if len(sum.Failures) > 0 {
		mark = l.colorize("!", ChangeModified)
	}
	l.printf("[%s] %s %d added, %d updated, %d moved, %d removed, %d cached (%s)\n",
		l.timestamp(), mark, c.Added, c.Updated, c.Moved, c.Removed, c.Cached,
		sum.Duration.Round(time.Millisecond))
	for _, f := range sum.Failures {
		l.printf("    %s %s: %s\n", l.colorize("✗", ChangeDeleted), f.Path, f.Error)
	}
}

// Error logs an error.
func (l *Logger) Error(err error) {
	l.statsMu.Lock()
	l.stats.ErrorCount++
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "error",
			"error": err.Error(),
			"time":  l.now().Format(time.RFC3339),
		})
		return
	}

	xmark := l.colorize("✗", ChangeDeleted)
	l.printf("[%s] %s error: %v\n", l.timestamp(), xmark, err)
}

// Shutdown logs the shutdown message with statistics.
func (l *Logger) Shutdown() {
	stats := l.Stats()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":    "shutdown",
			"builds":   stats.BuildCount,
			"errors":   stats.ErrorCount,
			"duration": time.Since(stats.StartTime).String(),
		})
		return
	}

	l.println()
	l.printf("vaultbuild: shutting down (%d builds, %d errors)\n",
		stats.BuildCount, stats.ErrorCount)
}

// Stats returns the current watch statistics.
func (l *Logger) Stats() WatchStats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

func (l *Logger) timestamp() string {
	return l.now().Format("15:04:05")
}

// colorize applies ANSI color codes when writing to a terminal.
func (l *Logger) colorize(s string, change ChangeType) string {
	if l.noColor || !l.isTTY {
		return s
	}

	var color string
	switch change {
	case ChangeAdded:
		color = "\033[32m" // green
	case ChangeModified:
		color = "\033[33m" // yellow
	case ChangeDeleted:
		color = "\033[31m" // red
	default:
		return s
	}
	return color + s + "\033[0m"
}

func (l *Logger) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		l.println(`{"event":"internal_error","error":"json marshal failed"}`)
		return
	}
	l.println(string(data))
}

// printf ignores write errors; the output is informational.
func (l *Logger) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(l.writer, format, args...)
}

func (l *Logger) println(args ...any) {
	_, _ = fmt.Fprintln(l.writer, args...)
}
