package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	logger    atomic.Pointer[slog.Logger]
	level     = new(slog.LevelVar)
	verbosity atomic.Int32
)

func init() {
	install(VerbosityWarn, "text", os.Stderr)
}

// install swaps the global logger for one writing format to w.
func install(v int, format string, w io.Writer) *slog.Logger {
	SetVerbosity(v)
	l := slog.New(NewHandler(HandlerOptions{
		Level:  level,
		Format: format,
		Output: w,
	}))
	logger.Store(l)
	return l
}

// Init installs the process logger from the -v and --log-format flags and
// makes it the slog default.
func Init(v int, format string) {
	slog.SetDefault(install(v, format, os.Stderr))
}

// SetVerbosity adjusts -v without replacing the handler.
func SetVerbosity(v int) {
	verbosity.Store(int32(v))
	level.Set(VerbosityToLevel(v))
}

// Verbosity returns the active -v value.
func Verbosity() int {
	return int(verbosity.Load())
}

// Warn logs on the global logger.
func Warn(msg string, args ...any) {
	logger.Load().Warn(msg, args...)
}

// Trace logs below debug; it shows at -v=4.
func Trace(msg string, args ...any) {
	logger.Load().Log(context.Background(), LevelTrace, msg, args...)
}

// V gates a logger on -v, so callers can write log.V(4).Debug(...) for
// output that would flood a normal debug run.
func V(v int) *slog.Logger {
	if Verbosity() < v {
		return Discard()
	}
	return logger.Load()
}

// Component tags the global logger with component=name.
func Component(name string) *slog.Logger {
	return logger.Load().With("component", name)
}

// OrComponent is for packages that accept an optional logger: l wins, nil
// falls back to Component(name).
func OrComponent(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		return Component(name)
	}
	return l
}
