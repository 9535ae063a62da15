package log

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// HandlerOptions selects the output and encoding of a handler.
type HandlerOptions struct {
	Level     slog.Leveler
	Format    string // "json"; anything else is text
	Output    io.Writer
	AddSource bool
}

// NewHandler builds a slog handler that prints TRACE by name.
// A nil Output means stderr; stdout is reserved for command output.
func NewHandler(opts HandlerOptions) slog.Handler {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	ho := &slog.HandlerOptions{
		Level:       opts.Level,
		AddSource:   opts.AddSource,
		ReplaceAttr: renameTrace,
	}
	if opts.Format == "json" {
		return slog.NewJSONHandler(out, ho)
	}
	return slog.NewTextHandler(out, ho)
}

func renameTrace(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if l, ok := a.Value.Any().(slog.Level); ok {
		a.Value = slog.StringValue(LevelName(l))
	}
	return a
}

// Discard returns a logger with every level disabled.
func Discard() *slog.Logger {
	return slog.New(nopHandler{})
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }
