// Package logger provides opinionated logging for the particle SDK and CLI.
// Every component takes a *slog.Logger; this package builds one with a
// charmbracelet/log handler for terminals, a JSON handler for services, or a
// plain text handler otherwise.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// config is the set of knobs an Option can turn.
type config struct {
	level   slog.Level
	pretty  bool
	json    bool
	source  bool
	writers []io.Writer
}

// New creates a *slog.Logger. Defaults to an Info level text logger on
// os.Stdout.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level:   slog.LevelInfo,
		writers: []io.Writer{os.Stdout},
	}
	for _, opt := range opts {
		opt(c)
	}

	var w io.Writer
	switch len(c.writers) {
	case 0:
		w = os.Stdout
	case 1:
		w = c.writers[0]
	default:
		w = io.MultiWriter(c.writers...)
	}

	switch {
	case c.pretty:
		h := charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(c.level),
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
			ReportCaller:    c.source,
		})
		return slog.New(h)

	case c.json:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     c.level,
			AddSource: c.source,
		}))

	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     c.level,
			AddSource: c.source,
		}))
	}
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(nopHandler{})
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }

// OrNop returns l, or a Nop logger when l is nil.
func OrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Nop()
	}
	return l
}
