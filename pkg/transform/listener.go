package transform

import (
	"context"
	"log/slog"
)

// Listener receives diagnostics raised while a program runs.
// Error returns the error to abort with, or nil to continue.
type Listener interface {
	Warning(err error)
	Error(err error) error
}

type quiet struct{}

func (quiet) Warning(error) {}
func (quiet) Error(err error) error { return err }

// Quiet ignores warnings and aborts on errors.
var Quiet Listener = quiet{}

type logListener struct {
	logger *slog.Logger
}

// LogListener logs warnings at warn level and aborts on errors.
func LogListener(logger *slog.Logger) Listener {
	if logger == nil {
		return Quiet
	}
	return logListener{logger: logger}
}

func (l logListener) Warning(err error) {
	l.logger.LogAttrs(context.Background(), slog.LevelWarn, "transform warning", slog.String("error", err.Error()))
}

func (l logListener) Error(err error) error {
	l.logger.LogAttrs(context.Background(), slog.LevelError, "transform error", slog.String("error", err.Error()))
	return err
}

// ListenerOrQuiet returns l, or Quiet when l is nil.
func ListenerOrQuiet(l Listener) Listener {
	if l == nil {
		return Quiet
	}
	return l
}
