// Package logging configures the process-wide slog logger.
package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Setup installs a tint handler writing to f as the default logger. Colour is
// only used when f is a terminal.
func Setup(f *os.File, level slog.Level) *slog.Logger {
	noColor := !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())

	logger := slog.New(tint.NewHandler(f, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}))
	slog.SetDefault(logger)
	return logger
}
