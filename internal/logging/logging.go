// Package logging builds the slog logger shared by primer commands.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/NielsdaWheelz/primer/internal/errors"
	"github.com/NielsdaWheelz/primer/internal/tty"
)

// Formats accepted by --log-format.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Options configures New.
type Options struct {
	// Format is auto, text or json. Auto picks text on a terminal and
	// JSON otherwise.
	Format string

	// Verbose enables debug-level records.
	Verbose bool
}

// New returns a logger writing to w.
// Returns E_USAGE for an unknown format.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	format, err := resolveFormat(w, opts.Format)
	if err != nil {
		return nil, err
	}

	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(w, handlerOpts)
	} else {
		h = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(h), nil
}

func resolveFormat(w io.Writer, format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case "", FormatAuto:
		if f, ok := w.(*os.File); ok && tty.IsTTY(f) {
			return FormatText, nil
		}
		return FormatJSON, nil
	default:
		return "", errors.NewWithDetails(errors.EUsage, "unknown log format "+format+" (want auto, text or json)",
			map[string]string{"log_format": format})
	}
}

// Discard returns a logger that drops every record. Used as the default in
// tests and when a component is built without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
