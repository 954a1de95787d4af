// Package logging builds the slog handlers uwflow logs through.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Options selects verbosity and output format.
type Options struct {
	Level   string // debug, info, warn, error
	Format  string // text or json
	Quiet   bool
	Verbose bool
}

// SetupHandlerText configures a text slog handler with the provided writer and log level.
func SetupHandlerText(logLevel string, writer io.Writer) slog.Handler {
	if writer == nil {
		writer = os.Stderr
	}

	reportTimestamp := false
	lvl := log.InfoLevel
	switch strings.ToLower(logLevel) {
	case "debug":
		reportTimestamp = true
		lvl = log.DebugLevel
	case "warn", "warning":
		lvl = log.WarnLevel
	case "error":
		lvl = log.ErrorLevel
	}

	return log.NewWithOptions(writer, log.Options{
		ReportTimestamp: reportTimestamp,
		TimeFormat:      "2006-01-02T15:04:05",
		Level:           lvl,
	})
}

// SetupHandlerJSON configures a JSON slog handler with the provided writer and log level.
func SetupHandlerJSON(logLevel string, writer io.Writer) slog.Handler {
	if writer == nil {
		writer = os.Stderr
	}

	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level})
}

// New returns a logger for opts. Quiet discards everything; Verbose forces
// the debug level.
func New(opts Options, writer io.Writer) *slog.Logger {
	if opts.Quiet {
		return Discard()
	}
	level := opts.Level
	if opts.Verbose {
		level = "debug"
	}
	if strings.ToLower(opts.Format) == "json" {
		return slog.New(SetupHandlerJSON(level, writer))
	}
	return slog.New(SetupHandlerText(level, writer))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
