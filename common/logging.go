package common

import (
	"log/slog"
	"os"
)

// LoggingOpts controls how SetupLogger builds the process logger.
type LoggingOpts struct {
	// Debug enables debug level output.
	Debug bool

	// JSON switches from text to JSON output.
	JSON bool

	// Service is attached to every record as the "service" attribute.
	Service string

	// Version is attached to every record as the "version" attribute.
	Version string
}

// SetupLogger creates the structured logger used by all components of a process.
func SetupLogger(opts *LoggingOpts) (log *slog.Logger) {
	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	if opts.JSON {
		log = slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts))
	} else {
		log = slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
	}

	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}
	return log
}
