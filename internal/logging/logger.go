// Package logging builds the structured logger shared by the store, the
// migrator and the seeder.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the handler. It is filled from the "logging" section of
// relstore.yaml.
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// New returns a logger writing to cfg.Output (stderr unless "stdout") in
// text format unless cfg.Format is "json". Every record carries the service
// name and version.
func New(cfg Config, version string) *slog.Logger {
	var output io.Writer = os.Stderr
	if strings.EqualFold(cfg.Output, "stdout") {
		output = os.Stdout
	}
	return newLogger(output, cfg, version)
}

func newLogger(w io.Writer, cfg Config, version string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "relstore"),
		slog.String("version", version),
	})
	return slog.New(handler)
}

// parseLevel accepts debug, info, warn and error; anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default is used before the configuration has been read.
func Default() *slog.Logger {
	return New(Config{Level: "info"}, "dev")
}
