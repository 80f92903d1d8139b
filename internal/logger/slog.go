package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// SlogConfig controls the supervisor's own structured logging, as opposed
// to the file logs captured for managed services.
type SlogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"`
	Color  bool   `toml:"color" mapstructure:"color"`
	Source bool   `toml:"source" mapstructure:"source"`
}

// NewSlogger builds a slog.Logger writing to stderr according to the config.
func (c SlogConfig) NewSlogger() *slog.Logger {
	return c.newSlogger(os.Stderr)
}

func (c SlogConfig) newSlogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(c.Level),
		AddSource: c.Source,
	}
	var h slog.Handler
	switch {
	case c.Format == FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	case c.Color:
		h = NewColorTextHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
