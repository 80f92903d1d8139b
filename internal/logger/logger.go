package logger

import (
	"fmt"
	"io"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults, lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes the log file destinations for one managed service.
// If StdoutPath/StderrPath are empty and Dir is set, files are
// Dir/<name>.stdout.log and Dir/<name>.stderr.log. With neither set the
// service's output is discarded.
type Config struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	StdoutPath string `toml:"stdout" mapstructure:"stdout"`
	StderrPath string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// StdoutFile reports the stdout log path derived for the named service,
// or "" when the stream is discarded.
func (c Config) StdoutFile(name string) string {
	if c.StdoutPath != "" {
		return c.StdoutPath
	}
	if c.Dir != "" {
		return filepath.Join(c.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	return ""
}

// StderrFile reports the stderr log path derived for the named service,
// or "" when the stream is discarded.
func (c Config) StderrFile(name string) string {
	if c.StderrPath != "" {
		return c.StderrPath
	}
	if c.Dir != "" {
		return filepath.Join(c.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	return ""
}

// Writers returns rotating stdout/stderr writers for the named service.
// Either writer may be nil when no path could be derived for its stream.
func (c Config) Writers(name string) (io.WriteCloser, io.WriteCloser, error) {
	var outW, errW io.WriteCloser
	if p := c.StdoutFile(name); p != "" {
		outW = c.newRotating(p)
	}
	if p := c.StderrFile(name); p != "" {
		errW = c.newRotating(p)
	}
	return outW, errW, nil
}

func (c Config) newRotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
