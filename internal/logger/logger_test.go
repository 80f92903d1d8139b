package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// helper to close non-nil closers and ignore errors
func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func TestWriters_WithDirOnly(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}
	outW, errW, err := cfg.Writers("demo")
	if err != nil {
		t.Fatalf("Writers error: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers non-nil when Dir is set")
	}
	_, _ = outW.Write([]byte("hello-out\n"))
	_, _ = errW.Write([]byte("hello-err\n"))
	closeIf(outW)
	closeIf(errW)
	if _, err := os.Stat(filepath.Join(dir, "demo.stdout.log")); err != nil {
		t.Fatalf("stdout log not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "demo.stderr.log")); err != nil {
		t.Fatalf("stderr log not created: %v", err)
	}
}

func TestWriters_WithExplicitPaths(t *testing.T) {
	dir := t.TempDir()
	sp := filepath.Join(dir, "s.out.log")
	ep := filepath.Join(dir, "s.err.log")
	cfg := Config{StdoutPath: sp, StderrPath: ep}
	outW, errW, err := cfg.Writers("ignored-name")
	if err != nil {
		t.Fatalf("Writers error: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers non-nil when explicit paths provided")
	}
	_, _ = outW.Write([]byte("x"))
	_, _ = errW.Write([]byte("y"))
	closeIf(outW)
	closeIf(errW)
	if _, err := os.Stat(sp); err != nil {
		t.Fatalf("stdout explicit path not created: %v", err)
	}
	if _, err := os.Stat(ep); err != nil {
		t.Fatalf("stderr explicit path not created: %v", err)
	}
}

func TestWriters_Defaults(t *testing.T) {
	cfg := Config{}
	outW, errW, _ := cfg.Writers("n")
	if outW != nil || errW != nil {
		t.Fatalf("expected nil writers when no Dir/stdout/stderr set")
	}
	cfg = Config{StdoutPath: "x", StderrPath: "y"}
	outW, errW, _ = cfg.Writers("n")
	ol, ok1 := outW.(*lj.Logger)
	el, ok2 := errW.(*lj.Logger)
	if !ok1 || !ok2 {
		t.Fatalf("writers are not lumberjack.Logger")
	}
	if ol.MaxSize != 10 || ol.MaxBackups != 3 || ol.MaxAge != 7 {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", ol.MaxSize, ol.MaxBackups, ol.MaxAge)
	}
	if el.MaxSize != 10 || el.MaxBackups != 3 || el.MaxAge != 7 {
		t.Fatalf("unexpected defaults (stderr): size=%d backups=%d age=%d", el.MaxSize, el.MaxBackups, el.MaxAge)
	}
	closeIf(outW)
	closeIf(errW)
}

func TestWriters_Overrides(t *testing.T) {
	cfg := Config{StdoutPath: "x2", StderrPath: "y2", MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true}
	outW, errW, _ := cfg.Writers("n")
	ol := outW.(*lj.Logger)
	el := errW.(*lj.Logger)
	if ol.MaxSize != 1 || ol.MaxBackups != 9 || ol.MaxAge != 11 || !ol.Compress {
		t.Fatalf("unexpected overrides: size=%d backups=%d age=%d compress=%t", ol.MaxSize, ol.MaxBackups, ol.MaxAge, ol.Compress)
	}
	if el.MaxSize != 1 || el.MaxBackups != 9 || el.MaxAge != 11 || !el.Compress {
		t.Fatalf("unexpected overrides (stderr): size=%d backups=%d age=%d compress=%t", el.MaxSize, el.MaxBackups, el.MaxAge, el.Compress)
	}
	closeIf(outW)
	closeIf(errW)
}

func TestWriters_OnlyOneStream(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{StdoutPath: filepath.Join(dir, "only-stdout.log")}
	outW, errW, _ := cfg.Writers("n")
	if outW == nil || errW != nil {
		t.Fatalf("expected stdout writer only")
	}
	_, _ = outW.Write([]byte("a"))
	closeIf(outW)
	if _, err := os.Stat(filepath.Join(dir, "only-stdout.log")); err != nil {
		t.Fatalf("stdout not created: %v", err)
	}
	cfg = Config{StderrPath: filepath.Join(dir, "only-stderr.log")}
	outW, errW, _ = cfg.Writers("n")
	if outW != nil || errW == nil {
		t.Fatalf("expected stderr writer only")
	}
	_, _ = errW.Write([]byte("b"))
	closeIf(errW)
	if _, err := os.Stat(filepath.Join(dir, "only-stderr.log")); err != nil {
		t.Fatalf("stderr not created: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"Info":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewSlogger_Formats(t *testing.T) {
	var buf bytes.Buffer

	c := SlogConfig{Level: "debug", Format: FormatText}
	c.newSlogger(&buf).Debug("plain message")
	if !strings.Contains(buf.String(), "plain message") {
		t.Fatalf("text output missing message: %q", buf.String())
	}
	if strings.Contains(buf.String(), "\033[") {
		t.Fatalf("uncolored output contains escape codes: %q", buf.String())
	}

	buf.Reset()
	c = SlogConfig{Format: FormatJSON}
	c.newSlogger(&buf).Info("json message")
	if !strings.Contains(buf.String(), `"msg":"json message"`) {
		t.Fatalf("json output missing message: %q", buf.String())
	}

	buf.Reset()
	c = SlogConfig{Format: FormatText, Color: true}
	c.newSlogger(&buf).Warn("colored")
	if !strings.Contains(buf.String(), "\033[33m") {
		t.Fatalf("colored output missing warn escape code: %q", buf.String())
	}
}

func TestNewSlogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	c := SlogConfig{Level: "error", Format: FormatText}
	l := c.newSlogger(&buf)
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info not filtered at error level: %q", buf.String())
	}
	l.Error("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("error record missing: %q", buf.String())
	}
}
