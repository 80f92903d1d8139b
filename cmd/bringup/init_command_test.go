package main

import (
	"path/filepath"
	"testing"

	"github.com/loykin/bringup/internal/config"
)

func TestRunInitWritesLoadableConfig(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bringup.toml")
	if err := runInit(&InitFlags{Output: out}); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	c, err := config.Load(out)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if len(c.Services) == 0 {
		t.Fatalf("sample config has no services")
	}
	if c.ReclaimPorts {
		t.Fatalf("sample config must keep reclamation off by default")
	}
	if c.OnLaunchFailure != "continue" {
		t.Fatalf("on_launch_failure = %q", c.OnLaunchFailure)
	}
}

func TestRunInitRefusesOverwrite(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bringup.toml")
	if err := runInit(&InitFlags{Output: out}); err != nil {
		t.Fatalf("first runInit: %v", err)
	}
	if err := runInit(&InitFlags{Output: out}); err == nil {
		t.Fatalf("expected overwrite refusal")
	}
	if err := runInit(&InitFlags{Output: out, Force: true}); err != nil {
		t.Fatalf("forced runInit: %v", err)
	}
}
