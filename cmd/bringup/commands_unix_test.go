//go:build !windows

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"
)

func TestRunUpStopsOnSignal(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "bringup.pid")
	path := writeConfig(t, `
settle_delay = "10ms"
grace_timeout = "5s"
pid_file = "`+pidFile+`"

[log]
dir = "`+filepath.Join(dir, "logs")+`"

[[services]]
name = "web"
command = "sleep 30"
`)

	done := make(chan error, 1)
	go func() { done <- runUp(&GlobalFlags{ConfigPath: path}, &UpFlags{}) }()

	// The supervisor writes its own pid before launching anything.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(pidFile); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pid file never appeared")
		}
		time.Sleep(20 * time.Millisecond)
	}

	// Let the launch happen, then ask ourselves to shut down.
	time.Sleep(300 * time.Millisecond)
	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("self-signal: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runUp: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatalf("runUp did not return after SIGTERM")
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Fatalf("pid file not cleaned up")
	}
}

func TestRunDownStalePidFile(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "bringup.pid")
	path := writeConfig(t, `
pid_file = "`+pidFile+`"

[[services]]
name = "web"
command = "sleep 1"
`)

	// A short-lived child gives us a certainly-dead PID.
	pid := spawnDead(t)
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		t.Fatalf("write pid file: %v", err)
	}

	if err := runDown(&GlobalFlags{ConfigPath: path}, &DownFlags{Wait: time.Second}); err != nil {
		t.Fatalf("runDown: %v", err)
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Fatalf("stale pid file not removed")
	}
}

func spawnDead(t *testing.T) int {
	t.Helper()
	attr := &os.ProcAttr{Files: []*os.File{nil, nil, nil}}
	p, err := os.StartProcess("/bin/true", []string{"true"}, attr)
	if err != nil {
		p, err = os.StartProcess("/usr/bin/true", []string{"true"}, attr)
	}
	if err != nil {
		t.Skipf("no true binary: %v", err)
	}
	_, _ = p.Wait()
	return p.Pid
}
