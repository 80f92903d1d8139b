//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// configureDaemonAttrs detaches the re-executed supervisor into a new session.
func configureDaemonAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}

// pidAlive probes a PID with signal 0.
func pidAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// terminatePid asks the supervisor to shut down gracefully.
func terminatePid(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
