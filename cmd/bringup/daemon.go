package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// daemonize re-executes this process into its own session, with --detach
// stripped so the child runs the foreground path, and records the child's
// PID so "bringup down" can find it.
func daemonize(pidFile string, logFile string) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	var newArgs []string
	skipNext := false
	for _, arg := range os.Args[1:] {
		if skipNext {
			skipNext = false
			continue
		}
		switch {
		case arg == "--detach":
			continue
		case arg == "--logfile":
			skipNext = true
			continue
		case strings.HasPrefix(arg, "--logfile="):
			continue
		}
		newArgs = append(newArgs, arg)
	}

	// #nosec G204
	cmd := exec.Command(executable, newArgs...)
	configureDaemonAttrs(cmd)
	cmd.Stdin = nil

	if logFile != "" {
		// #nosec G304
		logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		cmd.Stdout = logF
		cmd.Stderr = logF
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start detached supervisor: %w", err)
	}
	if err := writePidFile(pidFile, cmd.Process.Pid); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}

	fmt.Printf("supervisor detached with PID %d\n", cmd.Process.Pid)
	return nil
}

// writePidFile writes the supervisor PID to a file.
func writePidFile(pidFile string, pid int) error {
	// #nosec G302 G306
	return os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0o644)
}

// readPidFile reads the supervisor PID back.
func readPidFile(pidFile string) (int, error) {
	// #nosec G304
	b, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file %s: %w", pidFile, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("malformed pid file %s: pid %d", pidFile, pid)
	}
	return pid, nil
}

// removePidFile removes the pid file.
func removePidFile(pidFile string) error {
	if pidFile == "" {
		return nil
	}
	return os.Remove(pidFile)
}
