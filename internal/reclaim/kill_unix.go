//go:build !windows

package reclaim

import "syscall"

// forceKill sends SIGKILL to a single process (not its group).
func forceKill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}

// processExists checks whether a PID is present.
func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
