//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr detaches the child on Unix-like systems: a new
// session (setsid) cuts the controlling terminal, and since the child
// becomes its own group leader the group can still be signaled as -pid.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
