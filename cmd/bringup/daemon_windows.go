//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

const (
	createNewProcessGroup = 0x00000200
	detachedProcess       = 0x00000008

	processTerminate        = 0x0001
	processQueryInformation = 0x0400
)

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

// configureDaemonAttrs detaches the re-executed supervisor from the console.
func configureDaemonAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: createNewProcessGroup | detachedProcess,
	}
}

// pidAlive probes a PID via OpenProcess.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ret, _, _ := procOpenProcess.Call(uintptr(processQueryInformation), uintptr(0), uintptr(pid))
	if ret == 0 {
		return false
	}
	_, _, _ = procCloseHandle.Call(ret)
	return true
}

// terminatePid stops the supervisor. Windows has no graceful TERM for a
// detached process, so this is TerminateProcess.
func terminatePid(pid int) error {
	ret, _, err := procOpenProcess.Call(uintptr(processTerminate), uintptr(0), uintptr(pid))
	if ret == 0 {
		return err
	}
	defer func() { _, _, _ = procCloseHandle.Call(ret) }()
	r2, _, err2 := procTerminateProcess.Call(ret, uintptr(1))
	if r2 == 0 {
		return err2
	}
	return nil
}
