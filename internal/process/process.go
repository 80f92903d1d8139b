package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// startTimeTolerance is the allowed skew between the start time recorded at
// launch and the one the OS reports for the same PID. Beyond it the PID is
// assumed reused and liveness becomes unknown.
const startTimeTolerance = 2 // seconds

// LaunchError means the child process could not be created.
type LaunchError struct {
	Name string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Name, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Process is the runtime handle for one launched service. All fields are
// guarded by mu; external access goes through accessor methods.
type Process struct {
	mu        sync.Mutex
	spec      Spec
	cmd       *exec.Cmd
	status    Status
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	waitDone  chan struct{} // closed by the reaper once cmd.Wait returns
	osStart   int64         // OS-reported start time captured at launch
}

// Start launches the service described by spec, detached from the calling
// session, with stdout/stderr captured per spec.Log. It returns as soon as
// the OS has created the process; readiness is the caller's concern. The
// returned Process carries a PID valid at the moment of return.
func Start(spec Spec, mergedEnv []string) (*Process, error) {
	if err := spec.Validate(); err != nil {
		return nil, &LaunchError{Name: spec.Name, Err: err}
	}
	p := &Process{spec: spec, waitDone: make(chan struct{})}
	cmd := p.configureCmd(mergedEnv)
	if err := cmd.Start(); err != nil {
		p.closeWriters()
		return nil, &LaunchError{Name: spec.Name, Err: err}
	}
	p.setStarted(cmd)
	go p.reap(cmd)
	return p, nil
}

// configureCmd builds the *exec.Cmd: workdir, environment, detach
// attributes, and log destinations (null device when none configured).
func (p *Process) configureCmd(mergedEnv []string) *exec.Cmd {
	cmd := p.spec.BuildCommand()
	if p.spec.WorkDir != "" {
		cmd.Dir = p.spec.WorkDir
	}
	if len(mergedEnv) > 0 {
		cmd.Env = mergedEnv
	}
	configureSysProcAttr(cmd)
	if p.spec.Log.Dir != "" || p.spec.Log.StdoutPath != "" || p.spec.Log.StderrPath != "" {
		if p.spec.Log.Dir != "" {
			_ = os.MkdirAll(p.spec.Log.Dir, 0o750)
		}
		outW, errW, _ := p.spec.Log.Writers(p.spec.Name)
		p.outCloser, p.errCloser = outW, errW
		if outW != nil {
			cmd.Stdout = outW
		} else {
			cmd.Stdout, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
		}
		if errW != nil {
			cmd.Stderr = errW
		} else {
			cmd.Stderr, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
		}
	} else {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		cmd.Stdout = null
		cmd.Stderr = null
	}
	return cmd
}

func (p *Process) setStarted(cmd *exec.Cmd) {
	pid := cmd.Process.Pid
	p.mu.Lock()
	p.cmd = cmd
	p.status = Status{
		Name:      p.spec.Name,
		Running:   true,
		State:     StateRunning,
		PID:       pid,
		Port:      p.spec.Port,
		StartedAt: time.Now(),
	}
	p.osStart = getProcStartUnix(pid)
	p.mu.Unlock()
}

// reap waits for the child so the OS can collect it, records the exit, and
// releases the log writers. Runs once per Process, on its own goroutine.
func (p *Process) reap(cmd *exec.Cmd) {
	err := cmd.Wait()
	p.mu.Lock()
	p.status.Running = false
	p.status.State = StateExited
	p.status.StoppedAt = time.Now()
	p.status.ExitErr = err
	p.mu.Unlock()
	p.closeWriters()
	close(p.waitDone)
}

func (p *Process) closeWriters() {
	p.mu.Lock()
	out, errc := p.outCloser, p.errCloser
	p.outCloser, p.errCloser = nil, nil
	p.mu.Unlock()
	if out != nil {
		_ = out.Close()
	}
	if errc != nil {
		_ = errc.Close()
	}
}

// Name returns the service name from the spec.
func (p *Process) Name() string { return p.spec.Name }

// PID returns the child's process identifier.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.PID
}

// Spec returns a copy of the launch spec.
func (p *Process) Spec() Spec {
	return p.spec
}

// Done returns the channel closed once the child has been reaped.
func (p *Process) Done() <-chan struct{} { return p.waitDone }

// ExitErr returns the recorded exit error, nil while still running.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.ExitErr
}

// Snapshot returns the current status. For a process not yet reaped the
// liveness state is probed: a vanished or zombie PID reports exited, a PID
// whose OS start time no longer matches the recorded one reports unknown.
func (p *Process) Snapshot() Status {
	p.mu.Lock()
	s := p.status
	osStart := p.osStart
	p.mu.Unlock()
	if s.Running {
		s.State = livenessState(s.PID, osStart)
		if s.State == StateExited {
			s.Running = false
		}
	}
	if s.ExitErr != nil {
		s.Error = s.ExitErr.Error()
	}
	return s
}

// Alive reports whether the child is confirmed running right now.
func (p *Process) Alive() bool {
	return p.Snapshot().State == StateRunning
}

func livenessState(pid int, recorded int64) string {
	if pid <= 0 || !processAlive(pid) {
		return StateExited
	}
	if recorded > 0 {
		if now := getProcStartUnix(pid); now > 0 && absDiff(now, recorded) > startTimeTolerance {
			return StateUnknown
		}
	}
	return StateRunning
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

// SignalStop asks the child's process group to terminate gracefully. Errors
// from an already-gone process are swallowed; the race with an external stop
// is benign.
func (p *Process) SignalStop() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		if !processAlive(pid) {
			return nil
		}
		return err
	}
	return nil
}

// WaitExit blocks until the child has been reaped or d elapses. It returns
// true when the exit was confirmed.
func (p *Process) WaitExit(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-p.waitDone:
			return true
		default:
			return false
		}
	}
	select {
	case <-p.waitDone:
		return true
	case <-time.After(d):
		return false
	}
}
