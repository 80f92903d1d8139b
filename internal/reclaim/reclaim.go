package reclaim

import (
	"fmt"
	"os"
	"sort"
	"time"

	gnet "github.com/shirou/gopsutil/v4/net"
)

// InspectionError means the occupants of a port could not be enumerated,
// either because the connection table was unreadable or because a listener's
// PID could not be resolved (typically missing privilege).
type InspectionError struct {
	Port int
	Err  error
}

func (e *InspectionError) Error() string {
	return fmt.Sprintf("inspect port %d: %v", e.Port, e.Err)
}

func (e *InspectionError) Unwrap() error { return e.Err }

// ReclaimError means a port occupant was found but could not be terminated.
type ReclaimError struct {
	Port int
	PID  int
	Err  error
}

func (e *ReclaimError) Error() string {
	return fmt.Sprintf("reclaim port %d: kill pid %d: %v", e.Port, e.PID, e.Err)
}

func (e *ReclaimError) Unwrap() error { return e.Err }

// Binding is the observed occupancy of one port. Transient, computed on
// demand, never persisted.
type Binding struct {
	Port int   `json:"port"`
	PIDs []int `json:"pids"`
}

// Occupied reports whether any listener was observed.
func (b Binding) Occupied() bool { return len(b.PIDs) > 0 }

// Result reports one reclamation. Cleared is true when every observed
// occupant is gone (or none existed); Killed lists the PIDs terminated by
// this call.
type Result struct {
	Port    int   `json:"port"`
	Cleared bool  `json:"cleared"`
	Killed  []int `json:"killed"`
}

// Inspect returns the PIDs listening on the given TCP port.
func Inspect(port int) (Binding, error) {
	conns, err := gnet.Connections("tcp")
	if err != nil {
		return Binding{Port: port}, &InspectionError{Port: port, Err: err}
	}
	seen := make(map[int]struct{})
	unresolved := 0
	for _, c := range conns {
		if c.Status != "LISTEN" || int(c.Laddr.Port) != port {
			continue
		}
		if c.Pid <= 0 {
			unresolved++
			continue
		}
		seen[int(c.Pid)] = struct{}{}
	}
	if unresolved > 0 {
		return Binding{Port: port}, &InspectionError{
			Port: port,
			Err:  fmt.Errorf("%d listener(s) with unresolved pid", unresolved),
		}
	}
	pids := make([]int, 0, len(seen))
	for pid := range seen {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return Binding{Port: port, PIDs: pids}, nil
}

// Reclaim force-terminates every process listening on the given TCP port
// and waits briefly for each to disappear so the port can be rebound
// immediately. The calling process itself is never a kill target; if it
// occupies the port the result reports Cleared=false.
//
// This may take down unrelated processes that happen to hold the port.
// Callers opt in per port.
func Reclaim(port int) (Result, error) {
	b, err := Inspect(port)
	if err != nil {
		return Result{Port: port}, err
	}
	if !b.Occupied() {
		return Result{Port: port, Cleared: true, Killed: []int{}}, nil
	}
	self := os.Getpid()
	skippedSelf := false
	killed := make([]int, 0, len(b.PIDs))
	for _, pid := range b.PIDs {
		if pid == self {
			skippedSelf = true
			continue
		}
		if err := forceKill(pid); err != nil {
			if !processExists(pid) {
				// exited between inspect and kill
				continue
			}
			return Result{Port: port, Killed: killed}, &ReclaimError{Port: port, PID: pid, Err: err}
		}
		waitGone(pid, 2*time.Second)
		killed = append(killed, pid)
	}
	return Result{Port: port, Cleared: !skippedSelf, Killed: killed}, nil
}

// waitGone polls until the PID no longer exists or the timeout elapses.
func waitGone(pid int, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processExists(pid) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}
