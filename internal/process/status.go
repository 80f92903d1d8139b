package process

import "time"

// Liveness states as reported in Status.State.
const (
	StateRunning = "running"
	StateExited  = "exited"
	StateUnknown = "unknown"
)

// Status is a point-in-time snapshot of a managed process.
type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	State     string    `json:"state"`
	PID       int       `json:"pid"`
	Port      int       `json:"port,omitempty"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitErr   error     `json:"-"`
	Error     string    `json:"error,omitempty"`
}
