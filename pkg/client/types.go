package client

import "time"

// ServiceStatus mirrors the status JSON served by the supervisor's API.
type ServiceStatus struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	State     string    `json:"state"`
	PID       int       `json:"pid"`
	Port      int       `json:"port,omitempty"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// StateResponse carries the supervisor lifecycle state.
type StateResponse struct {
	State string `json:"state"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
