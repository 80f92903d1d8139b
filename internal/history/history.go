package history

import (
	"context"
	"time"

	"github.com/loykin/bringup/internal/store"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	// EventLaunch records a successful service launch.
	EventLaunch EventType = "launch"
	// EventLaunchFailure records a launch attempt that produced no process.
	EventLaunchFailure EventType = "launch_failure"
	// EventExit records a service found exited on its own.
	EventExit EventType = "exit"
	// EventStop records a service terminated during shutdown.
	EventStop EventType = "stop"
	// EventReclaim records a port reclamation.
	EventReclaim EventType = "reclaim"
)

// Event represents a lifecycle event to be exported to external systems.
// Detail carries free text such as an exit error or the PIDs killed while
// reclaiming a port.
type Event struct {
	Type       EventType    `json:"type"`
	OccurredAt time.Time    `json:"occurred_at"`
	Record     store.Record `json:"record"`
	Detail     string       `json:"detail,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
