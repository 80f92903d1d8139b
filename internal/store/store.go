package store

import (
	"context"
	"time"
)

// Record is the last observed state persisted for a named service.
// Name is unique across all services in one supervisor run.
// LastStatus is an arbitrary string like "starting", "running", "stopped".
// UpdatedAt should be in UTC.
// PID and Port are the latest observed values; Port is 0 when the service
// declares none.

type Record struct {
	Name       string
	PID        int
	Port       int
	LastStatus string
	UpdatedAt  time.Time
}

// Store is a minimal persistence interface to keep the last known PID,
// port and status per service. The supervisor treats it as observational:
// store errors are logged, never fatal.

type Store interface {
	EnsureSchema(ctx context.Context) error
	Record(ctx context.Context, rec Record) error
	GetByName(ctx context.Context, name string) (Record, error)
	Delete(ctx context.Context, name string) error
	Close() error
}
