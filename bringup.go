package bringup

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/bringup/internal/config"
	"github.com/loykin/bringup/internal/history"
	hfactory "github.com/loykin/bringup/internal/history/factory"
	"github.com/loykin/bringup/internal/logger"
	"github.com/loykin/bringup/internal/metrics"
	"github.com/loykin/bringup/internal/process"
	"github.com/loykin/bringup/internal/reclaim"
	iapi "github.com/loykin/bringup/internal/server"
	"github.com/loykin/bringup/internal/store"
	sfactory "github.com/loykin/bringup/internal/store/factory"
	"github.com/loykin/bringup/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

type Status = process.Status

type Config = cfg.Config

type SlogConfig = logger.SlogConfig

type Options = supervisor.Options

type State = supervisor.State

const (
	StateIdle         = supervisor.StateIdle
	StateStarting     = supervisor.StateStarting
	StateRunning      = supervisor.StateRunning
	StateShuttingDown = supervisor.StateShuttingDown
	StateStopped      = supervisor.StateStopped
)

// Launch failure policies for Options.OnLaunchFailure.
const (
	PolicyContinue = supervisor.PolicyContinue
	PolicyAbort    = supervisor.PolicyAbort
)

type Store = store.Store

type HistorySink = history.Sink

type ReclaimResult = reclaim.Result

type PortBinding = reclaim.Binding

// Supervisor is a thin facade over internal/supervisor.Supervisor.
// It provides a stable public API for embedding.

type Supervisor struct{ inner *supervisor.Supervisor }

func New(opts Options) *Supervisor {
	return &Supervisor{inner: supervisor.New(opts)}
}

// Run drives the full lifecycle: reclaim declared ports (when enabled),
// launch every service in order with settle delays, block until ctx is
// cancelled or Shutdown is called, then stop the children within the grace
// timeout. It returns only after Stopped is reached.
func (s *Supervisor) Run(ctx context.Context) error { return s.inner.Run(ctx) }

// Shutdown requests a running supervisor to stop. Idempotent.
func (s *Supervisor) Shutdown() { s.inner.Shutdown() }

// State reports the lifecycle state. Safe for concurrent use.
func (s *Supervisor) State() State { return s.inner.State() }

// Statuses snapshots every registered service in start order.
func (s *Supervisor) Statuses() []Status { return s.inner.Registry().Statuses() }

// LaunchFailures reports how many services failed to launch.
func (s *Supervisor) LaunchFailures() int { return s.inner.LaunchFailures() }

func LoadConfig(path string) (*Config, error) {
	return cfg.Load(path)
}

// InspectPort reports the PIDs currently listening on a TCP port.
func InspectPort(port int) (PortBinding, error) { return reclaim.Inspect(port) }

// ReclaimPort force-terminates every process listening on a TCP port so a
// managed service can bind it. May take down unrelated processes; callers
// opt in per port.
func ReclaimPort(port int) (ReclaimResult, error) { return reclaim.Reclaim(port) }

// NewStatusServer starts the read-only status API on addr, backed by the
// given supervisor. Shut it down with http.Server's Shutdown or Close.
func NewStatusServer(addr, basePath string, s *Supervisor) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s.inner.Registry(), func() string { return string(s.State()) })
}

// NewStoreFromDSN selects a state store (sqlite path or postgres URL).
func NewStoreFromDSN(dsn string) (Store, error) { return sfactory.NewFromDSN(dsn) }

// NewHistorySinkFromDSN selects a lifecycle event sink by DSN scheme.
func NewHistorySinkFromDSN(dsn string) (HistorySink, error) { return hfactory.NewSinkFromDSN(dsn) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It returns any immediate listen error; otherwise it
// runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
