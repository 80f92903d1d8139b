package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/loykin/bringup/internal/history"
	"github.com/loykin/bringup/internal/metrics"
	"github.com/loykin/bringup/internal/process"
	"github.com/loykin/bringup/internal/reclaim"
	"github.com/loykin/bringup/internal/registry"
	"github.com/loykin/bringup/internal/store"
)

// State of the supervisor lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StateShuttingDown State = "shutting-down"
	StateStopped      State = "stopped"
)

// Launch failure policies.
const (
	PolicyContinue = "continue"
	PolicyAbort    = "abort"
)

const (
	DefaultSettleDelay  = time.Second
	DefaultGraceTimeout = 10 * time.Second

	// recordTimeout bounds best-effort store/history writes. The run context
	// is already cancelled while shutting down, so recording uses its own.
	recordTimeout = 2 * time.Second
)

// ShutdownTimeoutError reports a child that did not exit within the grace
// timeout. It is reported once and never retried or escalated.
type ShutdownTimeoutError struct {
	Name  string
	PID   int
	Grace time.Duration
}

func (e *ShutdownTimeoutError) Error() string {
	return fmt.Sprintf("service %q (pid %d) did not exit within %s", e.Name, e.PID, e.Grace)
}

// Options configure a single supervisor run.
type Options struct {
	Specs []process.Spec

	// Env provides the merged base environment for all children; nil means
	// an empty base (children see only their own declared variables).
	Env EnvMerger

	SettleDelay  time.Duration // pause after each successful launch
	GraceTimeout time.Duration // bounded shutdown wait

	ReclaimPorts      bool  // reclaim each declared service port before starting
	ExtraReclaimPorts []int // reclaimed regardless of ReclaimPorts

	OnLaunchFailure string // PolicyContinue (default) or PolicyAbort

	Logger  *slog.Logger
	Store   store.Store  // optional, observational only
	History history.Sink // optional

	SummaryWriter io.Writer // defaults to os.Stdout
}

// EnvMerger yields the final child environment given per-service overrides.
type EnvMerger interface {
	Merge(perService []string) []string
}

// Supervisor drives one fixed set of services through
// idle/starting/running/shutting-down/stopped. It is single-shot: Run may
// be called once.
type Supervisor struct {
	mu    sync.Mutex
	state State

	opts Options
	reg  *registry.Registry
	log  *slog.Logger

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	// set during Starting when a service could not be launched
	launchFailures int
	// set during shutdown for children that outlived the grace timeout
	timeouts []*ShutdownTimeoutError
}

func New(opts Options) *Supervisor {
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.GraceTimeout <= 0 {
		opts.GraceTimeout = DefaultGraceTimeout
	}
	if opts.OnLaunchFailure == "" {
		opts.OnLaunchFailure = PolicyContinue
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SummaryWriter == nil {
		opts.SummaryWriter = os.Stdout
	}
	return &Supervisor{
		state:      StateIdle,
		opts:       opts,
		reg:        registry.New(),
		log:        opts.Logger,
		shutdownCh: make(chan struct{}),
	}
}

// State reports the current lifecycle state. Safe for concurrent use.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	metrics.SetSupervisorState(string(st))
	s.log.Debug("state changed", "state", string(st))
}

// Registry exposes the live process registry for status serving.
func (s *Supervisor) Registry() *registry.Registry { return s.reg }

// Timeouts reports the children that survived the grace timeout of the
// last shutdown. Empty until Stopped.
func (s *Supervisor) Timeouts() []*ShutdownTimeoutError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ShutdownTimeoutError, len(s.timeouts))
	copy(out, s.timeouts)
	return out
}

// LaunchFailures reports how many descriptors failed to launch.
func (s *Supervisor) LaunchFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launchFailures
}

// Shutdown requests the running supervisor to stop. Idempotent; safe to
// call from any goroutine, before or after the run finished.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Run drives the full lifecycle: reclaim ports, launch every descriptor in
// order, serve until ctx is cancelled or Shutdown is called, then stop all
// children within the grace timeout. Launch failures are absorbed per the
// configured policy; the only startup error that aborts with a non-nil
// return is a duplicate service name.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return errors.New("supervisor: Run called twice")
	}
	s.state = StateStarting
	s.mu.Unlock()
	metrics.SetSupervisorState(string(StateStarting))
	s.log.Info("starting", "services", len(s.opts.Specs))

	s.reclaimPorts()

	dup := s.launchAll(ctx)
	if dup == nil && !s.stopRequested(ctx) {
		s.printSummary()
		s.setState(StateRunning)
		metrics.SetRunning(s.reg.Len())
		s.log.Info("running", "services", s.reg.Len(), "failed", s.LaunchFailures())

		select {
		case <-ctx.Done():
		case <-s.shutdownCh:
		}
	}

	s.setState(StateShuttingDown)
	s.log.Info("shutting down", "services", s.reg.Len(), "grace", s.opts.GraceTimeout)
	s.stopAll()
	s.setState(StateStopped)
	metrics.SetRunning(s.reg.Len())
	if n := len(s.Timeouts()); n > 0 {
		s.log.Error("shutdown incomplete", "stragglers", n)
	} else {
		s.log.Info("shutdown complete")
	}
	return dup
}

func (s *Supervisor) stopRequested(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-s.shutdownCh:
		return true
	default:
		return false
	}
}

// reclaimPorts frees the declared service ports (when enabled) plus any
// explicitly listed extras. Inspection and kill errors are logged and
// skipped; reclamation never blocks startup.
func (s *Supervisor) reclaimPorts() {
	var ports []int
	seen := make(map[int]struct{})
	add := func(p int) {
		if p <= 0 {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		ports = append(ports, p)
	}
	if s.opts.ReclaimPorts {
		for _, sp := range s.opts.Specs {
			add(sp.Port)
		}
	}
	for _, p := range s.opts.ExtraReclaimPorts {
		add(p)
	}

	for _, port := range ports {
		res, err := reclaim.Reclaim(port)
		if err != nil {
			var ie *reclaim.InspectionError
			if errors.As(err, &ie) {
				s.log.Warn("port inspection failed", "port", port, "err", err)
			} else {
				s.log.Warn("port reclaim failed", "port", port, "err", err)
			}
			continue
		}
		if len(res.Killed) > 0 {
			s.log.Info("port reclaimed", "port", port, "killed", res.Killed)
			metrics.IncPortReclaimed(port)
			metrics.AddReclaimKilled(port, len(res.Killed))
			s.record(store.Record{Name: s.serviceForPort(port), Port: port, LastStatus: "reclaimed"},
				history.EventReclaim, fmt.Sprintf("killed %v", res.Killed))
		} else if !res.Cleared {
			s.log.Warn("port still occupied", "port", port)
		} else {
			s.log.Debug("port free", "port", port)
		}
	}
}

func (s *Supervisor) serviceForPort(port int) string {
	for _, sp := range s.opts.Specs {
		if sp.Port == port {
			return sp.Name
		}
	}
	return ""
}

// launchAll starts every descriptor in configured order. It returns a
// non-nil error only for a duplicate service name, which is fatal.
func (s *Supervisor) launchAll(ctx context.Context) error {
	for i, spec := range s.opts.Specs {
		if s.stopRequested(ctx) {
			s.log.Info("launch interrupted", "remaining", len(s.opts.Specs)-i)
			return nil
		}

		var merged []string
		if s.opts.Env != nil {
			merged = s.opts.Env.Merge(spec.Env)
		} else {
			merged = spec.Env
		}

		began := time.Now()
		p, err := process.Start(spec, merged)
		if err != nil {
			s.mu.Lock()
			s.launchFailures++
			s.mu.Unlock()
			metrics.IncLaunchFailure(spec.Name)
			s.record(store.Record{Name: spec.Name, Port: spec.Port, LastStatus: "launch-failed"},
				history.EventLaunchFailure, err.Error())
			s.log.Error("launch failed", "name", spec.Name, "err", err)
			if s.opts.OnLaunchFailure == PolicyAbort {
				s.log.Error("aborting startup", "policy", PolicyAbort)
				s.Shutdown()
				return nil
			}
			continue
		}

		if err := s.reg.Register(p); err != nil {
			// Duplicate name slipped past config validation; the
			// descriptor set is broken, take everything down.
			s.log.Error("register failed", "name", p.Name(), "err", err)
			_ = p.SignalStop()
			p.WaitExit(s.opts.GraceTimeout)
			s.Shutdown()
			return err
		}

		metrics.IncStart(spec.Name)
		metrics.ObserveStartDuration(spec.Name, time.Since(began).Seconds())
		s.record(store.Record{Name: spec.Name, PID: p.PID(), Port: spec.Port, LastStatus: "running"},
			history.EventLaunch, "")
		s.log.Info("launched", "name", spec.Name, "pid", p.PID(), "port", spec.Port)

		if i < len(s.opts.Specs)-1 && s.opts.SettleDelay > 0 {
			select {
			case <-ctx.Done():
			case <-s.shutdownCh:
			case <-time.After(s.opts.SettleDelay):
			}
		}
	}
	return nil
}

// stopAll requests termination of every registered child, newest first,
// then confirms exits against one shared grace deadline. Children that
// exited on their own are recorded as such. Stragglers yield
// ShutdownTimeoutError and stay registered.
func (s *Supervisor) stopAll() {
	procs := s.reg.All()
	exitedEarly := make(map[string]bool, len(procs))

	for i := len(procs) - 1; i >= 0; i-- {
		p := procs[i]
		if !p.Alive() {
			exitedEarly[p.Name()] = true
			continue
		}
		s.log.Info("stopping", "name", p.Name(), "pid", p.PID())
		if err := p.SignalStop(); err != nil {
			// exited between the liveness check and the signal
			s.log.Debug("stop signal", "name", p.Name(), "err", err)
		}
	}

	deadline := time.Now().Add(s.opts.GraceTimeout)
	for i := len(procs) - 1; i >= 0; i-- {
		p := procs[i]
		if !p.WaitExit(time.Until(deadline)) {
			te := &ShutdownTimeoutError{Name: p.Name(), PID: p.PID(), Grace: s.opts.GraceTimeout}
			s.mu.Lock()
			s.timeouts = append(s.timeouts, te)
			s.mu.Unlock()
			s.log.Error("shutdown timeout", "name", p.Name(), "pid", p.PID(), "grace", s.opts.GraceTimeout)
			continue
		}

		detail := ""
		if exitErr := p.ExitErr(); exitErr != nil {
			detail = exitErr.Error()
		}
		ev := history.EventStop
		status := "stopped"
		if exitedEarly[p.Name()] {
			ev = history.EventExit
			status = "exited"
		}
		s.reg.Remove(p.Name())
		metrics.IncStop(p.Name())
		s.record(store.Record{Name: p.Name(), PID: p.PID(), Port: p.Spec().Port, LastStatus: status}, ev, detail)
		s.log.Info("stopped", "name", p.Name(), "pid", p.PID(), "status", status)
	}
}

// record persists a status change to the store and history sink,
// best-effort. Failures are logged and swallowed.
func (s *Supervisor) record(rec store.Record, ev history.EventType, detail string) {
	if s.opts.Store == nil && s.opts.History == nil {
		return
	}
	rec.UpdatedAt = time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if s.opts.Store != nil {
		if err := s.opts.Store.Record(ctx, rec); err != nil {
			s.log.Warn("store record failed", "name", rec.Name, "err", err)
		}
	}
	if s.opts.History != nil {
		e := history.Event{Type: ev, OccurredAt: rec.UpdatedAt, Record: rec, Detail: detail}
		if err := s.opts.History.Send(ctx, e); err != nil {
			s.log.Warn("history send failed", "event", string(ev), "name", rec.Name, "err", err)
		}
	}
}

func (s *Supervisor) printSummary() {
	w := s.opts.SummaryWriter
	fmt.Fprintf(w, "%-14s %-8s %-6s %-10s %s\n", "SERVICE", "PID", "PORT", "STATE", "STDOUT LOG")
	for _, st := range s.reg.Statuses() {
		port := "-"
		if st.Port > 0 {
			port = strconv.Itoa(st.Port)
		}
		logPath := "-"
		if p, ok := s.reg.Get(st.Name); ok {
			if f := p.Spec().Log.StdoutFile(st.Name); f != "" {
				logPath = f
			}
		}
		fmt.Fprintf(w, "%-14s %-8d %-6s %-10s %s\n", st.Name, st.PID, port, st.State, logPath)
	}
}
