package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bringup",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of successful service launches.",
		}, []string{"name"},
	)
	serviceLaunchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bringup",
			Subsystem: "service",
			Name:      "launch_failures_total",
			Help:      "Number of failed service launches.",
		}, []string{"name"},
	)
	serviceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bringup",
			Subsystem: "service",
			Name:      "stops_total",
			Help:      "Number of services confirmed exited during shutdown.",
		}, []string{"name"},
	)
	serviceStartDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bringup",
			Subsystem: "service",
			Name:      "start_duration_seconds",
			Help:      "Time spent creating each service's child process.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)
	servicesRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bringup",
			Subsystem: "service",
			Name:      "running",
			Help:      "Number of services currently registered and running.",
		},
	)
	supervisorStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bringup",
			Subsystem: "supervisor",
			Name:      "state",
			Help:      "Supervisor lifecycle state (1 = current state, 0 otherwise).",
		}, []string{"state"},
	)
	portsReclaimed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bringup",
			Subsystem: "reclaim",
			Name:      "ports_reclaimed_total",
			Help:      "Number of ports reclaimed from previous occupants.",
		}, []string{"port"},
	)
	reclaimKilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bringup",
			Subsystem: "reclaim",
			Name:      "processes_killed_total",
			Help:      "Number of port occupants terminated by reclamation.",
		}, []string{"port"},
	)
)

// supervisor states exported via SetSupervisorState; the one-hot gauge
// needs the full set to zero the others.
var knownStates = []string{"idle", "starting", "running", "shutting-down", "stopped"}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		serviceStarts, serviceLaunchFailures, serviceStops, serviceStartDuration,
		servicesRunning, supervisorStates, portsReclaimed, reclaimKilled,
		resourceCPU, resourceMemMB, resourceThreads,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// already registered is fine (double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving the DefaultGatherer. The caller
// wires the route and server.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart(name string) {
	if regOK.Load() {
		serviceStarts.WithLabelValues(name).Inc()
	}
}

func IncLaunchFailure(name string) {
	if regOK.Load() {
		serviceLaunchFailures.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		serviceStops.WithLabelValues(name).Inc()
	}
}

func ObserveStartDuration(name string, seconds float64) {
	if regOK.Load() {
		serviceStartDuration.WithLabelValues(name).Observe(seconds)
	}
}

func SetRunning(n int) {
	if regOK.Load() {
		servicesRunning.Set(float64(n))
	}
}

func SetSupervisorState(state string) {
	if !regOK.Load() {
		return
	}
	for _, s := range knownStates {
		v := 0.0
		if s == state {
			v = 1
		}
		supervisorStates.WithLabelValues(s).Set(v)
	}
}

func IncPortReclaimed(port int) {
	if regOK.Load() {
		portsReclaimed.WithLabelValues(strconv.Itoa(port)).Inc()
	}
}

func AddReclaimKilled(port, n int) {
	if regOK.Load() && n > 0 {
		reclaimKilled.WithLabelValues(strconv.Itoa(port)).Add(float64(n))
	}
}
