package metrics

import (
	"context"
	"time"

	gproc "github.com/shirou/gopsutil/v4/process"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	resourceCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bringup",
			Subsystem: "service",
			Name:      "cpu_percent",
			Help:      "CPU usage of the service process in percent.",
		}, []string{"name"},
	)
	resourceMemMB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bringup",
			Subsystem: "service",
			Name:      "memory_mb",
			Help:      "Resident memory of the service process in MiB.",
		}, []string{"name"},
	)
	resourceThreads = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bringup",
			Subsystem: "service",
			Name:      "threads",
			Help:      "Thread count of the service process.",
		}, []string{"name"},
	)
)

// Target is one process to sample.
type Target struct {
	Name string
	PID  int
}

// Sampler periodically samples CPU, memory and thread gauges for a set of
// live processes. Targets are fetched fresh each tick so restarts and
// removals are picked up without bookkeeping in the caller.
type Sampler struct {
	interval time.Duration
	targets  func() []Target

	seen map[string]struct{}
}

// NewSampler builds a sampler. targets is called once per tick and must be
// safe for concurrent use. Intervals below one second are raised to one
// second to keep gopsutil reads cheap.
func NewSampler(interval time.Duration, targets func() []Target) *Sampler {
	if interval < time.Second {
		interval = time.Second
	}
	return &Sampler{interval: interval, targets: targets, seen: make(map[string]struct{})}
}

// Run samples until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sampleOnce()
		}
	}
}

func (s *Sampler) sampleOnce() {
	if !regOK.Load() {
		return
	}
	cur := make(map[string]struct{})
	for _, tg := range s.targets() {
		cur[tg.Name] = struct{}{}
		s.sample(tg)
	}
	// drop gauges for services that disappeared since the last tick
	for name := range s.seen {
		if _, ok := cur[name]; !ok {
			resourceCPU.DeleteLabelValues(name)
			resourceMemMB.DeleteLabelValues(name)
			resourceThreads.DeleteLabelValues(name)
		}
	}
	s.seen = cur
}

func (s *Sampler) sample(tg Target) {
	p, err := gproc.NewProcess(int32(tg.PID))
	if err != nil {
		return
	}
	if cpu, err := p.CPUPercent(); err == nil {
		resourceCPU.WithLabelValues(tg.Name).Set(cpu)
	}
	if mi, err := p.MemoryInfo(); err == nil && mi != nil {
		resourceMemMB.WithLabelValues(tg.Name).Set(float64(mi.RSS) / 1024 / 1024)
	}
	if n, err := p.NumThreads(); err == nil {
		resourceThreads.WithLabelValues(tg.Name).Set(float64(n))
	}
}
