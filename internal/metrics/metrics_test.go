package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	// Exercise helpers; they should work only after Register
	IncStart("api")
	IncStart("api")
	IncLaunchFailure("edge")
	IncStop("api")
	ObserveStartDuration("api", 0.042)
	SetRunning(3)
	SetSupervisorState("running")
	IncPortReclaimed(8000)
	AddReclaimKilled(8000, 2)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"bringup_service_starts_total":           false,
		"bringup_service_launch_failures_total":  false,
		"bringup_service_stops_total":            false,
		"bringup_service_start_duration_seconds": false,
		"bringup_service_running":                false,
		"bringup_supervisor_state":               false,
		"bringup_reclaim_ports_reclaimed_total":  false,
		"bringup_reclaim_processes_killed_total": false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestSupervisorStateOneHot(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	SetSupervisorState("running")
	SetSupervisorState("shutting-down")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var hot []string
	for _, mf := range mfs {
		if mf.GetName() != "bringup_supervisor_state" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if m.GetGauge().GetValue() != 1 {
				continue
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "state" {
					hot = append(hot, lp.GetValue())
				}
			}
		}
	}
	if len(hot) != 1 || hot[0] != "shutting-down" {
		t.Fatalf("hot states = %v, want [shutting-down]", hot)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	// Ensure collectors are registered with the default registry used by Handler().
	// Reset regOK gate to allow registration in this test regardless of previous tests.
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	// touch some metrics
	IncStart("api")

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	s := string(b)
	if !strings.Contains(s, "bringup_service_starts_total") {
		t.Fatalf("metrics output missing starts_total: %s", s[:min(200, len(s))])
	}
}

func TestConcurrentIncrements(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncStart("c")
			IncLaunchFailure("c")
			IncStop("c")
		}()
	}
	wg.Wait()
	// Ensure gather succeeds under race detector
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	// Reset registration status to test behavior before registration
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	// These should be no-ops and not panic when called before Register
	IncStart("api")
	IncLaunchFailure("api")
	IncStop("api")
	ObserveStartDuration("api", 1.0)
	SetRunning(5)
	SetSupervisorState("running")
	IncPortReclaimed(8000)
	AddReclaimKilled(8000, 1)
}

func TestSamplerSamplesAndPrunes(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}

	targets := []Target{{Name: "self", PID: os.Getpid()}}
	s := NewSampler(time.Second, func() []Target { return targets })
	s.sampleOnce()

	hasSelf := func(metric string) bool {
		mfs, err := reg.Gather()
		if err != nil {
			t.Fatalf("gather: %v", err)
		}
		for _, mf := range mfs {
			if mf.GetName() != metric {
				continue
			}
			for _, m := range mf.GetMetric() {
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "name" && lp.GetValue() == "self" {
						return true
					}
				}
			}
		}
		return false
	}
	for _, n := range []string{"bringup_service_memory_mb", "bringup_service_threads"} {
		if !hasSelf(n) {
			t.Fatalf("metric %s has no sample for self", n)
		}
	}

	// once the target disappears its gauges are dropped
	targets = nil
	s.sampleOnce()
	if hasSelf("bringup_service_threads") {
		t.Fatal("stale sample for removed target")
	}
}

func TestSamplerMinimumInterval(t *testing.T) {
	s := NewSampler(10*time.Millisecond, func() []Target { return nil })
	if s.interval < time.Second {
		t.Fatalf("interval = %v, want >= 1s", s.interval)
	}
}

func TestRegisterError(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(&errorRegisterer{shouldError: true})
	if err == nil {
		t.Fatal("Register should return error from failing registerer")
	}
	if err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Custom registerer for testing error handling
type errorRegisterer struct {
	shouldError bool
}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	if e.shouldError {
		return errors.New("test registration error")
	}
	return nil
}

func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
