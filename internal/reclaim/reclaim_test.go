package reclaim

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests spawn helper listeners on Unix-like systems")
	}
}

// TestMain doubles as a helper entrypoint: when BRINGUP_RECLAIM_HELPER names
// an address, the binary just listens there until killed.
func TestMain(m *testing.M) {
	if addr := os.Getenv("BRINGUP_RECLAIM_HELPER"); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			fmt.Fprintln(os.Stderr, "helper listen:", err)
			os.Exit(1)
		}
		fmt.Println("listening")
		defer func() { _ = ln.Close() }()
		// block forever without tripping the runtime deadlock detector
		// (select{} in the only goroutine is a fatal error)
		for {
			time.Sleep(time.Hour)
		}
	}
	os.Exit(m.Run())
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("pick free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func startHelper(t *testing.T, port int) *exec.Cmd {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("executable: %v", err)
	}
	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), fmt.Sprintf("BRINGUP_RECLAIM_HELPER=127.0.0.1:%d", port))
	if err := cmd.Start(); err != nil {
		t.Fatalf("start helper: %v", err)
	}
	t.Cleanup(func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
			_, _ = cmd.Process.Wait()
		}
	})
	// wait for the helper to bind
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		b, err := Inspect(port)
		if err == nil && b.Occupied() {
			return cmd
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("helper never bound port %d", port)
	return nil
}

func TestInspect_EmptyPort(t *testing.T) {
	port := freePort(t)
	b, err := Inspect(port)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if b.Occupied() {
		t.Fatalf("expected free port, got pids %v", b.PIDs)
	}
	if b.Port != port {
		t.Fatalf("binding port = %d, want %d", b.Port, port)
	}
}

func TestInspect_FindsOwnListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	b, err := Inspect(port)
	if err != nil {
		var ie *InspectionError
		if errors.As(err, &ie) {
			t.Skipf("connection table not inspectable here: %v", err)
		}
		t.Fatalf("Inspect: %v", err)
	}
	if !slices.Contains(b.PIDs, os.Getpid()) {
		t.Fatalf("own pid %d not among listeners %v", os.Getpid(), b.PIDs)
	}
}

func TestReclaim_NoOccupant(t *testing.T) {
	port := freePort(t)
	res, err := Reclaim(port)
	if err != nil {
		t.Fatalf("Reclaim: %v", err)
	}
	if !res.Cleared {
		t.Fatalf("expected cleared on free port")
	}
	if len(res.Killed) != 0 {
		t.Fatalf("expected no kills, got %v", res.Killed)
	}
}

func TestReclaim_KillsOccupantAndFreesPort(t *testing.T) {
	requireUnix(t)
	port := freePort(t)
	cmd := startHelper(t, port)
	helperPID := cmd.Process.Pid

	res, err := Reclaim(port)
	if err != nil {
		t.Fatalf("Reclaim: %v", err)
	}
	if !res.Cleared {
		t.Fatalf("expected cleared, got %+v", res)
	}
	if !slices.Contains(res.Killed, helperPID) {
		t.Fatalf("helper pid %d not in killed %v", helperPID, res.Killed)
	}
	// reap the helper so the PID leaves the table, then port must be bindable
	_, _ = cmd.Process.Wait()
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("port not rebindable after reclaim: %v", err)
	}
	_ = ln.Close()
}

func TestReclaim_SkipsSelf(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	if _, err := Inspect(port); err != nil {
		t.Skipf("connection table not inspectable here: %v", err)
	}
	res, err := Reclaim(port)
	if err != nil {
		t.Fatalf("Reclaim: %v", err)
	}
	if res.Cleared {
		t.Fatalf("self-occupied port must not report cleared")
	}
	if slices.Contains(res.Killed, os.Getpid()) {
		t.Fatalf("reclaim killed the calling process")
	}
	// still alive and the listener still works
	if _, err := net.Dial("tcp", ln.Addr().String()); err != nil {
		t.Fatalf("own listener died: %v", err)
	}
}

func TestErrorTypes(t *testing.T) {
	base := errors.New("boom")
	var err error = &InspectionError{Port: 80, Err: base}
	if !errors.Is(err, base) {
		t.Fatalf("InspectionError does not unwrap")
	}
	var ie *InspectionError
	if !errors.As(err, &ie) || ie.Port != 80 {
		t.Fatalf("errors.As failed for InspectionError")
	}
	err = &ReclaimError{Port: 81, PID: 42, Err: base}
	var re *ReclaimError
	if !errors.As(err, &re) || re.PID != 42 {
		t.Fatalf("errors.As failed for ReclaimError")
	}
	if re.Error() == "" || ie.Error() == "" {
		t.Fatalf("empty error strings")
	}
}
