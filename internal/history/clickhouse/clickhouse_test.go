package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/bringup/internal/history"
	"github.com/loykin/bringup/internal/store"
)

// setupClickHouseContainer starts a ClickHouse container for testing.
// It skips the test when Docker is unavailable.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	container, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start ClickHouse container: %v", err)
		return nil, ""
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Skipf("Failed to get container host: %v", err)
		return nil, ""
	}

	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Skipf("Failed to get mapped port: %v", err)
		return nil, ""
	}

	return container, host + ":" + port.Port()
}

func TestClickHouseSinkSend(t *testing.T) {
	ctx := context.Background()
	container, dsn := setupClickHouseContainer(ctx, t)
	defer func() {
		if container != nil {
			_ = container.Terminate(ctx)
		}
	}()

	sink, err := New(dsn, "service_history")
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	err = sink.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS service_history (
			type String,
			occurred_at DateTime,
			name String,
			pid Int64,
			port Int64,
			status String,
			detail String
		) ENGINE = MergeTree() ORDER BY occurred_at;`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	e := history.Event{
		Type:       history.EventLaunch,
		OccurredAt: time.Now().UTC(),
		Record:     store.Record{Name: "api", PID: 4242, Port: 8000, LastStatus: "running"},
	}
	if err := sink.Send(ctx, e); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Verify the row landed
	row := sink.conn.QueryRow(ctx, `SELECT name, pid FROM service_history WHERE name = 'api' LIMIT 1;`)
	var name string
	var pid int64
	if err := row.Scan(&name, &pid); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if name != "api" || pid != 4242 {
		t.Fatalf("row = %s/%d, want api/4242", name, pid)
	}
}

func TestClickHouseSinkBadAddr(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	if _, err := New("127.0.0.1:1", "service_history"); err == nil {
		t.Fatal("expected connection error")
	}
}
