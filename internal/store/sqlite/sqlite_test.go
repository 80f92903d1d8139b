package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/loykin/bringup/internal/store"
)

func TestSQLiteMinimalAPI(t *testing.T) {
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	// Record running
	now := time.Now().UTC()
	rec := store.Record{Name: "api", PID: 1111, Port: 8000, LastStatus: "running", UpdatedAt: now}
	if err := db.Record(ctx, rec); err != nil {
		t.Fatalf("record running: %v", err)
	}
	got, err := db.GetByName(ctx, "api")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if got.PID != 1111 || got.Port != 8000 || got.LastStatus != "running" {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Update to stopped
	rec2 := store.Record{Name: "api", PID: 1111, Port: 8000, LastStatus: "stopped", UpdatedAt: time.Now().UTC()}
	if err := db.Record(ctx, rec2); err != nil {
		t.Fatalf("record stopped: %v", err)
	}
	got2, err := db.GetByName(ctx, "api")
	if err != nil {
		t.Fatalf("get by name2: %v", err)
	}
	if got2.LastStatus != "stopped" {
		t.Fatalf("expected stopped, got %q", got2.LastStatus)
	}

	// Delete and verify not found
	if err := db.Delete(ctx, "api"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.GetByName(ctx, "api"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows after delete, got %v", err)
	}
}

func TestSQLiteEmptyPath(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSQLiteUpsertFillsUpdatedAt(t *testing.T) {
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := db.Record(ctx, store.Record{Name: "mcp", PID: 22, Port: 8001, LastStatus: "starting"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := db.GetByName(ctx, "mcp")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("updated_at not filled")
	}
}
