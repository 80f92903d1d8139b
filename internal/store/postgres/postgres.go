package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/bringup/internal/store"
)

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS service_state(
			name TEXT PRIMARY KEY,
			pid INTEGER NOT NULL,
			port INTEGER NOT NULL,
			last_status TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_service_state_status ON service_state(last_status);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) Record(ctx context.Context, rec store.Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO service_state(name, pid, port, last_status, updated_at)
		VALUES($1,$2,$3,$4,$5)
		ON CONFLICT(name) DO UPDATE SET
			pid=EXCLUDED.pid,
			port=EXCLUDED.port,
			last_status=EXCLUDED.last_status,
			updated_at=EXCLUDED.updated_at;`,
		rec.Name, rec.PID, rec.Port, rec.LastStatus, rec.UpdatedAt.UTC())
	return err
}

func (p *DB) GetByName(ctx context.Context, name string) (store.Record, error) {
	var r store.Record
	err := p.db.QueryRowContext(ctx, `
		SELECT name, pid, port, last_status, updated_at
		FROM service_state
		WHERE name=$1;`, name).Scan(&r.Name, &r.PID, &r.Port, &r.LastStatus, &r.UpdatedAt)
	if err != nil {
		return store.Record{}, err
	}
	return r, nil
}

func (p *DB) Delete(ctx context.Context, name string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM service_state WHERE name=$1;`, name)
	return err
}
