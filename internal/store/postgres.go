package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Open connects to the target Postgres store and verifies the connection.
// The handle is scoped to one pipeline run; the caller closes it on every
// exit path.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open target store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping target store: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the target tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const shifts = `
	CREATE TABLE IF NOT EXISTS shifts (
		shift_id    TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		start_time  TIMESTAMPTZ NOT NULL,
		end_time    TIMESTAMPTZ NOT NULL,
		status      TEXT NOT NULL,
		location    TEXT
	);`
	const kpis = `
	CREATE TABLE IF NOT EXISTS kpis (
		metric_name  TEXT NOT NULL,
		grouping_key TEXT NOT NULL,
		value        DOUBLE PRECISION NOT NULL,
		computed_at  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (metric_name, grouping_key)
	);`

	if _, err := db.ExecContext(ctx, shifts); err != nil {
		return fmt.Errorf("create shifts table: %w", err)
	}
	if _, err := db.ExecContext(ctx, kpis); err != nil {
		return fmt.Errorf("create kpis table: %w", err)
	}
	return nil
}
