package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"shifts-etl/internal/model"
)

// Dialect selects the placeholder style of the target driver. The loader
// writes one SQL dialect (`?` placeholders, ON CONFLICT upserts) shared by
// Postgres and SQLite, so the same code path is exercised in-memory by tests.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// LoadError is the fatal failure of a load call. The transaction is rolled
// back before it is returned; no row of the batch is committed.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	var pqErr *pq.Error
	if errors.As(e.Err, &pqErr) {
		return fmt.Sprintf("load %s: %s (sqlstate %s, constraint %q)",
			e.Table, pqErr.Message, pqErr.Code, pqErr.Constraint)
	}
	return fmt.Sprintf("load %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader writes tables to the target store through a single transactional
// upsert path. All writes to the store go through it.
type Loader struct {
	db          *sql.DB
	dialect     Dialect
	fullRefresh bool
}

// NewLoader binds a loader to an open session for the lifetime of one run.
func NewLoader(db *sql.DB, dialect Dialect) *Loader {
	return &Loader{db: db, dialect: dialect}
}

// WithFullRefresh makes each load call delete the target table inside its
// transaction before upserting, reproducing a replace-style refresh.
func (l *Loader) WithFullRefresh() *Loader {
	l.fullRefresh = true
	return l
}

// LoadShifts upserts the shift table keyed on shift_id. The whole call is
// one transaction: every row commits or none does.
func (l *Loader) LoadShifts(ctx context.Context, table model.ShiftTable) (inserted, updated int, err error) {
	err = l.inTx(ctx, "shifts", func(tx *sql.Tx) error {
		if l.fullRefresh {
			if _, err := tx.ExecContext(ctx, `DELETE FROM shifts`); err != nil {
				return err
			}
		}

		exists, err := tx.PrepareContext(ctx, l.rebind(`SELECT EXISTS (SELECT 1 FROM shifts WHERE shift_id = ?)`))
		if err != nil {
			return err
		}
		defer exists.Close()

		upsert, err := tx.PrepareContext(ctx, l.rebind(`
			INSERT INTO shifts (shift_id, employee_id, start_time, end_time, status, location)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (shift_id) DO UPDATE SET
				employee_id = excluded.employee_id,
				start_time  = excluded.start_time,
				end_time    = excluded.end_time,
				status      = excluded.status,
				location    = excluded.location`))
		if err != nil {
			return err
		}
		defer upsert.Close()

		for _, row := range table {
			var present bool
			if err := exists.QueryRowContext(ctx, row.ShiftID).Scan(&present); err != nil {
				return err
			}
			if _, err := upsert.ExecContext(ctx,
				row.ShiftID, row.EmployeeID, row.StartTime, row.EndTime,
				string(row.Status), nullable(row.Location)); err != nil {
				return err
			}
			if present {
				updated++
			} else {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

// LoadKPIs upserts the KPI table keyed on (metric_name, grouping_key), with
// the same all-or-nothing transactional boundary as LoadShifts.
func (l *Loader) LoadKPIs(ctx context.Context, table model.KPITable) (inserted, updated int, err error) {
	err = l.inTx(ctx, "kpis", func(tx *sql.Tx) error {
		if l.fullRefresh {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kpis`); err != nil {
				return err
			}
		}

		exists, err := tx.PrepareContext(ctx, l.rebind(`SELECT EXISTS (SELECT 1 FROM kpis WHERE metric_name = ? AND grouping_key = ?)`))
		if err != nil {
			return err
		}
		defer exists.Close()

		upsert, err := tx.PrepareContext(ctx, l.rebind(`
			INSERT INTO kpis (metric_name, grouping_key, value, computed_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (metric_name, grouping_key) DO UPDATE SET
				value       = excluded.value,
				computed_at = excluded.computed_at`))
		if err != nil {
			return err
		}
		defer upsert.Close()

		for _, row := range table {
			var present bool
			if err := exists.QueryRowContext(ctx, row.MetricName, row.GroupingKey).Scan(&present); err != nil {
				return err
			}
			if _, err := upsert.ExecContext(ctx,
				row.MetricName, row.GroupingKey, row.Value, row.ComputedAt); err != nil {
				return err
			}
			if present {
				updated++
			} else {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

// inTx runs fn inside one transaction, rolling back on any failure and
// wrapping it as a LoadError.
func (l *Loader) inTx(ctx context.Context, table string, fn func(*sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return &LoadError{Table: table, Err: err}
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return &LoadError{Table: table, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &LoadError{Table: table, Err: err}
	}
	return nil
}

// rebind converts `?` placeholders to `$N` for the Postgres driver.
func (l *Loader) rebind(query string) string {
	if l.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
