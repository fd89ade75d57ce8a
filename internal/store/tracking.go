package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"shifts-etl/internal/model"
)

// Tracking is the run-history store. It is a local SQLite database separate
// from the target store: losing it never loses shift data.
type Tracking struct {
	db *sql.DB
}

// OpenTracking opens (and if needed creates) the tracking database.
func OpenTracking(path string) (*Tracking, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open tracking store: %w", err)
	}

	const runs = `
	CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		status        TEXT NOT NULL,
		summary       TEXT,
		error_message TEXT,
		started_at    DATETIME NOT NULL,
		finished_at   DATETIME
	);`
	const logs = `
	CREATE TABLE IF NOT EXISTS run_logs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id     TEXT NOT NULL,
		stage      TEXT NOT NULL,
		level      TEXT NOT NULL,
		message    TEXT NOT NULL,
		fields     TEXT,
		created_at DATETIME NOT NULL
	);`

	if _, err := db.Exec(runs); err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	if _, err := db.Exec(logs); err != nil {
		db.Close()
		return nil, fmt.Errorf("create run_logs table: %w", err)
	}

	return &Tracking{db: db}, nil
}

// Close releases the tracking database handle.
func (t *Tracking) Close() error { return t.db.Close() }

// CreateRun registers a new run in pending state.
func (t *Tracking) CreateRun(runID string) error {
	_, err := t.db.Exec(`INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)`,
		runID, model.RunStatusPending, time.Now().UTC())
	return err
}

// UpdateRunStatus records a stage transition.
func (t *Tracking) UpdateRunStatus(runID, status string) error {
	_, err := t.db.Exec(`UPDATE runs SET status = ? WHERE id = ?`, status, runID)
	return err
}

// FinishRun stores the terminal status, the summary counts and, for failed
// runs, the error message.
func (t *Tracking) FinishRun(runID string, summary model.RunSummary, runErr error) error {
	status := model.RunStatusCompleted
	errMsg := sql.NullString{}
	if runErr != nil {
		status = model.RunStatusFailed
		errMsg = sql.NullString{String: runErr.Error(), Valid: true}
	}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	_, err = t.db.Exec(`UPDATE runs SET status = ?, summary = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		status, string(summaryJSON), errMsg, time.Now().UTC(), runID)
	return err
}

// AppendLog persists one structured log line for a run stage.
func (t *Tracking) AppendLog(runID, stage, level, message string, fields map[string]interface{}) error {
	var fieldsJSON sql.NullString
	if len(fields) > 0 {
		b, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		fieldsJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err := t.db.Exec(`INSERT INTO run_logs (run_id, stage, level, message, fields, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, stage, level, message, fieldsJSON, time.Now().UTC())
	return err
}

// ListRuns returns run history, newest first.
func (t *Tracking) ListRuns(limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.db.Query(`SELECT id, status, summary, error_message, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun fetches one run by ID.
func (t *Tracking) GetRun(runID string) (model.Run, error) {
	row := t.db.QueryRow(`SELECT id, status, summary, error_message, started_at, finished_at
		FROM runs WHERE id = ?`, runID)
	return scanRun(row.Scan)
}

// GetRunLogs returns the stage logs for a run in insertion order.
func (t *Tracking) GetRunLogs(runID string, limit int) ([]model.RunLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.db.Query(`SELECT id, run_id, stage, level, message, fields, created_at
		FROM run_logs WHERE run_id = ? ORDER BY id LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []model.RunLog
	for rows.Next() {
		var (
			entry  model.RunLog
			fields sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.RunID, &entry.Stage, &entry.Level, &entry.Message, &fields, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if fields.Valid {
			if err := json.Unmarshal([]byte(fields.String), &entry.Fields); err != nil {
				return nil, err
			}
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func scanRun(scan func(dest ...interface{}) error) (model.Run, error) {
	var (
		run        model.Run
		summary    sql.NullString
		errMsg     sql.NullString
		finishedAt sql.NullTime
	)
	if err := scan(&run.ID, &run.Status, &summary, &errMsg, &run.StartedAt, &finishedAt); err != nil {
		return model.Run{}, err
	}
	if summary.Valid {
		var s model.RunSummary
		if err := json.Unmarshal([]byte(summary.String), &s); err != nil {
			return model.Run{}, err
		}
		run.Summary = &s
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return run, nil
}
