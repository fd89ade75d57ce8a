package pipeline_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shifts-etl/internal/config"
	"shifts-etl/internal/model"
	"shifts-etl/internal/pipeline"
	"shifts-etl/internal/store"
)

func openTargetDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
	CREATE TABLE shifts (
		shift_id    TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		start_time  TIMESTAMP NOT NULL,
		end_time    TIMESTAMP NOT NULL,
		status      TEXT NOT NULL,
		location    TEXT
	);
	CREATE TABLE kpis (
		metric_name  TEXT NOT NULL,
		grouping_key TEXT NOT NULL,
		value        REAL NOT NULL,
		computed_at  TIMESTAMP NOT NULL,
		PRIMARY KEY (metric_name, grouping_key)
	);`)
	require.NoError(t, err)
	return db
}

// shiftsAPI serves the fixture in two pages, including one invalid record.
func shiftsAPI(t *testing.T) *httptest.Server {
	t.Helper()
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	ms := func(d time.Duration) int64 { return day.Add(d).UnixMilli() }

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var page map[string]interface{}
		switch r.URL.Path {
		case "/":
			page = map[string]interface{}{
				"results": []map[string]interface{}{
					{"id": "s1", "employee_id": "E1", "start": ms(8 * time.Hour), "finish": ms(12 * time.Hour), "status": "completed"},
					{"id": "s2", "employee_id": "E1", "start": ms(13 * time.Hour), "finish": ms(16 * time.Hour), "status": "completed"},
				},
				"links": map[string]string{"base": server.URL, "next": "/page2"},
			}
		case "/page2":
			page = map[string]interface{}{
				"results": []map[string]interface{}{
					{"id": "s3", "employee_id": "E1", "start": ms(9 * time.Hour), "finish": ms(10 * time.Hour), "status": "cancelled"},
					{"id": "s4", "employee_id": "E2", "start": ms(12 * time.Hour), "finish": ms(9 * time.Hour), "status": "completed"}, // invalid: ends before start
				},
				"links": map[string]string{"base": server.URL, "next": ""},
			}
		default:
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(page)
	}))
	t.Cleanup(server.Close)
	return server
}

func newRunner(t *testing.T, db *sql.DB, baseURL string, tracking *store.Tracking) *pipeline.Runner {
	t.Helper()
	return &pipeline.Runner{
		Config: &config.Config{
			APIBaseURL:     baseURL,
			APIPageSize:    2,
			APIMaxAttempts: 2,
		},
		Client:   http.DefaultClient,
		DB:       db,
		Dialect:  store.DialectSQLite,
		Tracking: tracking,
		Log:      zap.NewNop(),
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func TestRunEndToEnd(t *testing.T) {
	db := openTargetDB(t)
	server := shiftsAPI(t)

	summary, err := newRunner(t, db, server.URL, nil).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 4, summary.Extracted)
	require.Equal(t, 3, summary.Transformed)
	require.Equal(t, 1, summary.Rejected)
	require.Equal(t, 3, summary.ShiftsInserted)
	require.Equal(t, 0, summary.ShiftsUpdated)
	require.NotZero(t, summary.KPIsInserted)

	require.Equal(t, 3, countRows(t, db, "shifts"))

	// KPIs computed from the in-memory table: E1 worked 7 completed hours,
	// one of three shifts cancelled.
	var hours float64
	require.NoError(t, db.QueryRow(`SELECT value FROM kpis WHERE metric_name = ? AND grouping_key = 'E1'`,
		model.MetricTotalHoursWorked).Scan(&hours))
	require.InDelta(t, 7.0, hours, 1e-9)

	var rate float64
	require.NoError(t, db.QueryRow(`SELECT value FROM kpis WHERE metric_name = ? AND grouping_key = 'E1'`,
		model.MetricCancellationRate).Scan(&rate))
	require.InDelta(t, 1.0/3.0, rate, 1e-9)
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	db := openTargetDB(t)
	server := shiftsAPI(t)
	runner := newRunner(t, db, server.URL, nil)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	shiftsAfterFirst := countRows(t, db, "shifts")
	kpisAfterFirst := countRows(t, db, "kpis")

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, shiftsAfterFirst, countRows(t, db, "shifts"))
	require.Equal(t, kpisAfterFirst, countRows(t, db, "kpis"))
	require.Equal(t, 0, summary.ShiftsInserted)
	require.Equal(t, 3, summary.ShiftsUpdated)
	require.Equal(t, 0, summary.KPIsInserted)
}

func TestRunPropagatesExtractionFailure(t *testing.T) {
	db := openTargetDB(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	summary, err := newRunner(t, db, server.URL, nil).Run(context.Background())

	var extractErr *pipeline.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	require.Zero(t, summary.Transformed)
	require.Equal(t, 0, countRows(t, db, "shifts"))
	require.Equal(t, 0, countRows(t, db, "kpis"))
}

func TestRunRecordsHistory(t *testing.T) {
	db := openTargetDB(t)
	server := shiftsAPI(t)

	tracking, err := store.OpenTracking(filepath.Join(t.TempDir(), "etl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { tracking.Close() })

	summary, err := newRunner(t, db, server.URL, tracking).Run(context.Background())
	require.NoError(t, err)

	run, err := tracking.GetRun(summary.RunID)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusCompleted, run.Status)
	require.NotNil(t, run.Summary)
	require.Equal(t, summary.Transformed, run.Summary.Transformed)

	logs, err := tracking.GetRunLogs(summary.RunID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
}

func TestRunFailureRecordsPartialSummary(t *testing.T) {
	db := openTargetDB(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	tracking, err := store.OpenTracking(filepath.Join(t.TempDir(), "etl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { tracking.Close() })

	summary, runErr := newRunner(t, db, server.URL, tracking).Run(context.Background())
	require.Error(t, runErr)

	run, err := tracking.GetRun(summary.RunID)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusFailed, run.Status)
	require.NotEmpty(t, run.Error)
}
