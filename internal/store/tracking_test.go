package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"shifts-etl/internal/model"
)

func openTestTracking(t *testing.T) *Tracking {
	t.Helper()
	tracking, err := OpenTracking(filepath.Join(t.TempDir(), "etl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { tracking.Close() })
	return tracking
}

func TestTrackingRunLifecycle(t *testing.T) {
	tracking := openTestTracking(t)

	require.NoError(t, tracking.CreateRun("run-1"))
	require.NoError(t, tracking.UpdateRunStatus("run-1", model.RunStatusExtracting))

	run, err := tracking.GetRun("run-1")
	require.NoError(t, err)
	require.Equal(t, model.RunStatusExtracting, run.Status)
	require.Nil(t, run.Summary)
	require.Nil(t, run.FinishedAt)

	summary := model.RunSummary{RunID: "run-1", Extracted: 10, Transformed: 8, Rejected: 2}
	require.NoError(t, tracking.FinishRun("run-1", summary, nil))

	run, err = tracking.GetRun("run-1")
	require.NoError(t, err)
	require.Equal(t, model.RunStatusCompleted, run.Status)
	require.NotNil(t, run.Summary)
	require.Equal(t, 8, run.Summary.Transformed)
	require.NotNil(t, run.FinishedAt)
	require.Empty(t, run.Error)
}

func TestTrackingFailedRunKeepsError(t *testing.T) {
	tracking := openTestTracking(t)

	require.NoError(t, tracking.CreateRun("run-2"))
	require.NoError(t, tracking.FinishRun("run-2", model.RunSummary{RunID: "run-2", Extracted: 4}, errors.New("load shifts: boom")))

	run, err := tracking.GetRun("run-2")
	require.NoError(t, err)
	require.Equal(t, model.RunStatusFailed, run.Status)
	require.Equal(t, "load shifts: boom", run.Error)
	require.Equal(t, 4, run.Summary.Extracted)
}

func TestTrackingListRunsNewestFirst(t *testing.T) {
	tracking := openTestTracking(t)

	require.NoError(t, tracking.CreateRun("run-a"))
	require.NoError(t, tracking.CreateRun("run-b"))

	runs, err := tracking.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
}

func TestTrackingGetRunMissing(t *testing.T) {
	tracking := openTestTracking(t)

	_, err := tracking.GetRun("nope")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTrackingRunLogs(t *testing.T) {
	tracking := openTestTracking(t)

	require.NoError(t, tracking.CreateRun("run-3"))
	require.NoError(t, tracking.AppendLog("run-3", "transform", "info", "transformed shift records", map[string]interface{}{
		"extracted": 12,
		"rejected":  1,
	}))
	require.NoError(t, tracking.AppendLog("run-3", "load", "info", "loaded shifts", nil))

	logs, err := tracking.GetRunLogs("run-3", 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "transform", logs[0].Stage)
	require.EqualValues(t, 12, logs[0].Fields["extracted"])
	require.Equal(t, "load", logs[1].Stage)
	require.Nil(t, logs[1].Fields)
}
