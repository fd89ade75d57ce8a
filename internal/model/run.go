package model

import "time"

// Run statuses recorded in the tracking store.
const (
	RunStatusPending       = "pending"
	RunStatusRunning       = "running"
	RunStatusExtracting    = "extracting"
	RunStatusLoadingShifts = "loading_shifts"
	RunStatusComputingKPIs = "computing_kpis"
	RunStatusLoadingKPIs   = "loading_kpis"
	RunStatusCompleted     = "completed"
	RunStatusFailed        = "failed"
)

// RunSummary carries the counts gathered by one pipeline run. On a failed
// run it holds whatever was counted before the first fatal error.
type RunSummary struct {
	RunID          string    `json:"run_id"`
	Extracted      int       `json:"extracted"`
	Transformed    int       `json:"transformed"`
	Rejected       int       `json:"rejected"`
	ShiftsInserted int       `json:"shifts_inserted"`
	ShiftsUpdated  int       `json:"shifts_updated"`
	KPIsInserted   int       `json:"kpis_inserted"`
	KPIsUpdated    int       `json:"kpis_updated"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Run is one row of run history from the tracking store.
type Run struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"`
	Summary    *RunSummary `json:"summary,omitempty"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// RunLog is one structured log line persisted for a run stage.
type RunLog struct {
	ID        int64                  `json:"id"`
	RunID     string                 `json:"run_id"`
	Stage     string                 `json:"stage"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
