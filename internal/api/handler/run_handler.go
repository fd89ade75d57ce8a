package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"shifts-etl/internal/store"
)

// RunHandler serves run history from the tracking store.
type RunHandler struct {
	tracking *store.Tracking
	log      *zap.Logger
}

func NewRunHandler(tracking *store.Tracking, log *zap.Logger) *RunHandler {
	return &RunHandler{tracking: tracking, log: log}
}

// ListRuns lists recent pipeline runs
// @Summary List runs
// @Description Get recent ETL runs with status and summary counts
// @Tags runs
// @Produce json
// @Param limit query int false "Maximum number of runs" default(50)
// @Success 200 {array} model.Run "Recent runs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [get]
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.tracking.ListRuns(limitParam(r, 50))
	if err != nil {
		h.log.Error("failed to list runs", zap.Error(err))
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

// GetRun retrieves one run
// @Summary Get run
// @Description Retrieve one ETL run including its summary counts
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} model.Run "Run details"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs/{id} [get]
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.tracking.GetRun(chi.URLParam(r, "id"))
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("failed to get run", zap.Error(err))
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, run)
}

// GetRunLogs retrieves stage logs for a run
// @Summary Get run logs
// @Description Retrieve structured stage logs recorded during one ETL run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Param limit query int false "Maximum number of log lines" default(100)
// @Success 200 {object} map[string]interface{} "Run logs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs/{id}/logs [get]
func (h *RunHandler) GetRunLogs(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	logs, err := h.tracking.GetRunLogs(runID, limitParam(r, 100))
	if err != nil {
		h.log.Error("failed to get run logs", zap.Error(err))
		http.Error(w, "Failed to get run logs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{
		"run_id": runID,
		"logs":   logs,
		"count":  len(logs),
	})
}

func limitParam(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
