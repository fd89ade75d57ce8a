package pipeline

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shifts-etl/internal/config"
	"shifts-etl/internal/model"
	"shifts-etl/internal/store"
)

// Runner sequences one pipeline run: extract and transform the shifts feed,
// load the shift table, derive KPIs from the same in-memory table, load the
// KPI table. It owns no retry logic; the extractor retries its own network
// failures and everything else is fatal on first error.
type Runner struct {
	Config   *config.Config
	Client   *http.Client
	DB       *sql.DB
	Dialect  store.Dialect
	Tracking *store.Tracking // optional run history
	Log      *zap.Logger
	Now      func() time.Time // defaults to time.Now
}

// Run executes the pipeline once. The returned summary always carries the
// counts gathered up to the first fatal error; the error itself is the
// failing stage's, unchanged.
func (r *Runner) Run(ctx context.Context) (model.RunSummary, error) {
	now := r.Now
	if now == nil {
		now = time.Now
	}

	summary := model.RunSummary{
		RunID:     uuid.New().String(),
		StartedAt: now().UTC(),
	}
	log := r.Log.With(zap.String("run_id", summary.RunID))

	r.trackCreate(summary.RunID, log)
	log.Info("starting pipeline run")

	// Extract + transform in one pass over the lazy sequence.
	r.trackStatus(summary.RunID, model.RunStatusExtracting, log)
	records := FetchAll(ctx, r.Client, APIConfig{
		BaseURL:     r.Config.APIBaseURL,
		PageSize:    r.Config.APIPageSize,
		MaxAttempts: r.Config.APIMaxAttempts,
	}, log)

	table, counts, err := Transform(records, log)
	summary.Extracted = counts.Extracted
	summary.Transformed = len(table)
	summary.Rejected = counts.Rejected
	if err != nil {
		return r.finish(summary, err, log)
	}
	r.trackLog(summary.RunID, "transform", "transformed shift records", map[string]interface{}{
		"extracted": counts.Extracted,
		"valid":     len(table),
		"rejected":  counts.Rejected,
	}, log)

	loader := store.NewLoader(r.DB, r.Dialect)
	if r.Config.FullRefresh {
		loader = loader.WithFullRefresh()
	}

	r.trackStatus(summary.RunID, model.RunStatusLoadingShifts, log)
	inserted, updated, err := loader.LoadShifts(ctx, table)
	if err != nil {
		return r.finish(summary, err, log)
	}
	summary.ShiftsInserted = inserted
	summary.ShiftsUpdated = updated
	log.Info("loaded shifts", zap.Int("inserted", inserted), zap.Int("updated", updated))

	// KPIs come from the in-memory table, never from a store reread, so they
	// reflect exactly the data this run transformed.
	r.trackStatus(summary.RunID, model.RunStatusComputingKPIs, log)
	kpis := ComputeKPIs(table, now().UTC())

	r.trackStatus(summary.RunID, model.RunStatusLoadingKPIs, log)
	inserted, updated, err = loader.LoadKPIs(ctx, kpis)
	if err != nil {
		return r.finish(summary, err, log)
	}
	summary.KPIsInserted = inserted
	summary.KPIsUpdated = updated
	log.Info("loaded kpis", zap.Int("inserted", inserted), zap.Int("updated", updated))

	return r.finish(summary, nil, log)
}

func (r *Runner) finish(summary model.RunSummary, err error, log *zap.Logger) (model.RunSummary, error) {
	summary.FinishedAt = time.Now().UTC()
	if r.Tracking != nil {
		if terr := r.Tracking.FinishRun(summary.RunID, summary, err); terr != nil {
			log.Warn("failed to record run completion", zap.Error(terr))
		}
	}
	if err != nil {
		log.Error("pipeline run failed", zap.Error(err))
		return summary, err
	}
	log.Info("pipeline run completed",
		zap.Int("extracted", summary.Extracted),
		zap.Int("transformed", summary.Transformed),
		zap.Int("rejected", summary.Rejected),
		zap.Int("shifts_loaded", summary.ShiftsInserted+summary.ShiftsUpdated),
		zap.Int("kpis_loaded", summary.KPIsInserted+summary.KPIsUpdated))
	return summary, nil
}

// Tracking is best effort: a run history hiccup never fails the run.

func (r *Runner) trackCreate(runID string, log *zap.Logger) {
	if r.Tracking == nil {
		return
	}
	if err := r.Tracking.CreateRun(runID); err != nil {
		log.Warn("failed to create run record", zap.Error(err))
		return
	}
	r.trackStatus(runID, model.RunStatusRunning, log)
}

func (r *Runner) trackStatus(runID, status string, log *zap.Logger) {
	if r.Tracking == nil {
		return
	}
	if err := r.Tracking.UpdateRunStatus(runID, status); err != nil {
		log.Warn("failed to update run status", zap.String("status", status), zap.Error(err))
	}
}

func (r *Runner) trackLog(runID, stage, message string, fields map[string]interface{}, log *zap.Logger) {
	if r.Tracking == nil {
		return
	}
	if err := r.Tracking.AppendLog(runID, stage, "info", message, fields); err != nil {
		log.Warn("failed to append run log", zap.Error(err))
	}
}
