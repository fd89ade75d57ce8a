package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"shifts-etl/internal/config"
	"shifts-etl/internal/pipeline"
	"shifts-etl/internal/store"
)

// main executes exactly one pipeline run: exit 0 on success, 1 on any fatal
// stage error. The summary counts gathered so far are always logged.
func main() {
	_ = godotenv.Load()

	log := newLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	db, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal("failed to open target store", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout)
	defer cancel()

	if err := store.EnsureSchema(ctx, db); err != nil {
		log.Fatal("failed to ensure schema", zap.Error(err))
	}

	tracking, err := store.OpenTracking(cfg.TrackingDBPath)
	if err != nil {
		log.Fatal("failed to open tracking store", zap.Error(err))
	}
	defer tracking.Close()

	runner := &pipeline.Runner{
		Config:   cfg,
		Client:   &http.Client{Timeout: cfg.APITimeout},
		DB:       db,
		Dialect:  store.DialectPostgres,
		Tracking: tracking,
		Log:      log,
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		log.Error("run failed",
			zap.String("run_id", summary.RunID),
			zap.Int("extracted", summary.Extracted),
			zap.Int("transformed", summary.Transformed),
			zap.Int("rejected", summary.Rejected),
			zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if os.Getenv("ETL_ENV") == "production" {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	return log
}
