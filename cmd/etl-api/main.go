package main

import (
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	_ "shifts-etl/docs"
	"shifts-etl/internal/api"
	"shifts-etl/internal/config"
	"shifts-etl/internal/store"
)

// @title Shifts ETL Run History API
// @version 1.0
// @description Read-only run history for the shifts ETL pipeline.
// @BasePath /api/v1
func main() {
	_ = godotenv.Load()

	log := newLogger()
	defer log.Sync()

	cfg := config.LoadServer()

	tracking, err := store.OpenTracking(cfg.TrackingDBPath)
	if err != nil {
		log.Fatal("failed to open tracking store", zap.Error(err))
	}
	defer tracking.Close()

	r := api.NewRouter(tracking, log)

	addr := ":" + cfg.ServerPort
	log.Info("run history API listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal("server stopped", zap.Error(err))
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
