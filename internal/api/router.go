package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"shifts-etl/internal/api/handler"
	"shifts-etl/internal/store"
)

// NewRouter builds the read-only run-history API. Runs are started by the
// batch binary, never over HTTP.
func NewRouter(tracking *store.Tracking, log *zap.Logger) chi.Router {
	h := handler.NewRunHandler(tracking, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{id}", h.GetRun)
		r.Get("/runs/{id}/logs", h.GetRunLogs)
	})

	r.Get("/swagger/*", httpSwagger.Handler())

	return r
}
