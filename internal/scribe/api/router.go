// Package api serves the scribe HTTP surface: health, stats, jobs, logs,
// watcher status and manual processing.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/api/handler"
	mw "github.com/TechnicallyShaun/nota-scribe/internal/scribe/api/middleware"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/api/response"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/logging"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/store"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Logger logging.Logger

	HealthHandler        http.HandlerFunc
	StatsHandler         http.HandlerFunc
	ListJobsHandler      http.HandlerFunc
	GetJobHandler        http.HandlerFunc
	ListLogsHandler      http.HandlerFunc
	MonitorStatusHandler http.HandlerFunc
	ProcessHandler       http.HandlerFunc
}

// NewDependencies wires every handler to the running components. svc may be
// nil when the service was not started; its routes then answer 501.
func NewDependencies(cfg *scribe.Config, st *store.Store, svc *scribe.Service, logger logging.Logger) Dependencies {
	deps := Dependencies{
		Logger: logger,
		HealthHandler: handler.NewHealthHandler(func(ctx context.Context) scribe.Health {
			return scribe.CheckHealth(ctx, cfg, st, svc)
		}),
		StatsHandler:    handler.NewStatsHandler(st),
		ListJobsHandler: handler.NewListJobsHandler(st),
		GetJobHandler:   handler.NewGetJobHandler(st),
		ListLogsHandler: handler.NewListLogsHandler(st),
	}
	if svc != nil {
		deps.MonitorStatusHandler = handler.NewMonitorStatusHandler(svc)
		deps.ProcessHandler = handler.NewProcessHandler(svc)
	}
	return deps
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.CleanPath)
	r.Use(mw.RequestID)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))

	r.Get("/api/health", orNotImplemented(deps.HealthHandler))
	r.Get("/api/stats", orNotImplemented(deps.StatsHandler))

	r.Get("/api/jobs", orNotImplemented(deps.ListJobsHandler))
	r.Get("/api/jobs/{id}", orNotImplemented(deps.GetJobHandler))
	r.Get("/api/logs", orNotImplemented(deps.ListLogsHandler))

	r.Get("/api/monitor/status", orNotImplemented(deps.MonitorStatusHandler))
	r.Post("/api/process", orNotImplemented(deps.ProcessHandler))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, response.CodeNotFound, "no such endpoint", nil)
	})
	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not available", nil)
	}
}
