package handler

import (
	"context"
	"net/http"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/api/response"
)

// HealthChecker builds the current health report.
type HealthChecker func(ctx context.Context) scribe.Health

// StatusReporter reports the watcher state.
type StatusReporter interface {
	Status() scribe.WatcherStatus
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/health. An
// unhealthy report is still returned in full, with status 503.
func NewHealthHandler(check HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := check(r.Context())
		status := http.StatusOK
		if !h.Healthy {
			status = http.StatusServiceUnavailable
		}
		response.Status(w, status, h)
	}
}

// NewMonitorStatusHandler returns an http.HandlerFunc for GET /api/monitor/status.
func NewMonitorStatusHandler(svc StatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, svc.Status())
	}
}
