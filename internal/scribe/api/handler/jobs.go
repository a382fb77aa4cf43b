package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/api/response"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/store"
)

// NewListJobsHandler returns an http.HandlerFunc for GET /api/jobs.
// Query parameters: status, limit, offset.
func NewListJobsHandler(jobs JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := store.Status(r.URL.Query().Get("status"))
		if status != "" && !status.Valid() {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "unknown status "+strconv.Quote(string(status)), nil)
			return
		}
		limit, ok := queryInt(r, "limit")
		if !ok {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "limit must be a non-negative integer", nil)
			return
		}
		offset, ok := queryInt(r, "offset")
		if !ok {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "offset must be a non-negative integer", nil)
			return
		}

		list, total, err := jobs.ListJobs(r.Context(), store.JobFilter{Status: status, Limit: limit, Offset: offset})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "failed to list jobs", nil)
			return
		}
		if list == nil {
			list = []*store.Job{}
		}
		response.Collection(w, list, response.NewMeta(effectiveLimit(limit, store.DefaultJobLimit), offset, total))
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/jobs/{id}.
func NewGetJobHandler(jobs JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "job id must be a positive integer", nil)
			return
		}

		job, err := jobs.GetJob(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, response.CodeNotFound, "job not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "failed to load job", nil)
			return
		}
		response.JSON(w, job)
	}
}

// NewStatsHandler returns an http.HandlerFunc for GET /api/stats.
func NewStatsHandler(jobs JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := jobs.Stats(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "failed to compute stats", nil)
			return
		}
		response.JSON(w, stats)
	}
}
