package handler

import (
	"net/http"
	"strconv"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/api/response"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/store"
)

// NewListLogsHandler returns an http.HandlerFunc for GET /api/logs.
// Query parameters: job_id, level, limit, offset.
func NewListLogsHandler(jobs JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := store.LogFilter{Level: q.Get("level")}

		if v := q.Get("job_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "job_id must be a positive integer", nil)
				return
			}
			f.JobID = &id
		}
		var ok bool
		if f.Limit, ok = queryInt(r, "limit"); !ok {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "limit must be a non-negative integer", nil)
			return
		}
		if f.Offset, ok = queryInt(r, "offset"); !ok {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "offset must be a non-negative integer", nil)
			return
		}

		entries, err := jobs.ListLogs(r.Context(), f)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "failed to list logs", nil)
			return
		}
		if entries == nil {
			entries = []*store.LogEntry{}
		}
		response.JSON(w, entries)
	}
}
