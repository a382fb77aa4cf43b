// Package handler implements the HTTP handlers of the scribe API.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/store"
)

// JobReader is the read side of the job store.
type JobReader interface {
	GetJob(ctx context.Context, id int64) (*store.Job, error)
	ListJobs(ctx context.Context, f store.JobFilter) ([]*store.Job, int, error)
	ListLogs(ctx context.Context, f store.LogFilter) ([]*store.LogEntry, error)
	Stats(ctx context.Context) (*store.Stats, error)
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, key string) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// effectiveLimit mirrors the store's clamping so pagination metadata is accurate.
func effectiveLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > store.MaxLimit {
		return store.MaxLimit
	}
	return limit
}
