package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/api/response"
)

// Submitter queues a file for processing.
type Submitter interface {
	Supported(path string) bool
	Enqueue(path string) error
}

// ProcessResult is the body of an accepted process request.
type ProcessResult struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

// NewProcessHandler returns an http.HandlerFunc for POST /api/process.
// The file runs through the pipeline in the background; the job appears in
// /api/jobs once it starts.
func NewProcessHandler(svc Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid JSON body", nil)
			return
		}
		if strings.TrimSpace(req.Path) == "" {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "path is required", nil)
			return
		}

		path, err := filepath.Abs(req.Path)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "invalid path", nil)
			return
		}
		info, err := os.Stat(path)
		if err != nil {
			response.Error(w, http.StatusNotFound, response.CodeNotFound, "file not found", nil)
			return
		}
		if !info.Mode().IsRegular() {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "path is not a regular file", nil)
			return
		}
		if !svc.Supported(path) {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "unsupported file type",
				map[string]string{"extension": filepath.Ext(path)})
			return
		}

		switch err := svc.Enqueue(path); {
		case errors.Is(err, scribe.ErrInProgress):
			response.Error(w, http.StatusConflict, response.CodeConflict, err.Error(), nil)
		case errors.Is(err, scribe.ErrPipelineUnavailable), errors.Is(err, scribe.ErrStopping):
			response.Error(w, http.StatusServiceUnavailable, response.CodeUnavailable, err.Error(), nil)
		case err != nil:
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "failed to queue file", nil)
		default:
			response.Accepted(w, ProcessResult{Path: path, Status: "queued"})
		}
	}
}
