package store

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// sourceStatus returns the only status a job may move to s from.
func sourceStatus(to Status) (Status, bool) {
	switch to {
	case StatusProcessing:
		return StatusPending, true
	case StatusCompleted, StatusFailed:
		return StatusProcessing, true
	}
	return "", false
}

// CanTransition reports whether from -> to is an edge of the job state machine.
func CanTransition(from, to Status) bool {
	src, ok := sourceStatus(to)
	return ok && src == from
}

var (
	// ErrNotFound is returned when a job does not exist.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when a write is rejected by the state machine.
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// TransitionError describes a rejected write.
type TransitionError struct {
	JobID int64
	From  Status
	To    Status
}

func (e *TransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("job %d is %s and can no longer be modified", e.JobID, e.From)
	}
	return fmt.Sprintf("job %d: cannot move from %s to %s", e.JobID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Job is one ingested file and its pipeline outcome.
type Job struct {
	ID                int64      `json:"id"`
	Filename          string     `json:"filename"`
	SourcePath        string     `json:"source_path"`
	Status            Status     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	TranscriptLength  *int       `json:"transcript_length,omitempty"`
	OutputPath        string     `json:"output_path,omitempty"`
	SuggestedFilename string     `json:"suggested_filename,omitempty"`
	FinalFilename     string     `json:"final_filename,omitempty"`
	NamingConfidence  *float64   `json:"naming_confidence,omitempty"`
	ManualOverride    bool       `json:"manual_override"`
}

// Naming carries the accepted naming decision for a job.
type Naming struct {
	Suggested      string
	Final          string
	Confidence     float64
	ManualOverride bool
}

// LogEntry is a persisted log line, optionally tied to a job.
type LogEntry struct {
	ID        int64     `json:"id"`
	JobID     *int64    `json:"job_id,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats aggregates job counts.
type Stats struct {
	Total       int            `json:"total"`
	ByStatus    map[Status]int `json:"by_status"`
	Today       int            `json:"today"`
	SuccessRate float64        `json:"success_rate"`
}

// JobFilter selects and paginates jobs.
type JobFilter struct {
	Status Status
	Limit  int
	Offset int
}

// LogFilter selects and paginates log entries.
type LogFilter struct {
	JobID  *int64
	Level  string
	Limit  int
	Offset int
}

const (
	DefaultJobLimit = 50
	DefaultLogLimit = 100
	MaxLimit        = 1000
)

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
