package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/logging"
)

// AppendLog inserts a log entry. A zero Timestamp is replaced with the store clock.
func (s *Store) AppendLog(ctx context.Context, e LogEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (job_id, level, message, timestamp) VALUES (?, ?, ?, ?)`,
		e.JobID, strings.ToUpper(e.Level), e.Message, formatTime(ts),
	)
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}
	return nil
}

// Record implements logging.Sink.
func (s *Store) Record(e logging.Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.AppendLog(ctx, LogEntry{
		JobID:     e.JobID,
		Level:     e.Level.String(),
		Message:   e.Message,
		Timestamp: e.Timestamp,
	})
}

// ListLogs returns log entries newest first.
func (s *Store) ListLogs(ctx context.Context, f LogFilter) ([]*LogEntry, error) {
	var (
		conds []string
		args  []any
	)
	if f.JobID != nil {
		conds = append(conds, "job_id = ?")
		args = append(args, *f.JobID)
	}
	if f.Level != "" {
		conds = append(conds, "level = ?")
		args = append(args, strings.ToUpper(f.Level))
	}

	query := `SELECT id, job_id, level, message, timestamp FROM logs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`

	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, clampLimit(f.Limit, DefaultLogLimit), offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing logs: %w", err)
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		var (
			e     LogEntry
			jobID sql.NullInt64
			ts    string
		)
		if err := rows.Scan(&e.ID, &jobID, &e.Level, &e.Message, &ts); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		if jobID.Valid {
			id := jobID.Int64
			e.JobID = &id
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parsing log timestamp: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating logs: %w", err)
	}
	return entries, nil
}
