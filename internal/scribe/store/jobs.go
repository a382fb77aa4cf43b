package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const jobColumns = `id, filename, source_path, status, created_at, started_at, completed_at,
	error_message, transcript_length, output_path, suggested_filename, final_filename,
	naming_confidence, manual_override`

// CreateJob inserts a pending job for the file at sourcePath.
func (s *Store) CreateJob(ctx context.Context, filename, sourcePath string) (*Job, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (filename, source_path, status, created_at) VALUES (?, ?, ?, ?)`,
		filename, sourcePath, StatusPending, s.timestamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading job id: %w", err)
	}
	return s.GetJob(ctx, id)
}

// TransitionOption adds fields to a status transition.
type TransitionOption func(*transition)

type transition struct {
	errorMessage *string
}

// WithErrorMessage records why a job failed.
func WithErrorMessage(msg string) TransitionOption {
	return func(t *transition) {
		t.errorMessage = &msg
	}
}

// Transition moves a job to status to. Entering processing stamps started_at;
// entering completed or failed stamps completed_at. Any move that is not an
// edge of the state machine, including every move out of a terminal state,
// is rejected with an error matching ErrInvalidTransition.
func (s *Store) Transition(ctx context.Context, id int64, to Status, opts ...TransitionOption) error {
	var t transition
	for _, opt := range opts {
		opt(&t)
	}

	from, ok := sourceStatus(to)
	if !ok {
		return s.rejection(ctx, id, to)
	}

	now := s.timestamp()
	var (
		query string
		args  []any
	)
	switch to {
	case StatusProcessing:
		query = `UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`
		args = []any{to, now, id, from}
	default:
		query = `UPDATE jobs SET status = ?, completed_at = ?, error_message = COALESCE(?, error_message)
			WHERE id = ? AND status = ?`
		args = []any{to, now, t.errorMessage, id, from}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating job %d status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return s.rejection(ctx, id, to)
	}
	return nil
}

// SetTranscriptLength records the transcript length of a non-terminal job.
func (s *Store) SetTranscriptLength(ctx context.Context, id int64, length int) error {
	return s.updateActive(ctx, id, `transcript_length = ?`, length)
}

// SetOutputPath records the generated document path of a non-terminal job.
func (s *Store) SetOutputPath(ctx context.Context, id int64, path string) error {
	return s.updateActive(ctx, id, `output_path = ?`, path)
}

// SetNaming records the naming decision of a non-terminal job.
func (s *Store) SetNaming(ctx context.Context, id int64, n Naming) error {
	return s.updateActive(ctx, id,
		`suggested_filename = ?, final_filename = ?, naming_confidence = ?, manual_override = ?`,
		n.Suggested, n.Final, n.Confidence, boolToInt(n.ManualOverride),
	)
}

func (s *Store) updateActive(ctx context.Context, id int64, set string, args ...any) error {
	query := `UPDATE jobs SET ` + set + ` WHERE id = ? AND status IN (?, ?)`
	args = append(args, id, StatusPending, StatusProcessing)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return s.rejection(ctx, id, "")
	}
	return nil
}

// rejection explains why a guarded update matched no row.
func (s *Store) rejection(ctx context.Context, id int64, to Status) error {
	var current Status
	err := s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading job %d status: %w", id, err)
	}
	return &TransitionError{JobID: id, From: current, To: to}
}

// GetJob returns a job by id.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

// ListJobs returns jobs newest first and the total number matching the filter.
func (s *Store) ListJobs(ctx context.Context, f JobFilter) ([]*Job, int, error) {
	var (
		where string
		args  []any
	)
	if f.Status != "" {
		where = ` WHERE status = ?`
		args = append(args, f.Status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting jobs: %w", err)
	}

	limit := clampLimit(f.Limit, DefaultJobLimit)
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating jobs: %w", err)
	}
	return jobs, total, nil
}

// Stats returns job counts. Today counts jobs created since local midnight;
// SuccessRate is completed / (completed + failed), or 0 when neither exists.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByStatus: map[Status]int{
		StatusPending:    0,
		StatusProcessing: 0,
		StatusCompleted:  0,
		StatusFailed:     0,
	}}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting jobs by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		st.ByStatus[status] = n
		st.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}

	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE created_at >= ?`, formatTime(midnight),
	).Scan(&st.Today); err != nil {
		return nil, fmt.Errorf("counting today's jobs: %w", err)
	}

	finished := st.ByStatus[StatusCompleted] + st.ByStatus[StatusFailed]
	if finished > 0 {
		st.SuccessRate = float64(st.ByStatus[StatusCompleted]) / float64(finished)
	}
	return st, nil
}

// DeleteJobsBefore removes jobs created before cutoff together with their
// log entries, and returns the number of jobs removed.
func (s *Store) DeleteJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning retention sweep: %w", err)
	}
	defer tx.Rollback()

	c := formatTime(cutoff)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM logs WHERE job_id IN (SELECT id FROM jobs WHERE created_at < ?)`, c,
	); err != nil {
		return 0, fmt.Errorf("deleting job logs: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE created_at < ?`, c)
	if err != nil {
		return 0, fmt.Errorf("deleting jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing retention sweep: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*Job, error) {
	var (
		j                        Job
		createdAt                string
		startedAt, completedAt   sql.NullString
		errorMessage, outputPath sql.NullString
		suggested, final         sql.NullString
		transcriptLength         sql.NullInt64
		confidence               sql.NullFloat64
		manualOverride           int
	)
	err := sc.Scan(&j.ID, &j.Filename, &j.SourcePath, &j.Status, &createdAt, &startedAt, &completedAt,
		&errorMessage, &transcriptLength, &outputPath, &suggested, &final, &confidence, &manualOverride)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if j.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if j.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("parsing completed_at: %w", err)
	}

	j.ErrorMessage = errorMessage.String
	j.OutputPath = outputPath.String
	j.SuggestedFilename = suggested.String
	j.FinalFilename = final.String
	j.ManualOverride = manualOverride != 0
	if transcriptLength.Valid {
		n := int(transcriptLength.Int64)
		j.TranscriptLength = &n
	}
	if confidence.Valid {
		c := confidence.Float64
		j.NamingConfidence = &c
	}
	return &j, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
