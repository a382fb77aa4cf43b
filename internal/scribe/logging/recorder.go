package logging

import "time"

// Entry is a log line persisted for later inspection.
type Entry struct {
	JobID     *int64
	Level     Level
	Message   string
	Timestamp time.Time
}

// Sink receives entries from a recording logger.
type Sink interface {
	Record(Entry) error
}

// WithRecorder returns a Logger that forwards to base and also records to sink
// every non-debug line tagged with a job id, plus every warning and error.
// Sink failures are dropped.
func WithRecorder(base Logger, sink Sink) Logger {
	return &recorder{base: base, sink: sink, now: time.Now}
}

type recorder struct {
	base  Logger
	sink  Sink
	jobID *int64
	now   func() time.Time
}

func (r *recorder) Debug(msg string, fields ...Field) {
	r.base.Debug(msg, fields...)
	r.record(LevelDebug, msg, nil, fields)
}

func (r *recorder) Info(msg string, fields ...Field) {
	r.base.Info(msg, fields...)
	r.record(LevelInfo, msg, nil, fields)
}

func (r *recorder) Warn(msg string, fields ...Field) {
	r.base.Warn(msg, fields...)
	r.record(LevelWarn, msg, nil, fields)
}

func (r *recorder) Error(msg string, err error, fields ...Field) {
	r.base.Error(msg, err, fields...)
	r.record(LevelError, msg, err, fields)
}

func (r *recorder) With(fields ...Field) Logger {
	child := &recorder{base: r.base.With(fields...), sink: r.sink, jobID: r.jobID, now: r.now}
	if id, ok := jobField(fields); ok {
		child.jobID = &id
	}
	return child
}

func (r *recorder) record(level Level, msg string, err error, fields []Field) {
	jobID := r.jobID
	if id, ok := jobField(fields); ok {
		jobID = &id
	}
	if level == LevelDebug || (jobID == nil && level < LevelWarn) {
		return
	}
	if err == nil {
		err = errField(fields)
	}
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	_ = r.sink.Record(Entry{JobID: jobID, Level: level, Message: msg, Timestamp: r.now()})
}

func errField(fields []Field) error {
	for _, f := range fields {
		if err, ok := f.Value.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

func jobField(fields []Field) (int64, bool) {
	for i := len(fields) - 1; i >= 0; i-- {
		if fields[i].Key != JobKey {
			continue
		}
		switch v := fields[i].Value.(type) {
		case int64:
			return v, true
		case int:
			return int64(v), true
		}
	}
	return 0, false
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...Field)        {}
func (nopLogger) Info(string, ...Field)         {}
func (nopLogger) Warn(string, ...Field)         {}
func (nopLogger) Error(string, error, ...Field) {}
func (n nopLogger) With(...Field) Logger        { return n }
