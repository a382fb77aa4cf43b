// Package logging provides the structured logger shared by every scribe component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents a log severity level. The zero value is LevelInfo.
type Level int

const (
	LevelDebug Level = iota - 1
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level. Unknown values map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// JobKey is the field key that correlates a log line with a job.
const JobKey = "job_id"

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float64 field
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field for Warn lines, which take no error argument.
func Err(err error) Field {
	return Field{Key: "reason", Value: err}
}

// Job creates the job correlation field.
func Job(id int64) Field {
	return Field{Key: JobKey, Value: id}
}

// Logger is the logging contract handed to every component.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	With(fields ...Field) Logger
}

// Config configures the logger
type Config struct {
	// LogDir is the directory where log files are stored (default: ~/.nota/logs)
	LogDir string
	// Prefix is the log file prefix (e.g., "scribe" produces scribe-YYYY-MM-DD.log)
	Prefix string
	// RetentionDays is the number of days to retain old log files (default: 30)
	RetentionDays int
	// Component is attached to every line as the "component" field
	Component string
	// MinLevel is the minimum log level to write
	MinLevel Level
	// Console mirrors log lines to stderr in human-readable form
	Console bool
	// Writer replaces the rotating file when set
	Writer io.Writer
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	homeDir, _ := os.UserHomeDir()
	return Config{
		LogDir:        filepath.Join(homeDir, ".nota", "logs"),
		Prefix:        "scribe",
		RetentionDays: 30,
		MinLevel:      LevelInfo,
	}
}

// FileLogger implements Logger on top of zerolog with daily file rotation.
type FileLogger struct {
	zl   zerolog.Logger
	file *rotatingFile
}

// New creates a new FileLogger with the given configuration
func New(config Config) (*FileLogger, error) {
	if config.Prefix == "" {
		config.Prefix = "scribe"
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = 30
	}

	var (
		rf  *rotatingFile
		out io.Writer
	)
	if config.Writer != nil {
		out = config.Writer
	} else {
		if config.LogDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			config.LogDir = filepath.Join(homeDir, ".nota", "logs")
		}
		if err := os.MkdirAll(config.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rf = &rotatingFile{dir: config.LogDir, prefix: config.Prefix, retentionDays: config.RetentionDays}
		if err := rf.rotateIfNeeded(); err != nil {
			return nil, err
		}
		out = rf
	}

	if config.Console {
		out = zerolog.MultiLevelWriter(out, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx := zerolog.New(out).Level(config.MinLevel.zerolog()).With().Timestamp()
	if config.Component != "" {
		ctx = ctx.Str("component", config.Component)
	}
	l := &FileLogger{zl: ctx.Logger(), file: rf}

	if rf != nil {
		if err := rf.cleanOldLogs(); err != nil {
			l.Error("failed to clean old logs", err)
		}
	}
	return l, nil
}

// Debug logs a debug message
func (l *FileLogger) Debug(msg string, fields ...Field) {
	l.log(LevelDebug, msg, nil, fields)
}

// Info logs an informational message
func (l *FileLogger) Info(msg string, fields ...Field) {
	l.log(LevelInfo, msg, nil, fields)
}

// Warn logs a warning
func (l *FileLogger) Warn(msg string, fields ...Field) {
	l.log(LevelWarn, msg, nil, fields)
}

// Error logs an error message
func (l *FileLogger) Error(msg string, err error, fields ...Field) {
	l.log(LevelError, msg, err, fields)
}

// With returns a logger that adds fields to every line.
func (l *FileLogger) With(fields ...Field) Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &FileLogger{zl: ctx.Logger(), file: l.file}
}

// WithComponent returns a new logger tagged with the given component name.
func (l *FileLogger) WithComponent(component string) Logger {
	return &FileLogger{zl: l.zl.With().Str("component", component).Logger(), file: l.file}
}

// Close closes the underlying log file.
func (l *FileLogger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// LogPath returns the path to the current log file, or "" when writing elsewhere.
func (l *FileLogger) LogPath() string {
	if l.file == nil {
		return ""
	}
	return l.file.path()
}

func (l *FileLogger) log(level Level, msg string, err error, fields []Field) {
	ev := l.zl.WithLevel(level.zerolog())
	if ev == nil {
		return
	}
	for _, f := range fields {
		ev = appendField(ev, f)
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
}

func appendField(ev *zerolog.Event, f Field) *zerolog.Event {
	switch v := f.Value.(type) {
	case string:
		return ev.Str(f.Key, v)
	case int:
		return ev.Int(f.Key, v)
	case int64:
		return ev.Int64(f.Key, v)
	case float64:
		return ev.Float64(f.Key, v)
	case bool:
		return ev.Bool(f.Key, v)
	case time.Duration:
		return ev.Str(f.Key, v.String())
	case error:
		return ev.AnErr(f.Key, v)
	default:
		return ev.Interface(f.Key, v)
	}
}

// rotatingFile writes to prefix-YYYY-MM-DD.log and switches files at UTC midnight.
type rotatingFile struct {
	dir           string
	prefix        string
	retentionDays int

	mu          sync.Mutex
	file        *os.File
	currentDate string
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.rotateLocked(); err != nil {
		fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		return 0, err
	}
	return r.file.Write(p)
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *rotatingFile) path() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Name()
	}
	return r.pathFor(time.Now().UTC().Format("2006-01-02"))
}

func (r *rotatingFile) pathFor(date string) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s-%s.log", r.prefix, date))
}

func (r *rotatingFile) rotateIfNeeded() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotateLocked()
}

func (r *rotatingFile) rotateLocked() error {
	today := time.Now().UTC().Format("2006-01-02")
	if r.currentDate == today && r.file != nil {
		return nil
	}

	if r.file != nil {
		r.file.Close()
		r.file = nil
	}

	file, err := os.OpenFile(r.pathFor(today), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	r.file = file
	r.currentDate = today
	return nil
}

func (r *rotatingFile) cleanOldLogs() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}

	prefix := r.prefix + "-"
	cutoff := time.Now().UTC().AddDate(0, 0, -r.retentionDays)

	var toDelete []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".log") {
			continue
		}

		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".log")
		logDate, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}

		if logDate.Before(cutoff) {
			toDelete = append(toDelete, filepath.Join(r.dir, name))
		}
	}

	sort.Strings(toDelete)
	for _, path := range toDelete {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove old log file %s: %w", path, err)
		}
	}

	return nil
}
