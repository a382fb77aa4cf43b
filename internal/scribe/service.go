package scribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/inflight"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/logging"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/stabilizer"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/store"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/watcher"
)

// DefaultShutdownGrace bounds how long Run waits for running pipelines.
const DefaultShutdownGrace = 5 * time.Minute

var (
	// ErrInProgress is returned when a path already has a pipeline running.
	ErrInProgress = errors.New("file is already being processed")
	// ErrPipelineUnavailable is returned when the pipeline could not be configured.
	ErrPipelineUnavailable = errors.New("processing pipeline unavailable")
	// ErrStopping is returned for work submitted after shutdown has begun.
	ErrStopping = errors.New("scribe service is stopping")
)

// Outcome says what happened to one admission attempt.
type Outcome int

const (
	// Processed means the file went through the pipeline; see Admission.Job.
	Processed Outcome = iota
	// Duplicate means another worker already holds the path.
	Duplicate
	// Unstable means the file never settled or polling was cancelled.
	Unstable
	// Vanished means the file disappeared before it settled.
	Vanished
	// Unsupported means the extension is not configured for processing.
	Unsupported
	// Unavailable means the pipeline is not configured or the service is stopping.
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Processed:
		return "processed"
	case Duplicate:
		return "duplicate"
	case Unstable:
		return "unstable"
	case Vanished:
		return "vanished"
	case Unsupported:
		return "unsupported"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Admission is the result of Handle.
type Admission struct {
	Outcome Outcome
	Job     *store.Job
	Err     error
}

// WatcherStatus describes the watcher for status surfaces.
type WatcherStatus struct {
	Running      bool       `json:"running"`
	WatchFolder  string     `json:"watch_folder"`
	FolderExists bool       `json:"folder_exists"`
	InFlight     []string   `json:"in_flight"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	Problems     []string   `json:"problems,omitempty"`
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithWatcher replaces the inotify watcher.
func WithWatcher(w watcher.FileWatcher) ServiceOption {
	return func(s *Service) {
		s.watcher = w
	}
}

// WithDetector replaces the stability detector built from the config.
func WithDetector(d *stabilizer.Detector) ServiceOption {
	return func(s *Service) {
		s.detector = d
	}
}

// WithShutdownGrace sets how long Run waits for running pipelines on exit.
func WithShutdownGrace(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.grace = d
	}
}

// WithClock sets the time source used for retention.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// Service admits files from the watch folder and runs one worker per file.
type Service struct {
	cfg      *Config
	proc     *Processor
	store    *store.Store
	logger   logging.Logger
	guard    *inflight.Guard
	detector *stabilizer.Detector
	sem      *semaphore.Weighted
	watcher  watcher.FileWatcher
	grace    time.Duration
	now      func() time.Time

	wg sync.WaitGroup

	mu        sync.Mutex
	running   bool
	stopping  bool
	startedAt *time.Time
	problems  []string
}

// NewService creates a Service. proc may be nil when the pipeline is not
// configured; the service then reports itself as degraded.
func NewService(cfg *Config, proc *Processor, st *store.Store, logger logging.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Service{
		cfg:      cfg,
		proc:     proc,
		store:    st,
		logger:   logger,
		guard:    inflight.New(),
		detector: stabilizer.New(cfg.StabilityWait()),
		grace:    DefaultShutdownGrace,
		now:      time.Now,
	}
	if cfg.Processing.MaxConcurrent > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.Processing.MaxConcurrent))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle runs the full admission path for one detected file: in-flight
// guard, stability check, extension filter, then the pipeline. It blocks
// until the pipeline finishes. Pipelines are not cancelled by ctx; only the
// stability wait and the wait for a free slot are.
func (s *Service) Handle(ctx context.Context, path string) Admission {
	log := s.logger.With(logging.String("path", path), logging.String("run_id", uuid.NewString()))

	if s.proc == nil {
		log.Warn("pipeline unavailable, ignoring file")
		return Admission{Outcome: Unavailable, Err: ErrPipelineUnavailable}
	}
	if !s.guard.TryAcquire(path) {
		log.Debug("file already in flight")
		return Admission{Outcome: Duplicate}
	}
	defer s.guard.Release(path)

	res := s.detector.Check(ctx, path)
	switch res.Outcome {
	case stabilizer.Vanished:
		log.Info("file vanished before it was stable", logging.Int("checks", res.Checks))
		return Admission{Outcome: Vanished}
	case stabilizer.Unstable:
		if res.Err != nil {
			log.Debug("stability check cancelled")
		} else {
			log.Warn("file never became stable", logging.Int("checks", res.Checks), logging.Int64("size", res.Size))
		}
		return Admission{Outcome: Unstable, Err: res.Err}
	}
	if res.Lenient {
		log.Warn("accepting file without a full stable streak", logging.Int64("size", res.Size))
	}

	if !s.cfg.Supported(path) {
		log.Info("skipping unsupported file")
		return Admission{Outcome: Unsupported}
	}

	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return Admission{Outcome: Unavailable, Err: err}
		}
		defer s.sem.Release(1)
	}

	job, err := s.process(ctx, path)
	return Admission{Outcome: Processed, Job: job, Err: err}
}

// process runs the pipeline detached from ctx's cancellation.
func (s *Service) process(ctx context.Context, path string) (job *store.Job, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Error("panic in worker", err, logging.String("path", path))
		}
	}()
	return s.proc.Process(context.WithoutCancel(ctx), path)
}

// Dispatch runs Handle on its own goroutine.
func (s *Service) Dispatch(ctx context.Context, path string) {
	if !s.track() {
		s.logger.Debug("service stopping, dropping file", logging.String("path", path))
		return
	}
	go func() {
		defer s.wg.Done()
		s.Handle(ctx, path)
	}()
}

// Submit processes path immediately, skipping the stability wait. It is the
// manual entry point used by the CLI and the API.
func (s *Service) Submit(ctx context.Context, path string) (*store.Job, error) {
	if s.proc == nil {
		return nil, ErrPipelineUnavailable
	}
	if !s.guard.TryAcquire(path) {
		return nil, ErrInProgress
	}
	defer s.guard.Release(path)

	return s.process(ctx, path)
}

// Enqueue is Submit on a background worker. The guard is taken before it
// returns, so a duplicate request fails with ErrInProgress.
func (s *Service) Enqueue(path string) error {
	if s.proc == nil {
		return ErrPipelineUnavailable
	}
	if !s.guard.TryAcquire(path) {
		return ErrInProgress
	}
	if !s.track() {
		s.guard.Release(path)
		return ErrStopping
	}

	go func() {
		defer s.wg.Done()
		defer s.guard.Release(path)
		if _, err := s.process(context.Background(), path); err != nil {
			s.logger.Warn("queued file failed", logging.String("path", path), logging.Err(err))
		}
	}()
	return nil
}

// Run starts the watcher, dispatches files already in the watch folder and
// every new file event, and blocks until ctx is done. A watcher that cannot
// start leaves the service running in a degraded state until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.Sweep(ctx)

	if problems := s.cfg.Problems()[SubsystemWatcher]; len(problems) > 0 {
		s.degrade(problems...)
		<-ctx.Done()
		return s.shutdown(nil)
	}

	w := s.watcher
	if w == nil {
		iw, err := watcher.NewInotifyWatcher()
		if err != nil {
			s.degrade(fmt.Sprintf("create watcher: %v", err))
			<-ctx.Done()
			return s.shutdown(nil)
		}
		w = iw
	}

	opts := watcher.Options{
		Extensions: s.cfg.Processing.SupportedFormats,
		Recursive:  s.cfg.Processing.RecursiveWatch,
	}
	events, err := w.Watch(ctx, s.cfg.Processing.WatchFolder, opts)
	if err != nil {
		w.Stop()
		s.degrade(fmt.Sprintf("start watcher: %v", err))
		<-ctx.Done()
		return s.shutdown(nil)
	}

	started := s.now()
	s.mu.Lock()
	s.running = true
	s.startedAt = &started
	s.problems = nil
	s.mu.Unlock()

	s.logger.Info("watching for files",
		logging.String("watch_folder", s.cfg.Processing.WatchFolder),
		logging.Bool("recursive", opts.Recursive),
	)

	existing, err := watcher.Scan(s.cfg.Processing.WatchFolder, opts)
	if err != nil {
		s.logger.Error("startup scan failed", err)
	}
	for _, path := range existing {
		s.logger.Info("found existing file", logging.String("path", path))
		s.Dispatch(ctx, path)
	}

	for {
		select {
		case <-ctx.Done():
			return s.shutdown(w)
		case event, ok := <-events:
			if !ok {
				return s.shutdown(w)
			}
			s.logger.Debug("file event", logging.String("path", event.Path), logging.Int64("size", event.Size))
			s.Dispatch(ctx, event.Path)
		}
	}
}

func (s *Service) degrade(problems ...string) {
	s.mu.Lock()
	s.problems = problems
	s.mu.Unlock()
	for _, p := range problems {
		s.logger.Warn("watcher not started", logging.String("reason", p))
	}
}

// track registers one background worker with the wait group. It refuses once
// shutdown has begun, so Add never races the final Wait.
func (s *Service) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.wg.Add(1)
	return true
}

// shutdown stops the watcher, if any, and waits up to the grace period for
// workers. Stability polls end with ctx; pipelines already running finish.
func (s *Service) shutdown(w watcher.FileWatcher) error {
	s.mu.Lock()
	s.running = false
	s.stopping = true
	s.mu.Unlock()

	if w != nil {
		if err := w.Stop(); err != nil {
			s.logger.Error("error stopping watcher", err)
		}
	}

	s.logger.Info("waiting for in-flight processing to complete", logging.Int("in_flight", s.guard.Len()))
	if !s.Wait(s.grace) {
		s.logger.Warn("shutdown grace period elapsed with work still running", logging.Int("in_flight", s.guard.Len()))
		return nil
	}
	s.logger.Info("scribe service stopped")
	return nil
}

// Wait blocks until every dispatched worker has returned or timeout elapses.
// It reports whether the workers finished.
func (s *Service) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// Supported reports whether path has an extension the pipeline accepts.
func (s *Service) Supported(path string) bool {
	return s.cfg.Supported(path)
}

// Status reports the watcher state.
func (s *Service) Status() WatcherStatus {
	s.mu.Lock()
	st := WatcherStatus{
		Running:     s.running,
		WatchFolder: s.cfg.Processing.WatchFolder,
		StartedAt:   s.startedAt,
		Problems:    append([]string(nil), s.problems...),
	}
	s.mu.Unlock()

	if st.WatchFolder != "" {
		if info, err := os.Stat(st.WatchFolder); err == nil && info.IsDir() {
			st.FolderExists = true
		}
	}
	st.InFlight = s.guard.Paths()
	return st
}

// Sweep deletes jobs older than the configured retention horizon.
func (s *Service) Sweep(ctx context.Context) {
	if s.store == nil || s.cfg.Retention.JobDays <= 0 {
		return
	}
	cutoff := s.now().AddDate(0, 0, -s.cfg.Retention.JobDays)
	n, err := s.store.DeleteJobsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", err)
		return
	}
	if n > 0 {
		s.logger.Info("retention sweep removed old jobs", logging.Int64("removed", n), logging.Int("days", s.cfg.Retention.JobDays))
	}
}
