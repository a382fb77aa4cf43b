package scribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/llm"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/logging"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/metadata"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/naming"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/output"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/placement"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/prompts"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/retry"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/stabilizer"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/store"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/transcription"
)

// Pipeline stages, as reported by StageError.
const (
	StageValidate   = "validate"
	StageTranscribe = "transcribe"
	StageSummarize  = "summarize"
	StageName       = "name"
	StageWrite      = "write"
	StageRelocate   = "relocate"
)

// FailurePrefix starts every failed job's error message.
const FailurePrefix = "Processing failed: "

var (
	// ErrValidation wraps every secondary validation failure.
	ErrValidation = errors.New("file validation failed")
	// ErrEmptyTranscript is returned when transcription yields no text.
	ErrEmptyTranscript = errors.New("empty transcript")
	// ErrEmptySummary is returned when summarization yields no text.
	ErrEmptySummary = errors.New("empty summary")
)

// StageError records which pipeline stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

// Dependencies are the collaborators a Processor drives.
type Dependencies struct {
	Store       *store.Store
	Transcriber transcription.Transcriber
	AI          llm.Completer
	Prompts     naming.Prompter
	Hints       naming.HintExtractor
	Writer      *output.Writer
	Placer      *placement.Placer
	Logger      logging.Logger

	// Duration reads audio duration. Defaults to metadata.Duration.
	Duration func(path string) (time.Duration, bool)
	// Sleep waits between retries and during validation. Defaults to a
	// context-aware timer.
	Sleep stabilizer.SleepFunc
}

// Processor runs one file through every pipeline stage.
type Processor struct {
	cfg         *Config
	store       *store.Store
	transcriber transcription.Transcriber
	ai          *aiCaller
	prompts     naming.Prompter
	namer       *naming.Engine
	writer      *output.Writer
	placer      *placement.Placer
	duration    func(path string) (time.Duration, bool)
	sleep       stabilizer.SleepFunc
	logger      logging.Logger
}

// NewProcessor builds a Processor. Missing optional dependencies get defaults.
func NewProcessor(cfg *Config, deps Dependencies) *Processor {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = stabilizer.Sleep
	}
	duration := deps.Duration
	if duration == nil {
		duration = metadata.Duration
	}
	placer := deps.Placer
	if placer == nil {
		placer = placement.New()
	}
	writer := deps.Writer
	if writer == nil {
		writer = output.NewWriter(cfg.App.Version)
	}
	hints := deps.Hints
	if hints == nil {
		hints = naming.RegexHints{}
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Processing.RetryAttempts,
		BaseDelay:   cfg.RetryBaseDelay(),
		Sleep:       sleep,
	}
	ai := &aiCaller{client: deps.AI, policy: policy, logger: logger}

	return &Processor{
		cfg:         cfg,
		store:       deps.Store,
		transcriber: deps.Transcriber,
		ai:          ai,
		prompts:     deps.Prompts,
		namer:       &naming.Engine{AI: ai, Prompts: deps.Prompts, Hints: hints, Logger: logger},
		writer:      writer,
		placer:      placer,
		duration:    duration,
		sleep:       sleep,
		logger:      logger,
	}
}

// Process creates a job for path and runs it to completed or failed. The
// returned job reflects the final stored state; the error is the stage
// failure, if any.
func (p *Processor) Process(ctx context.Context, path string) (job *store.Job, err error) {
	// Bookkeeping must land even if the caller gives up.
	bg := context.WithoutCancel(ctx)

	job, err = p.store.CreateJob(bg, filepath.Base(path), path)
	if err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	log := p.logger.With(logging.Job(job.ID), logging.String("file", job.Filename))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Error("panic in pipeline", err)
			p.fail(bg, log, job, path, err)
			job = p.reload(bg, job)
		}
	}()

	if err := p.store.Transition(bg, job.ID, store.StatusProcessing); err != nil {
		return job, fmt.Errorf("starting job: %w", err)
	}
	log.Info("processing file", logging.String("path", path))
	start := time.Now()

	if err := p.run(ctx, log, job.ID, path); err != nil {
		log.Error("processing failed", err)
		p.fail(bg, log, job, path, err)
		return p.reload(bg, job), err
	}

	if err := p.store.Transition(bg, job.ID, store.StatusCompleted); err != nil {
		return p.reload(bg, job), fmt.Errorf("completing job: %w", err)
	}
	log.Info("file processing complete", logging.Duration("elapsed", time.Since(start)))
	return p.reload(bg, job), nil
}

func (p *Processor) run(ctx context.Context, log logging.Logger, jobID int64, path string) error {
	bg := context.WithoutCancel(ctx)

	if err := p.ValidateFile(ctx, path); err != nil {
		return &StageError{Stage: StageValidate, Err: err}
	}

	tr, err := retry.Do(ctx, p.policy(log, StageTranscribe), func(ctx context.Context) (*transcription.Result, error) {
		return p.transcriber.Transcribe(ctx, path, p.transcribeOptions())
	})
	if err != nil {
		return &StageError{Stage: StageTranscribe, Err: err}
	}
	transcript := strings.TrimSpace(tr.Text)
	if transcript == "" {
		return &StageError{Stage: StageTranscribe, Err: ErrEmptyTranscript}
	}
	if err := p.store.SetTranscriptLength(bg, jobID, utf8.RuneCountInString(transcript)); err != nil {
		return err
	}
	log.Info("transcription complete", logging.Int("length", utf8.RuneCountInString(transcript)))

	minutes := p.durationMinutes(path, tr.Duration)
	if minutes == nil {
		log.Debug("audio duration unknown")
	}

	summary, err := p.summarize(ctx, path, transcript, minutes)
	if err != nil {
		return &StageError{Stage: StageSummarize, Err: err}
	}
	log.Info("summary generated", logging.Int("length", len(summary)))

	name := p.namer.Name(ctx, naming.Request{
		JobID:           jobID,
		Path:            path,
		Transcript:      transcript,
		DurationMinutes: minutes,
	})
	suggested := name.Proposal
	if suggested == "" {
		suggested = name.Filename
	}
	if err := p.store.SetNaming(bg, jobID, store.Naming{
		Suggested:  suggested,
		Final:      name.Filename,
		Confidence: name.Confidence,
	}); err != nil {
		return &StageError{Stage: StageName, Err: err}
	}

	outPath, err := p.writer.Write(ctx, p.cfg.Processing.OutputFolder, output.Document{
		Name:       name.Filename,
		Summary:    summary,
		Transcript: transcript,
	})
	if err != nil {
		return &StageError{Stage: StageWrite, Err: err}
	}
	if err := p.store.SetOutputPath(bg, jobID, outPath); err != nil {
		return err
	}
	log.Info("output written", logging.String("output", outPath))

	dest, err := p.placer.Move(bg, path, p.cfg.Processing.ProcessedFolder)
	switch {
	case errors.Is(err, placement.ErrNoDestination):
		log.Warn("processed folder not configured, leaving source in place", logging.String("path", path))
	case err != nil:
		return &StageError{Stage: StageRelocate, Err: err}
	default:
		log.Info("source relocated", logging.String("destination", dest))
	}
	return nil
}

// ValidateFile checks that path is a non-empty supported file that is no
// longer growing. Failures wrap ErrValidation.
func (p *Processor) ValidateFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrValidation, path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: file is empty", ErrValidation)
	}
	if !p.cfg.Supported(path) {
		return fmt.Errorf("%w: unsupported format %q", ErrValidation, filepath.Ext(path))
	}

	if err := p.sleep(ctx, p.cfg.ValidationDelay()); err != nil {
		return err
	}
	again, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if again.Size() != info.Size() {
		return fmt.Errorf("%w: file is still being written (%d -> %d bytes)", ErrValidation, info.Size(), again.Size())
	}
	return nil
}

func (p *Processor) summarize(ctx context.Context, path, transcript string, minutes *int) (string, error) {
	duration := "Unknown"
	if minutes != nil {
		duration = strconv.Itoa(*minutes)
	}
	prompt, err := p.prompts.Build(prompts.KindSummary, path, map[string]string{
		prompts.VarTranscript:       transcript,
		prompts.VarDurationMinutes:  duration,
		prompts.VarOriginalFilename: filepath.Base(path),
	})
	if err != nil {
		return "", err
	}

	summary, err := p.ai.Complete(ctx, prompt.Text, prompt.Temperature)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(summary) == "" {
		return "", ErrEmptySummary
	}
	return summary, nil
}

// durationMinutes prefers the file's own header and falls back to the
// duration reported by the transcription service.
func (p *Processor) durationMinutes(path string, reported time.Duration) *int {
	d, ok := p.duration(path)
	if !ok && reported > 0 {
		d, ok = reported, true
	}
	if !ok {
		return nil
	}
	m := metadata.Minutes(d)
	return &m
}

func (p *Processor) transcribeOptions() transcription.Options {
	f := p.cfg.Deepgram.Features
	return transcription.Options{
		Model:       p.cfg.Deepgram.Model,
		Punctuate:   f.Punctuate,
		Paragraphs:  f.Paragraphs,
		Diarize:     f.SpeakerDiarize,
		SmartFormat: f.SmartFormat,
		Utterances:  f.UttSplit,
		Numerals:    f.Numerals,
	}
}

func (p *Processor) policy(log logging.Logger, stage string) retry.Policy {
	pol := p.ai.policy
	pol.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Warn("external call failed, retrying",
			logging.String("stage", stage),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Err(err),
		)
	}
	return pol
}

// fail records err on the job and moves the source to the error folder.
// Relocation problems are logged, never returned.
func (p *Processor) fail(ctx context.Context, log logging.Logger, job *store.Job, path string, cause error) {
	msg := FailurePrefix + cause.Error()
	if err := p.store.Transition(ctx, job.ID, store.StatusFailed, store.WithErrorMessage(msg)); err != nil {
		log.Error("failed to record job failure", err)
	}

	dest, err := p.placer.Move(ctx, path, p.cfg.Processing.ErrorFolder)
	switch {
	case errors.Is(err, placement.ErrNoDestination):
		log.Warn("error folder not configured, leaving source in place", logging.String("path", path))
	case err != nil:
		log.Error("failed to move source to error folder", err, logging.String("path", path))
	default:
		log.Info("source moved to error folder", logging.String("destination", dest))
	}
}

func (p *Processor) reload(ctx context.Context, job *store.Job) *store.Job {
	fresh, err := p.store.GetJob(ctx, job.ID)
	if err != nil {
		return job
	}
	return fresh
}

// aiCaller adapts an llm.Completer to the naming engine and wraps each call
// in the retry policy.
type aiCaller struct {
	client llm.Completer
	policy retry.Policy
	logger logging.Logger
}

func (a *aiCaller) Complete(ctx context.Context, prompt string, temperature *float64) (string, error) {
	pol := a.policy
	pol.OnRetry = func(attempt int, delay time.Duration, err error) {
		a.logger.Warn("summarization call failed, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Err(err),
		)
	}
	return retry.Do(ctx, pol, func(ctx context.Context) (string, error) {
		return a.client.Complete(ctx, llm.Request{Prompt: prompt, Temperature: temperature})
	})
}
