package scribe

import (
	"errors"
	"fmt"
	"time"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/llm"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/logging"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/output"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/prompts"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/store"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/transcription"
)

// App bundles the long-lived components of a scribe process.
type App struct {
	Config    *Config
	Store     *store.Store
	Logger    logging.Logger
	Processor *Processor // nil when the pipeline is not configured
	Service   *Service

	file *logging.FileLogger
}

// AppOption configures Open.
type AppOption func(*appOptions)

type appOptions struct {
	console bool
	service []ServiceOption
}

// WithConsole mirrors log output to stderr.
func WithConsole() AppOption {
	return func(o *appOptions) { o.console = true }
}

// WithServiceOptions passes options through to NewService.
func WithServiceOptions(opts ...ServiceOption) AppOption {
	return func(o *appOptions) { o.service = append(o.service, opts...) }
}

// Open builds the logger, job store, processor and service described by cfg.
// Pipeline configuration problems do not fail Open: they are logged and the
// Processor is left nil, so status surfaces keep working.
func Open(cfg *Config, opts ...AppOption) (*App, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.App.Debug {
		level = logging.LevelDebug
	}
	file, err := logging.New(logging.Config{
		LogDir:        cfg.Logging.Dir,
		Prefix:        "scribe",
		RetentionDays: cfg.Logging.RetentionDays,
		MinLevel:      level,
		Console:       cfg.Logging.Console || o.console,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("open job store: %w", err)
	}

	logger := logging.WithRecorder(file, st)
	app := &App{Config: cfg, Store: st, Logger: logger, file: file}

	if problems := cfg.Problems()[SubsystemPipeline]; len(problems) > 0 {
		for _, p := range problems {
			logger.Warn("pipeline not configured", logging.String("reason", p))
		}
	} else {
		app.Processor = NewPipeline(cfg, st, logger.With(logging.String("component", "pipeline")))
	}

	app.Service = NewService(cfg, app.Processor, st, logger.With(logging.String("component", "service")), o.service...)
	return app, nil
}

// NewPipeline builds a Processor backed by the Deepgram and OpenAI clients
// and the prompt library named in cfg.
func NewPipeline(cfg *Config, st *store.Store, logger logging.Logger) *Processor {
	dg := transcription.NewDeepgramClient(cfg.Deepgram.APIKey,
		transcription.WithBaseURL(cfg.Deepgram.BaseURL),
	)
	ai := llm.NewOpenAIClient(cfg.OpenAI.APIKey,
		llm.WithBaseURL(cfg.OpenAI.BaseURL),
		llm.WithModel(cfg.OpenAI.Model),
		llm.WithTemperature(cfg.OpenAI.Temperature),
		llm.WithMaxTokens(cfg.OpenAI.MaxTokens),
	)
	builder := &prompts.Builder{
		Library: &prompts.Library{Dir: cfg.Prompts.Dir},
		Resolver: &prompts.Resolver{Candidates: map[prompts.Kind][]string{
			prompts.KindSummary:    cfg.Prompts.SummaryCandidates,
			prompts.KindNaming:     cfg.Prompts.NamingCandidates,
			prompts.KindValidation: cfg.Prompts.ValidationCandidates,
		}},
	}

	return NewProcessor(cfg, Dependencies{
		Store:       st,
		Transcriber: dg,
		AI:          ai,
		Prompts:     builder,
		Writer:      output.NewWriter(cfg.App.Version),
		Logger:      logger,
	})
}

// ConnectionCheck returns a HealthOption that calls the Deepgram and OpenAI
// APIs named in cfg. Services without a key are not called.
func ConnectionCheck(cfg *Config) HealthOption {
	const timeout = 10 * time.Second
	return WithConnectionCheck(
		transcription.NewDeepgramClient(cfg.Deepgram.APIKey,
			transcription.WithBaseURL(cfg.Deepgram.BaseURL),
			transcription.WithTimeout(timeout),
		),
		llm.NewOpenAIClient(cfg.OpenAI.APIKey,
			llm.WithBaseURL(cfg.OpenAI.BaseURL),
			llm.WithTimeout(timeout),
		),
	)
}

// Close releases the store and the log file.
func (a *App) Close() error {
	return errors.Join(a.Store.Close(), a.file.Close())
}

// LogPath returns the current log file.
func (a *App) LogPath() string {
	return a.file.LogPath()
}
