package scribe

import (
	"context"
	"os"
	"strings"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/store"
)

// Health is the report served by /api/health and `scribe status`.
type Health struct {
	Healthy     bool            `json:"healthy"`
	Connections Connections     `json:"connections"`
	Database    bool            `json:"database"`
	Folders     map[string]bool `json:"folders"`
	Stats       *store.Stats    `json:"stats,omitempty"`
	Watcher     *WatcherStatus  `json:"watcher,omitempty"`
	Problems    []string        `json:"problems,omitempty"`
}

// Connections reports which external services are configured. With a
// connection check enabled, Checked is set and each flag also means the
// service answered.
type Connections struct {
	Transcription bool `json:"transcription"`
	Summarization bool `json:"summarization"`
	Checked       bool `json:"checked"`
}

// Pinger verifies that an external service accepts our credentials.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthOption adjusts CheckHealth.
type HealthOption func(*healthOptions)

type healthOptions struct {
	transcription Pinger
	summarization Pinger
}

// WithConnectionCheck makes CheckHealth call each configured service.
// A nil pinger skips that service.
func WithConnectionCheck(transcription, summarization Pinger) HealthOption {
	return func(o *healthOptions) {
		o.transcription = transcription
		o.summarization = summarization
	}
}

// Destination folder keys in Health.Folders.
const (
	FolderWatch     = "watch"
	FolderProcessed = "processed"
	FolderError     = "error"
	FolderOutput    = "output"
)

// CheckHealth builds a health report. st and svc may be nil. Missing
// configuration shows up as false values, never as an error.
func CheckHealth(ctx context.Context, cfg *Config, st *store.Store, svc *Service, opts ...HealthOption) Health {
	var o healthOptions
	for _, opt := range opts {
		opt(&o)
	}

	h := Health{
		Connections: Connections{
			Transcription: strings.TrimSpace(cfg.Deepgram.APIKey) != "",
			Summarization: strings.TrimSpace(cfg.OpenAI.APIKey) != "",
		},
		Folders: map[string]bool{
			FolderWatch:     writable(cfg.Processing.WatchFolder),
			FolderProcessed: writable(cfg.Processing.ProcessedFolder),
			FolderError:     writable(cfg.Processing.ErrorFolder),
			FolderOutput:    writable(cfg.Processing.OutputFolder),
		},
	}

	if o.transcription != nil || o.summarization != nil {
		h.Connections.Checked = true
		h.Connections.Transcription = h.Connections.Transcription &&
			pingService(ctx, "transcription", o.transcription, &h.Problems)
		h.Connections.Summarization = h.Connections.Summarization &&
			pingService(ctx, "summarization", o.summarization, &h.Problems)
	}

	if st != nil {
		if err := st.Ping(ctx); err == nil {
			h.Database = true
			if stats, err := st.Stats(ctx); err == nil {
				h.Stats = stats
			} else {
				h.Problems = append(h.Problems, "stats: "+err.Error())
			}
		} else {
			h.Problems = append(h.Problems, "database: "+err.Error())
		}
	}

	if svc != nil {
		ws := svc.Status()
		h.Watcher = &ws
	}

	for _, subsystem := range []string{SubsystemPipeline, SubsystemWatcher} {
		for _, p := range cfg.Problems()[subsystem] {
			h.Problems = append(h.Problems, subsystem+": "+p)
		}
	}

	h.Healthy = h.Connections.Transcription && h.Connections.Summarization && h.Database
	for _, key := range []string{FolderWatch, FolderProcessed, FolderError, FolderOutput} {
		if !h.Folders[key] {
			h.Healthy = false
			h.Problems = append(h.Problems, "folders: "+key+" folder is not writable")
		}
	}
	return h
}

func pingService(ctx context.Context, name string, p Pinger, problems *[]string) bool {
	if p == nil {
		return true
	}
	if err := p.Ping(ctx); err != nil {
		*problems = append(*problems, name+": "+err.Error())
		return false
	}
	return true
}

// writable reports whether dir exists and a file can be created in it.
func writable(dir string) bool {
	if strings.TrimSpace(dir) == "" {
		return false
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	f, err := os.CreateTemp(dir, ".scribe-health-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}
