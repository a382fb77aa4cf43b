package naming

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/logging"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/prompts"
)

// Confidence scores attached to a naming result.
const (
	AIConfidence       = 0.9
	FallbackConfidence = 0.1
)

// ValidSentinel is the validation reply that accepts a proposal unchanged.
const ValidSentinel = "VALID"

// DefaultName is used when neither the service nor the original filename yields a name.
const DefaultName = "Audio Processing"

// Outcome says how a filename was chosen.
type Outcome int

const (
	// OutcomeProposed is a proposal accepted by validation, or kept because validation was unavailable.
	OutcomeProposed Outcome = iota
	// OutcomeCorrected is a name supplied by the validation step.
	OutcomeCorrected
	// OutcomeFallback is a name derived from the original filename.
	OutcomeFallback
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProposed:
		return "proposed"
	case OutcomeCorrected:
		return "corrected"
	case OutcomeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Completer sends one prompt to the summarization service. A nil temperature
// means the configured default.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature *float64) (string, error)
}

// Prompter builds prompts for an audio file.
type Prompter interface {
	Build(kind prompts.Kind, path string, vars map[string]string) (prompts.Prompt, error)
}

// Request describes the file being named.
type Request struct {
	JobID      int64
	Path       string
	Transcript string
	// DurationMinutes is nil when the duration is unknown.
	DurationMinutes *int
}

// Result is the naming decision. Filename is always non-empty.
type Result struct {
	Filename   string
	Proposal   string
	Confidence float64
	Outcome    Outcome
	// ProposeErr and ValidateErr record degraded steps; they never fail the job.
	ProposeErr  error
	ValidateErr error
}

// Engine runs the propose/validate exchange.
type Engine struct {
	AI      Completer
	Prompts Prompter
	Hints   HintExtractor
	Logger  logging.Logger
}

var errEmptyProposal = errors.New("empty filename proposal")

// Name chooses an output filename for req.
func (e *Engine) Name(ctx context.Context, req Request) Result {
	log := e.logger().With(logging.Job(req.JobID))
	original := filepath.Base(req.Path)
	vars := e.vars(req, original)

	proposal, err := e.propose(ctx, req.Path, vars)
	if err != nil {
		log.Warn("filename proposal unusable, using fallback", logging.Err(err))
		return Result{
			Filename:   Fallback(original),
			Confidence: FallbackConfidence,
			Outcome:    OutcomeFallback,
			ProposeErr: err,
		}
	}
	log.Info("filename proposed", logging.String("proposal", proposal))

	res := Result{Filename: proposal, Proposal: proposal, Confidence: AIConfidence, Outcome: OutcomeProposed}

	corrected, err := e.validate(ctx, req, original, proposal)
	switch {
	case err != nil:
		res.ValidateErr = err
		log.Warn("filename validation failed, keeping proposal", logging.Err(err))
	case corrected != "":
		res.Filename = corrected
		res.Outcome = OutcomeCorrected
		log.Info("filename corrected", logging.String("filename", corrected))
	default:
		log.Info("filename validated")
	}
	return res
}

func (e *Engine) propose(ctx context.Context, path string, vars map[string]string) (string, error) {
	p, err := e.Prompts.Build(prompts.KindNaming, path, vars)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(p.Text) == "" {
		return "", errEmptyProposal
	}
	reply, err := e.AI.Complete(ctx, p.Text, p.Temperature)
	if err != nil {
		return "", err
	}
	name := Clean(normalizeReply(reply))
	if name == "" {
		return "", errEmptyProposal
	}
	return name, nil
}

// validate returns the corrected name, or "" when the proposal stands.
func (e *Engine) validate(ctx context.Context, req Request, original, proposal string) (string, error) {
	p, err := e.Prompts.Build(prompts.KindValidation, req.Path, map[string]string{
		prompts.VarProposedFilename:  proposal,
		prompts.VarOriginalFilename:  original,
		prompts.VarTranscriptSummary: prompts.TranscriptSummary(req.Transcript),
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(p.Text) == "" {
		return "", nil
	}

	reply, err := e.AI.Complete(ctx, p.Text, p.Temperature)
	if err != nil {
		return "", err
	}
	reply = normalizeReply(reply)
	if reply == "" || reply == ValidSentinel {
		return "", nil
	}
	corrected := Clean(reply)
	if corrected == proposal {
		return "", nil
	}
	return corrected, nil
}

func (e *Engine) vars(req Request, original string) map[string]string {
	duration := "Unknown"
	if req.DurationMinutes != nil {
		duration = strconv.Itoa(*req.DurationMinutes)
	}

	vars := map[string]string{
		prompts.VarTranscript:        req.Transcript,
		prompts.VarTranscriptSummary: prompts.TranscriptSummary(req.Transcript),
		prompts.VarOriginalFilename:  original,
		prompts.VarDurationMinutes:   duration,
	}

	var h Hints
	if e.Hints != nil {
		h = e.Hints.Extract(original)
	}
	vars[prompts.VarFilenameDate] = orNone(h.Date)
	vars[prompts.VarMeetingType] = orNone(h.MeetingType)
	vars[prompts.VarFilenameParticipants] = orNone(strings.Join(h.Participants, ", "))
	vars[prompts.VarFilenameTopics] = orNone(strings.Join(h.Topics, ", "))
	vars[prompts.VarMatterNumber] = orNone(h.MatterNumber)
	return vars
}

func (e *Engine) logger() logging.Logger {
	if e.Logger == nil {
		return logging.Nop()
	}
	return e.Logger
}

// Fallback derives a name from the original filename's base name.
func Fallback(original string) string {
	base := filepath.Base(original)
	if base == "." || base == string(filepath.Separator) {
		return DefaultName
	}
	if name := Clean(strings.TrimSuffix(base, filepath.Ext(base))); name != "" {
		return name
	}
	return DefaultName
}

// normalizeReply keeps the first non-empty line of a service reply without
// surrounding quotes or a .md suffix.
func normalizeReply(reply string) string {
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.Trim(line, "\"'`")
		line = strings.TrimSpace(line)
		if strings.HasSuffix(strings.ToLower(line), ".md") {
			line = strings.TrimSpace(line[:len(line)-3])
		}
		return line
	}
	return ""
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
