// Package prompts builds the text prompts sent to the summarization service:
// base templates, folder-scoped override files and placeholder substitution.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Kind identifies one of the three prompts.
type Kind string

const (
	KindSummary    Kind = "summary"
	KindNaming     Kind = "naming"
	KindValidation Kind = "filename-validation"
)

// Kinds lists every prompt kind.
var Kinds = []Kind{KindSummary, KindNaming, KindValidation}

// Mode is how folder override text combines with the base template.
type Mode string

const (
	// ModeReplace uses the folder text instead of the template.
	ModeReplace Mode = "replace"
	// ModeAppend adds the folder text under a heading after the template.
	ModeAppend Mode = "append"
)

// ParseMode maps a front matter value to a Mode; ok is false for unknown values.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeReplace:
		return ModeReplace, true
	case ModeAppend:
		return ModeAppend, true
	}
	return "", false
}

// DefaultMode returns the combination mode used when an override file does not set one.
func (k Kind) DefaultMode() Mode {
	if k == KindNaming {
		return ModeAppend
	}
	return ModeReplace
}

// Heading labels appended folder text.
func (k Kind) Heading() string {
	if k == KindValidation {
		return "Folder Validation Rules"
	}
	return "Folder Instructions"
}

// Placeholder names understood by the default templates.
const (
	VarTranscript           = "transcript"
	VarTranscriptSummary    = "transcript_summary"
	VarOriginalFilename     = "original_filename"
	VarDurationMinutes      = "duration_minutes"
	VarProposedFilename     = "proposed_filename"
	VarMatterNumber         = "matter_number"
	VarFilenameDate         = "filename_date"
	VarFilenameParticipants = "filename_participants"
	VarMeetingType          = "meeting_type"
	VarFilenameTopics       = "filename_topics"
)

// SummaryLimit caps transcript excerpts embedded in naming prompts.
const SummaryLimit = 500

// TranscriptSummary returns the first SummaryLimit characters of transcript,
// followed by "..." when it was cut.
func TranscriptSummary(transcript string) string {
	if utf8.RuneCountInString(transcript) <= SummaryLimit {
		return transcript
	}
	return string([]rune(transcript)[:SummaryLimit]) + "..."
}

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// Substitute replaces {name} with vars[name]. Unknown placeholders are left as written.
func Substitute(tmpl string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		if v, ok := vars[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// Combine substitutes vars into base and folder and joins them according to mode.
// Empty folder text yields the base template alone.
func Combine(base, folder string, vars map[string]string, mode Mode, heading string) string {
	text := Substitute(base, vars)
	if strings.TrimSpace(folder) == "" {
		return text
	}
	folder = Substitute(folder, vars)
	if mode == ModeAppend {
		return fmt.Sprintf("%s\n\n# %s\n%s\n", text, heading, folder)
	}
	return folder
}

//go:embed defaults/*.md
var defaultsFS embed.FS

// Library provides base templates. A file <Dir>/<kind>.md wins over the
// embedded default.
type Library struct {
	Dir string
}

// Template returns the base template for kind.
func (l *Library) Template(kind Kind) (string, error) {
	name := string(kind) + ".md"
	if l != nil && l.Dir != "" {
		data, err := os.ReadFile(filepath.Join(l.Dir, name))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("reading %s template: %w", kind, err)
		}
	}
	data, err := defaultsFS.ReadFile("defaults/" + name)
	if err != nil {
		return "", fmt.Errorf("no %s template: %w", kind, err)
	}
	return string(data), nil
}

// Default returns the embedded template for kind.
func Default(kind Kind) string {
	data, _ := defaultsFS.ReadFile("defaults/" + string(kind) + ".md")
	return string(data)
}

// Prompt is a built prompt plus the settings its override file asked for.
type Prompt struct {
	Text        string
	Temperature *float64
	// Source is the override file used, if any.
	Source string
}

// Builder assembles prompts from a Library and a Resolver.
type Builder struct {
	Library  *Library
	Resolver *Resolver
}

// Build returns the prompt of kind for the audio file at path.
func (b *Builder) Build(kind Kind, path string, vars map[string]string) (Prompt, error) {
	base, err := b.Library.Template(kind)
	if err != nil {
		return Prompt{}, err
	}

	var ov Override
	if b.Resolver != nil {
		if ov, err = b.Resolver.Resolve(path, kind); err != nil {
			return Prompt{}, err
		}
	}

	mode := ov.Mode
	if mode == "" {
		mode = kind.DefaultMode()
	}
	return Prompt{
		Text:        Combine(base, ov.Body, vars, mode, kind.Heading()),
		Temperature: ov.Temperature,
		Source:      ov.Path,
	}, nil
}
