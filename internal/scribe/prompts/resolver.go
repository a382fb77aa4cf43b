package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Override is a folder-scoped prompt file: optional YAML front matter plus a body.
type Override struct {
	Path        string
	Body        string
	Mode        Mode
	Temperature *float64
}

type frontMatter struct {
	Prompts struct {
		SummaryMode    string `yaml:"summary_mode"`
		NamingMode     string `yaml:"naming_mode"`
		ValidationMode string `yaml:"validation_mode"`
	} `yaml:"prompts"`
	OpenAI struct {
		Temperature *float64 `yaml:"temperature"`
	} `yaml:"openai"`
}

func (fm *frontMatter) mode(kind Kind) string {
	switch kind {
	case KindSummary:
		return fm.Prompts.SummaryMode
	case KindNaming:
		return fm.Prompts.NamingMode
	default:
		return fm.Prompts.ValidationMode
	}
}

// ParseOverride splits content into front matter and body. Content without a
// closing "---" line is all body.
func ParseOverride(kind Kind, content string) (Override, error) {
	var ov Override
	if !strings.HasPrefix(content, "---") {
		ov.Body = content
		return ov, nil
	}
	end := strings.Index(content[3:], "\n---")
	if end < 0 {
		ov.Body = content
		return ov, nil
	}
	end += 3

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(content[3:end]), &fm); err != nil {
		return ov, fmt.Errorf("parsing front matter: %w", err)
	}
	ov.Body = strings.TrimLeft(content[end+4:], "\r\n")
	if m, ok := ParseMode(fm.mode(kind)); ok {
		ov.Mode = m
	}
	ov.Temperature = fm.OpenAI.Temperature
	return ov, nil
}

// Resolver finds override files by searching upward from an audio file's directory.
type Resolver struct {
	// Candidates lists file names to look for per kind, in priority order.
	Candidates map[Kind][]string
	// StopAt, when set, is the last directory searched.
	StopAt string
}

// Resolve returns the nearest override of kind for path, or a zero Override.
func (r *Resolver) Resolve(path string, kind Kind) (Override, error) {
	names := r.Candidates[kind]
	if len(names) == 0 || path == "" {
		return Override{}, nil
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return Override{}, err
	}
	stop := ""
	if r.StopAt != "" {
		if stop, err = filepath.Abs(r.StopAt); err != nil {
			return Override{}, err
		}
	}

	for {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			data, err := os.ReadFile(candidate)
			if err != nil {
				return Override{}, fmt.Errorf("reading %s: %w", candidate, err)
			}
			ov, err := ParseOverride(kind, string(data))
			if err != nil {
				return Override{}, fmt.Errorf("%s: %w", candidate, err)
			}
			ov.Path = candidate
			return ov, nil
		}

		parent := filepath.Dir(dir)
		if dir == stop || parent == dir {
			return Override{}, nil
		}
		dir = parent
	}
}
