// Package output writes the generated markdown documents.
package output

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extension is appended to every document name.
const Extension = ".md"

// ErrNoOutputDir is returned when no output folder is configured.
var ErrNoOutputDir = errors.New("output directory is required")

// Document is the content of one generated note.
type Document struct {
	// Name is the accepted filename without extension.
	Name       string
	Summary    string
	Transcript string
}

// Writer saves documents as markdown files.
type Writer struct {
	// Version is quoted in the provenance footer.
	Version string
}

// NewWriter creates a Writer that stamps version into each footer.
func NewWriter(version string) *Writer {
	return &Writer{Version: version}
}

// Write saves doc as <dir>/<doc.Name>.md and returns the path. An existing
// file of the same name is replaced.
func (w *Writer) Write(ctx context.Context, dir string, doc Document) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if dir == "" {
		return "", ErrNoOutputDir
	}
	if strings.TrimSpace(doc.Name) == "" {
		return "", fmt.Errorf("document name is required")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := filepath.Join(dir, doc.Name+Extension)
	if err := os.WriteFile(outputPath, []byte(w.Render(doc)), 0644); err != nil {
		return "", fmt.Errorf("failed to write output file: %w", err)
	}

	return outputPath, nil
}

// Render builds the document body: summary, the full transcript, and a footer.
func (w *Writer) Render(doc Document) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(doc.Summary))
	sb.WriteString("\n\n---\n\n## Full Transcript\n\n")
	sb.WriteString(strings.TrimSpace(doc.Transcript))
	sb.WriteString("\n\n---\n\n")
	fmt.Fprintf(&sb, "*This document was automatically generated from audio transcription and AI analysis using Scribe v%s*\n", w.Version)
	return sb.String()
}
