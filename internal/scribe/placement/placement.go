// Package placement moves finished source files into their destination folders.
package placement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNoDestination is returned when no destination folder is configured.
	// Callers leave the file where it is.
	ErrNoDestination = errors.New("no destination folder configured")
	// ErrSourceNotFound is returned when the source file does not exist.
	ErrSourceNotFound = errors.New("source file not found")
)

// maxSuffix bounds the search for a free name.
const maxSuffix = 10000

// Placer moves files without ever overwriting an existing file.
type Placer struct{}

// New creates a Placer.
func New() *Placer {
	return &Placer{}
}

// Move moves src into dir and returns the destination path. The original
// name is used when free; otherwise _1, _2, ... is inserted before the
// extension. dir is created if absent.
func (p *Placer) Move(ctx context.Context, src, dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", ErrNoDestination
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrSourceNotFound
		}
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create destination: %w", err)
	}

	base := filepath.Base(src)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for n := 0; n < maxSuffix; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		dest := filepath.Join(dir, name)

		err := claim(src, dest, info.Mode())
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}

		if err := os.Remove(src); err != nil {
			return dest, fmt.Errorf("remove source after move: %w", err)
		}
		return dest, nil
	}

	return "", fmt.Errorf("no free name for %s in %s", base, dir)
}

// claim creates dest as a copy of src, failing with fs.ErrExist if dest is
// taken. A hard link is tried first; filesystems that refuse it get a byte copy.
func claim(src, dest string, mode fs.FileMode) error {
	err := os.Link(src, dest)
	if err == nil || errors.Is(err, fs.ErrExist) {
		return err
	}
	return copyExclusive(src, dest, mode)
}

// copyExclusive copies src to a newly created dest, preserving the file mode.
func copyExclusive(src, dest string, mode fs.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	destFile, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, srcFile); err != nil {
		destFile.Close()
		os.Remove(dest)
		return err
	}

	// Ensure data is flushed to disk
	if err := destFile.Sync(); err != nil {
		destFile.Close()
		os.Remove(dest)
		return err
	}
	return destFile.Close()
}
