// Package pidfile records the PID of the running scribe daemon.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Common errors
var (
	ErrNoPIDFile      = errors.New("no PID file found")
	ErrInvalidPID     = errors.New("invalid PID in file")
	ErrAlreadyRunning = errors.New("scribe is already running")
)

const (
	// FileName is the PID file's name inside ~/.nota.
	FileName = "scribe.pid"
	dirPerm  = 0755
	filePerm = 0644
)

// File is a PID file at a fixed path.
type File struct {
	Path string
}

// New returns a File at path.
func New(path string) *File {
	return &File{Path: path}
}

// Default returns the File at ~/.nota/scribe.pid.
func Default() (*File, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home directory: %w", err)
	}
	return New(filepath.Join(homeDir, ".nota", FileName)), nil
}

// Write stores pid, creating parent directories if needed.
func (f *File) Write(pid int) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), dirPerm); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	content := strconv.Itoa(pid) + "\n"
	if err := os.WriteFile(f.Path, []byte(content), filePerm); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

// Read returns the stored PID. It returns ErrNoPIDFile if the file doesn't
// exist and ErrInvalidPID if it holds anything but a positive integer.
func (f *File) Read() (int, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNoPIDFile
		}
		return 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, ErrInvalidPID
	}
	return pid, nil
}

// Remove deletes the PID file. A missing file is not an error.
func (f *File) Remove() error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove PID file: %w", err)
	}
	return nil
}

// IsRunning reports whether the recorded process is alive, and its PID.
// A missing file yields (false, 0, nil); a stale file yields (false, pid, nil).
func (f *File) IsRunning() (bool, int, error) {
	pid, err := f.Read()
	if err != nil {
		if errors.Is(err, ErrNoPIDFile) {
			return false, 0, nil
		}
		return false, 0, err
	}

	// Signal 0 checks for existence without delivering anything.
	err = syscall.Kill(pid, 0)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return false, pid, nil
		}
		if errors.Is(err, syscall.EPERM) {
			// Exists, owned by someone else.
			return true, pid, nil
		}
		return false, pid, fmt.Errorf("check process: %w", err)
	}
	return true, pid, nil
}

// CleanStale removes the PID file if its process is gone. It returns true if
// a file was removed.
func (f *File) CleanStale() (bool, error) {
	running, _, err := f.IsRunning()
	if err != nil && !errors.Is(err, ErrInvalidPID) {
		return false, err
	}
	if running {
		return false, nil
	}
	if _, statErr := os.Stat(f.Path); statErr != nil {
		return false, nil
	}
	if err := f.Remove(); err != nil {
		return false, err
	}
	return true, nil
}

// Acquire records the current process, failing with ErrAlreadyRunning when
// another live process holds the file.
func (f *File) Acquire() error {
	if _, err := f.CleanStale(); err != nil {
		return err
	}
	running, pid, err := f.IsRunning()
	if err != nil {
		return err
	}
	if running && pid != os.Getpid() {
		return fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, pid)
	}
	return f.Write(os.Getpid())
}
