// Package watcher reports audio files that appear in the watch folder.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FileEvent represents a detected file.
type FileEvent struct {
	Path      string
	Size      int64
	Timestamp time.Time
}

// Options selects what a watch reports.
type Options struct {
	// Extensions limits events to these suffixes, compared case-insensitively.
	// Empty means every file.
	Extensions []string
	// Recursive watches subdirectories, including ones created later.
	Recursive bool
}

// Match reports whether name has one of the configured extensions.
func (o Options) Match(name string) bool {
	if len(o.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range o.Extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

// FileWatcher detects new files in a directory tree.
type FileWatcher interface {
	Watch(ctx context.Context, dir string, opts Options) (<-chan FileEvent, error)
	Stop() error
}

// ErrAlreadyWatching is returned by a second call to Watch.
var ErrAlreadyWatching = errors.New("watcher already started")

const (
	fileMask = unix.IN_CREATE | unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO
	pollMs   = 100
	// bufSize holds 64 events with maximum-length names.
	bufSize = 64 * (unix.SizeofInotifyEvent + 256)
)

// InotifyWatcher implements FileWatcher using Linux inotify.
type InotifyWatcher struct {
	fd   int
	opts Options

	mu      sync.Mutex
	dirs    map[int]string
	started bool
	stopped bool

	stopCh chan struct{}
	done   chan struct{}
}

// NewInotifyWatcher creates a new inotify-based file watcher.
func NewInotifyWatcher() (*InotifyWatcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, err
	}

	return &InotifyWatcher{
		fd:     fd,
		dirs:   make(map[int]string),
		stopCh: make(chan struct{}),
	}, nil
}

// Watch starts watching dir. The returned channel is closed when ctx ends or
// Stop is called.
func (w *InotifyWatcher) Watch(ctx context.Context, dir string, opts Options) (<-chan FileEvent, error) {
	w.mu.Lock()
	if w.started || w.stopped {
		w.mu.Unlock()
		return nil, ErrAlreadyWatching
	}
	w.started = true
	w.opts = opts
	w.done = make(chan struct{})
	w.mu.Unlock()

	if err := w.addTree(dir); err != nil {
		close(w.done)
		return nil, err
	}

	events := make(chan FileEvent, 100)

	go w.readEvents(ctx, events)

	return events, nil
}

// Stop stops the watcher, waits for the reader to exit and releases the
// inotify descriptor.
func (w *InotifyWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	done := w.done
	w.mu.Unlock()

	if done != nil {
		<-done
	}
	return unix.Close(w.fd)
}

// Dirs returns the directories currently watched.
func (w *InotifyWatcher) Dirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	dirs := make([]string, 0, len(w.dirs))
	for _, d := range w.dirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

func (w *InotifyWatcher) addDir(dir string) error {
	mask := uint32(fileMask)
	if w.opts.Recursive {
		mask |= unix.IN_DELETE_SELF
	}
	wd, err := unix.InotifyAddWatch(w.fd, dir, mask)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.dirs[wd] = dir
	w.mu.Unlock()
	return nil
}

func (w *InotifyWatcher) addTree(root string) error {
	if !w.opts.Recursive {
		return w.addDir(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.addDir(path)
	})
}

func (w *InotifyWatcher) readEvents(ctx context.Context, events chan<- FileEvent) {
	defer close(w.done)
	defer close(events)

	buf := make([]byte, bufSize)
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		ready, err := unix.Poll(fds, pollMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if ready == 0 {
			continue
		}

		n, err := unix.Read(w.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return
		}

		for offset := 0; offset+unix.SizeofInotifyEvent <= n; {
			event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			nameLen := int(event.Len)
			start := offset + unix.SizeofInotifyEvent
			name := strings.TrimRight(string(buf[start:start+nameLen]), "\x00")
			offset = start + nameLen

			if !w.handle(ctx, int(event.Wd), event.Mask, name, events) {
				return
			}
		}
	}
}

// handle processes one inotify record. It returns false when the watcher
// should shut down.
func (w *InotifyWatcher) handle(ctx context.Context, wd int, mask uint32, name string, events chan<- FileEvent) bool {
	w.mu.Lock()
	dir, known := w.dirs[wd]
	if mask&unix.IN_IGNORED != 0 {
		delete(w.dirs, wd)
	}
	w.mu.Unlock()

	if !known || name == "" {
		return true
	}
	path := filepath.Join(dir, name)

	if mask&unix.IN_ISDIR != 0 {
		if w.opts.Recursive && mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0 {
			if err := w.addTree(path); err != nil {
				return true
			}
			// Files can land before the new watch exists.
			existing, _ := Scan(path, w.opts)
			for _, p := range existing {
				if !w.emit(ctx, p, events) {
					return false
				}
			}
		}
		return true
	}

	if !w.opts.Match(name) {
		return true
	}
	return w.emit(ctx, path, events)
}

func (w *InotifyWatcher) emit(ctx context.Context, path string, events chan<- FileEvent) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return true
	}
	select {
	case events <- FileEvent{Path: path, Size: info.Size(), Timestamp: time.Now()}:
		return true
	case <-ctx.Done():
		return false
	case <-w.stopCh:
		return false
	}
}

// Scan lists regular files under dir that match opts, sorted by path.
// Subdirectories are included only when opts.Recursive is set.
func Scan(dir string, opts Options) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && opts.Match(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
