//go:build linux

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startWatcher(t *testing.T, dir string, opts Options) (<-chan FileEvent, context.Context) {
	t.Helper()

	watcher, err := NewInotifyWatcher()
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	t.Cleanup(func() { watcher.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	events, err := watcher.Watch(ctx, dir, opts)
	if err != nil {
		t.Fatalf("failed to start watch: %v", err)
	}
	return events, ctx
}

func waitFor(t *testing.T, ctx context.Context, events <-chan FileEvent, want string) FileEvent {
	t.Helper()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				t.Fatal("event channel closed")
			}
			if event.Path == want {
				return event
			}
		case <-ctx.Done():
			t.Fatalf("timeout waiting for event on %s", want)
		}
	}
}

func TestInotifyWatcher_DetectsNewFile(t *testing.T) {
	tmpDir := t.TempDir()
	events, ctx := startWatcher(t, tmpDir, Options{Extensions: []string{".wav"}})

	testFile := filepath.Join(tmpDir, "meeting.wav")
	if err := os.WriteFile(testFile, []byte("hello"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	waitFor(t, ctx, events, testFile)
}

func TestInotifyWatcher_ExtensionIsCaseInsensitive(t *testing.T) {
	tmpDir := t.TempDir()
	events, ctx := startWatcher(t, tmpDir, Options{Extensions: []string{".m4a"}})

	testFile := filepath.Join(tmpDir, "Call.M4A")
	if err := os.WriteFile(testFile, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	waitFor(t, ctx, events, testFile)
}

func TestInotifyWatcher_IgnoresNonMatchingExtensions(t *testing.T) {
	tmpDir := t.TempDir()

	watcher, err := NewInotifyWatcher()
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	events, err := watcher.Watch(ctx, tmpDir, Options{Extensions: []string{".m4a"}})
	if err != nil {
		t.Fatalf("failed to start watch: %v", err)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("hello"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	select {
	case event, ok := <-events:
		if ok {
			t.Errorf("unexpected event for %s", event.Path)
		}
	case <-ctx.Done():
	}
}

func TestInotifyWatcher_DetectsMovedFile(t *testing.T) {
	tmpDir := t.TempDir()
	staging := t.TempDir()
	events, ctx := startWatcher(t, tmpDir, Options{})

	src := filepath.Join(staging, "dropped.mp3")
	if err := os.WriteFile(src, []byte("audio"), 0644); err != nil {
		t.Fatalf("failed to create staging file: %v", err)
	}
	dest := filepath.Join(tmpDir, "dropped.mp3")
	if err := os.Rename(src, dest); err != nil {
		t.Fatalf("failed to move file: %v", err)
	}

	event := waitFor(t, ctx, events, dest)
	if event.Size != 5 {
		t.Errorf("expected size 5, got %d", event.Size)
	}
}

func TestInotifyWatcher_Recursive(t *testing.T) {
	tmpDir := t.TempDir()
	existing := filepath.Join(tmpDir, "client-a")
	if err := os.MkdirAll(existing, 0755); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}

	events, ctx := startWatcher(t, tmpDir, Options{Recursive: true, Extensions: []string{".wav"}})

	inExisting := filepath.Join(existing, "one.wav")
	if err := os.WriteFile(inExisting, []byte("1"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	waitFor(t, ctx, events, inExisting)

	created := filepath.Join(tmpDir, "client-b", "nested")
	if err := os.MkdirAll(created, 0755); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}
	// Give the watcher time to add the new directories.
	time.Sleep(200 * time.Millisecond)

	inCreated := filepath.Join(created, "two.wav")
	if err := os.WriteFile(inCreated, []byte("2"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	waitFor(t, ctx, events, inCreated)
}

func TestInotifyWatcher_StopClosesChannel(t *testing.T) {
	watcher, err := NewInotifyWatcher()
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	events, err := watcher.Watch(context.Background(), t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("failed to start watch: %v", err)
	}

	if err := watcher.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, ok := <-events; ok {
		t.Error("expected closed channel after Stop")
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
}

func TestInotifyWatcher_MissingDir(t *testing.T) {
	watcher, err := NewInotifyWatcher()
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	if _, err := watcher.Watch(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{}); err == nil {
		t.Error("expected error for missing directory")
	}
}
