package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempFile(t *testing.T) *File {
	t.Helper()
	return New(filepath.Join(t.TempDir(), ".nota", FileName))
}

func TestDefault(t *testing.T) {
	f, err := Default()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if filepath.Base(f.Path) != "scribe.pid" {
		t.Errorf("expected path to end with scribe.pid, got: %s", f.Path)
	}
	if dir := filepath.Base(filepath.Dir(f.Path)); dir != ".nota" {
		t.Errorf("expected parent directory to be .nota, got: %s", dir)
	}
}

func TestWriteAndRead(t *testing.T) {
	f := tempFile(t)

	if err := f.Write(12345); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	pid, err := f.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if pid != 12345 {
		t.Errorf("expected PID 12345, got %d", pid)
	}

	info, err := os.Stat(f.Path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != filePerm {
		t.Errorf("expected permissions %o, got %o", filePerm, info.Mode().Perm())
	}
}

func TestReadNoPIDFile(t *testing.T) {
	if _, err := tempFile(t).Read(); !errors.Is(err, ErrNoPIDFile) {
		t.Errorf("expected ErrNoPIDFile, got: %v", err)
	}
}

func TestReadInvalidPID(t *testing.T) {
	for _, content := range []string{"not-a-number\n", "-5\n", "0"} {
		f := tempFile(t)
		if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(f.Path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := f.Read(); !errors.Is(err, ErrInvalidPID) {
			t.Errorf("Read(%q): expected ErrInvalidPID, got: %v", content, err)
		}
	}
}

func TestRemove(t *testing.T) {
	f := tempFile(t)
	if err := f.Write(1); err != nil {
		t.Fatal(err)
	}
	if err := f.Remove(); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(f.Path); !os.IsNotExist(err) {
		t.Error("PID file should have been removed")
	}
	if err := f.Remove(); err != nil {
		t.Errorf("removing a missing file should succeed, got: %v", err)
	}
}

func TestIsRunningWithCurrentProcess(t *testing.T) {
	f := tempFile(t)
	if err := f.Write(os.Getpid()); err != nil {
		t.Fatal(err)
	}

	running, pid, err := f.IsRunning()
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if !running || pid != os.Getpid() {
		t.Errorf("IsRunning() = %v, %d; want true, %d", running, pid, os.Getpid())
	}
}

func TestIsRunningWithNoPIDFile(t *testing.T) {
	running, pid, err := tempFile(t).IsRunning()
	if err != nil || running || pid != 0 {
		t.Errorf("IsRunning() = %v, %d, %v; want false, 0, nil", running, pid, err)
	}
}

// stalePID is above the default Linux pid_max, so no process can hold it.
const stalePID = 4194304 + 1

func TestIsRunningWithStalePID(t *testing.T) {
	f := tempFile(t)
	if err := f.Write(stalePID); err != nil {
		t.Fatal(err)
	}

	running, pid, err := f.IsRunning()
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if running {
		t.Error("expected stale PID to report not running")
	}
	if pid != stalePID {
		t.Errorf("expected PID %d, got %d", stalePID, pid)
	}
}

func TestCleanStale(t *testing.T) {
	f := tempFile(t)
	if err := f.Write(stalePID); err != nil {
		t.Fatal(err)
	}

	removed, err := f.CleanStale()
	if err != nil || !removed {
		t.Fatalf("CleanStale() = %v, %v; want true, nil", removed, err)
	}
	if _, err := os.Stat(f.Path); !os.IsNotExist(err) {
		t.Error("stale PID file should have been removed")
	}

	if err := f.Write(os.Getpid()); err != nil {
		t.Fatal(err)
	}
	removed, err = f.CleanStale()
	if err != nil || removed {
		t.Errorf("CleanStale() on live process = %v, %v; want false, nil", removed, err)
	}
}

func TestAcquire(t *testing.T) {
	f := tempFile(t)
	if err := f.Write(stalePID); err != nil {
		t.Fatal(err)
	}

	if err := f.Acquire(); err != nil {
		t.Fatalf("Acquire over stale file failed: %v", err)
	}
	if pid, _ := f.Read(); pid != os.Getpid() {
		t.Errorf("expected PID %d after Acquire, got %d", os.Getpid(), pid)
	}

	// PID 1 is always alive.
	if err := f.Write(1); err != nil {
		t.Fatal(err)
	}
	if err := f.Acquire(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got: %v", err)
	}
}
