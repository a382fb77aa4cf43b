package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/pidfile"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/store"
)

func TestJobsList_ShowsJobs(t *testing.T) {
	testVault(t)
	st := seedStore(t)
	createJob(t, st, "standup.wav", store.StatusCompleted)
	createJob(t, st, "broken.wav", store.StatusFailed)

	out, err := execute(t, "jobs", "list")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	for _, want := range []string{"standup.wav", "broken.wav", "completed", "failed", "Showing 2 of 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestJobsList_FiltersByStatus(t *testing.T) {
	testVault(t)
	st := seedStore(t)
	createJob(t, st, "standup.wav", store.StatusCompleted)
	createJob(t, st, "broken.wav", store.StatusFailed)

	out, err := execute(t, "jobs", "list", "--status", "failed")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if strings.Contains(out, "standup.wav") || !strings.Contains(out, "broken.wav") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestJobsList_RejectsUnknownStatus(t *testing.T) {
	testVault(t)

	if _, err := execute(t, "jobs", "list", "--status", "bogus"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestJobsList_Empty(t *testing.T) {
	testVault(t)

	out, err := execute(t, "jobs", "list")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if out != "No jobs\n" {
		t.Errorf("expected 'No jobs', got: %q", out)
	}
}

func TestJobsShow_PrintsJob(t *testing.T) {
	testVault(t)
	st := seedStore(t)
	job := createJob(t, st, "broken.wav", store.StatusFailed)

	out, err := execute(t, "jobs", "show", strconv.FormatInt(job.ID, 10))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	for _, want := range []string{"broken.wav", "failed", "empty transcript"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestJobsShow_JSON(t *testing.T) {
	testVault(t)
	st := seedStore(t)
	job := createJob(t, st, "standup.wav", store.StatusCompleted)

	out, err := execute(t, "jobs", "show", "--json", strconv.FormatInt(job.ID, 10))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	var got store.Job
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("expected JSON output: %v\n%s", err, out)
	}
	if got.ID != job.ID || got.Status != store.StatusCompleted {
		t.Errorf("unexpected job: %+v", got)
	}
}

func TestJobsShow_NotFound(t *testing.T) {
	testVault(t)

	_, err := execute(t, "jobs", "show", "42")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got: %v", err)
	}
}

func TestJobsShow_InvalidID(t *testing.T) {
	testVault(t)

	if _, err := execute(t, "jobs", "show", "abc"); err == nil {
		t.Error("expected error for invalid id")
	}
}

func TestLogs_FiltersByJob(t *testing.T) {
	testVault(t)
	st := seedStore(t)
	ctx := context.Background()
	a := createJob(t, st, "a.wav", store.StatusPending)
	b := createJob(t, st, "b.wav", store.StatusPending)
	for _, e := range []store.LogEntry{
		{JobID: &a.ID, Level: "INFO", Message: "transcribing a"},
		{JobID: &b.ID, Level: "ERROR", Message: "transcribing b failed"},
		{Level: "INFO", Message: "watching for files"},
	} {
		if err := st.AppendLog(ctx, e); err != nil {
			t.Fatalf("append log: %v", err)
		}
	}

	out, err := execute(t, "logs", "--job", strconv.FormatInt(a.ID, 10))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(out, "transcribing a") || strings.Contains(out, "transcribing b") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = execute(t, "logs", "--level", "error")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(out, "transcribing b failed") || strings.Contains(out, "watching") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestCleanup_RemovesOldJobs(t *testing.T) {
	testVault(t)
	old := openSeedStore(t, store.WithClock(func() time.Time {
		return time.Now().AddDate(0, 0, -100)
	}))
	createJob(t, old, "old.wav", store.StatusPending)
	st := seedStore(t)
	createJob(t, st, "new.wav", store.StatusPending)

	out, err := execute(t, "cleanup")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(out, "Removed 1 jobs older than 90 days") {
		t.Errorf("unexpected output: %q", out)
	}

	_, total, err := st.ListJobs(context.Background(), store.JobFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("expected 1 job left, got %d", total)
	}
}

func TestCleanup_DaysFlag(t *testing.T) {
	testVault(t)
	old := openSeedStore(t, store.WithClock(func() time.Time {
		return time.Now().AddDate(0, 0, -10)
	}))
	createJob(t, old, "old.wav", store.StatusPending)

	out, err := execute(t, "cleanup", "--days", "30")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(out, "Removed 0 jobs") {
		t.Errorf("unexpected output: %q", out)
	}

	out, err = execute(t, "cleanup", "--days", "5")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(out, "Removed 1 jobs") {
		t.Errorf("unexpected output: %q", out)
	}

	if _, err := execute(t, "cleanup", "--days", "0"); err == nil {
		t.Error("expected error for non-positive days")
	}
}

func TestConfigFlag_ReadsExplicitFile(t *testing.T) {
	root := testVault(t)
	other := t.TempDir()
	chdir(t, other)

	_, err := execute(t, "jobs", "list")
	if err == nil {
		t.Fatal("expected error outside a vault without --config")
	}

	out, err := execute(t, "--config", scribe.ConfigPath(root), "jobs", "list")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if out != "No jobs\n" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestConfigEnv_ReadsNamedFile(t *testing.T) {
	root := testVault(t)
	chdir(t, t.TempDir())
	t.Setenv("SCRIBE_CONFIG", scribe.ConfigPath(root))

	out, err := execute(t, "jobs", "list")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if out != "No jobs\n" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestStatus_NotRunning(t *testing.T) {
	testVault(t)

	out, err := execute(t, "status")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	for _, want := range []string{
		"Scribe is not running",
		"Transcription: not configured",
		"Database:      yes",
		"Problems:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestStatus_LiveConnectionCheck(t *testing.T) {
	root := testVault(t)
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")
	t.Setenv("OPENAI_API_KEY", "revoked")

	deepgram := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"projects": []}`))
	}))
	defer deepgram.Close()
	openai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer openai.Close()

	path := filepath.Join(root, ".nota", "scribe.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	cfg := strings.Replace(string(data), "model: nova-2", "model: nova-2\n  base_url: "+deepgram.URL, 1)
	cfg = strings.Replace(cfg, "model: gpt-4o", "model: gpt-4o\n  base_url: "+openai.URL, 1)
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := execute(t, "status")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(out, "Summarization: configured") {
		t.Errorf("expected keys to be reported as configured without --live, got:\n%s", out)
	}

	out, err = execute(t, "status", "--live")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	for _, want := range []string{
		"Healthy:       no",
		"Transcription: connected",
		"Summarization: unavailable",
		"summarization: ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestStatus_OutsideVault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NOTA_VAULT_ROOT", "")
	t.Setenv("SCRIBE_CONFIG", "")
	chdir(t, t.TempDir())

	out, err := execute(t, "status")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(out, "Scribe is not running") || !strings.Contains(out, "Config: unavailable") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestStop_NotRunning(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, err := execute(t, "stop")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if out != "Scribe is not running\n" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestStop_RemovesStalePIDFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	pf, err := pidfile.Default()
	if err != nil {
		t.Fatal(err)
	}
	// Above any real pid_max.
	if err := pf.Write(999999999); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "stop")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(out, "removed stale PID file") {
		t.Errorf("unexpected output: %q", out)
	}
	if _, err := os.Stat(pf.Path); !os.IsNotExist(err) {
		t.Error("expected stale PID file to be removed")
	}
}

func TestProcess_PipelineNotConfigured(t *testing.T) {
	root := testVault(t)
	src := filepath.Join(root, "Inbox", "Audio", "memo.wav")
	if err := os.WriteFile(src, []byte("RIFF"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, "process", src)
	if !errors.Is(err, scribe.ErrPipelineUnavailable) {
		t.Errorf("expected ErrPipelineUnavailable, got: %v", err)
	}
	if _, statErr := os.Stat(src); statErr != nil {
		t.Error("expected source to stay in place")
	}
}

func TestProcess_MissingFile(t *testing.T) {
	testVault(t)

	if _, err := execute(t, "process", "nope.wav"); err == nil {
		t.Error("expected error for missing file")
	}
}
