package scribe

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/naming"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/stabilizer"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/store"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/transcription"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/watcher"
)

type fakeWatcher struct {
	events  chan watcher.FileEvent
	stopped atomic.Bool
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{events: make(chan watcher.FileEvent, 10)}
}

func (w *fakeWatcher) Watch(ctx context.Context, dir string, opts watcher.Options) (<-chan watcher.FileEvent, error) {
	return w.events, nil
}

func (w *fakeWatcher) Stop() error {
	w.stopped.Store(true)
	return nil
}

func quickDetector(sleep stabilizer.SleepFunc) *stabilizer.Detector {
	return &stabilizer.Detector{Wait: 5 * time.Second, MaxChecks: 5, RequiredStable: 2, Sleep: sleep}
}

func (e *testEnv) service(tr *fakeTranscriber, opts ...ServiceOption) *Service {
	proc := e.processor(tr, newFakeAI("summary", "Meeting Notes", naming.ValidSentinel))
	opts = append([]ServiceOption{WithDetector(quickDetector(noSleep))}, opts...)
	return NewService(e.cfg, proc, e.store, nil, opts...)
}

func jobCount(t *testing.T, st *store.Store) int {
	t.Helper()
	_, total, err := st.ListJobs(context.Background(), store.JobFilter{})
	require.NoError(t, err)
	return total
}

// countJobs is jobCount for polling goroutines, which must not call t.FailNow.
func countJobs(st *store.Store) int {
	_, total, err := st.ListJobs(context.Background(), store.JobFilter{})
	if err != nil {
		return -1
	}
	return total
}

func TestHandle_ProcessesStableFile(t *testing.T) {
	env := newTestEnv(t)
	src := writeAudio(t, env.watch, "meeting.wav")
	svc := env.service(&fakeTranscriber{text: "hello"})

	adm := svc.Handle(context.Background(), src)
	require.Equal(t, Processed, adm.Outcome)
	require.NoError(t, adm.Err)
	assert.Equal(t, store.StatusCompleted, adm.Job.Status)
	assert.Empty(t, svc.Status().InFlight)
}

func TestHandle_ConcurrentEventsProcessOnce(t *testing.T) {
	env := newTestEnv(t)
	src := writeAudio(t, env.watch, "meeting.wav")
	tr := &fakeTranscriber{text: "hello"}

	release := make(chan struct{})
	blocking := func(ctx context.Context, d time.Duration) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	svc := env.service(tr, WithDetector(quickDetector(blocking)))

	const n = 50
	results := make(chan Admission, n)
	for i := 0; i < n; i++ {
		go func() {
			results <- svc.Handle(context.Background(), src)
		}()
	}

	// The winner is parked in its stability poll until every duplicate is back.
	for i := 0; i < n-1; i++ {
		select {
		case adm := <-results:
			require.Equal(t, Duplicate, adm.Outcome)
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for duplicate admissions")
		}
	}
	close(release)

	select {
	case adm := <-results:
		require.Equal(t, Processed, adm.Outcome)
		require.NoError(t, adm.Err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the processed admission")
	}

	assert.Equal(t, 1, tr.Calls())
	assert.Equal(t, 1, jobCount(t, env.store))
}

func TestHandle_VanishedFile(t *testing.T) {
	env := newTestEnv(t)
	svc := env.service(&fakeTranscriber{text: "hello"})

	adm := svc.Handle(context.Background(), filepath.Join(env.watch, "gone.wav"))
	assert.Equal(t, Vanished, adm.Outcome)
	assert.Zero(t, jobCount(t, env.store))
}

func TestHandle_UnsupportedExtension(t *testing.T) {
	env := newTestEnv(t)
	src := writeAudio(t, env.watch, "notes.txt")
	svc := env.service(&fakeTranscriber{text: "hello"})

	adm := svc.Handle(context.Background(), src)
	assert.Equal(t, Unsupported, adm.Outcome)
	assert.FileExists(t, src)
	assert.Zero(t, jobCount(t, env.store))
}

func TestHandle_CancelledStabilityReleasesGuard(t *testing.T) {
	env := newTestEnv(t)
	src := writeAudio(t, env.watch, "meeting.wav")
	svc := env.service(&fakeTranscriber{text: "hello"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	adm := svc.Handle(ctx, src)
	assert.Equal(t, Unstable, adm.Outcome)
	assert.ErrorIs(t, adm.Err, context.Canceled)
	assert.Empty(t, svc.Status().InFlight)
	assert.Zero(t, jobCount(t, env.store))
}

func TestHandle_PipelineUnavailable(t *testing.T) {
	env := newTestEnv(t)
	src := writeAudio(t, env.watch, "meeting.wav")
	svc := NewService(env.cfg, nil, env.store, nil)

	adm := svc.Handle(context.Background(), src)
	assert.Equal(t, Unavailable, adm.Outcome)
	assert.ErrorIs(t, adm.Err, ErrPipelineUnavailable)

	_, err := svc.Submit(context.Background(), src)
	assert.ErrorIs(t, err, ErrPipelineUnavailable)
	assert.ErrorIs(t, svc.Enqueue(src), ErrPipelineUnavailable)
}

func TestHandle_BoundedConcurrency(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Processing.MaxConcurrent = 1

	var running, peak atomic.Int32
	tr := &gatedTranscriber{running: &running, peak: &peak}
	proc := env.processor(tr, newFakeAI("summary", "Notes", naming.ValidSentinel))
	svc := NewService(env.cfg, proc, env.store, nil, WithDetector(quickDetector(noSleep)))

	var wg sync.WaitGroup
	for _, name := range []string{"a.wav", "b.wav", "c.wav"} {
		src := writeAudio(t, env.watch, name)
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Handle(context.Background(), src)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, 3, jobCount(t, env.store))
}

func TestHandle_MeetingScenario(t *testing.T) {
	env := newTestEnv(t)
	src := filepath.Join(env.watch, "meeting.wav")
	require.NoError(t, os.WriteFile(src, make([]byte, 2_000_000), 0644))
	existing := writeAudio(t, env.processed, "meeting.wav")

	transcript := "[Speaker 0]: Hello. [Speaker 1]: Hi there."
	proposal := "20240101 Call with Jane Doe re Greeting - 1min"
	tr := &fakeTranscriber{text: transcript}
	proc := env.processor(tr, newFakeAI("Summary: greeting exchange", proposal, naming.ValidSentinel))
	svc := NewService(env.cfg, proc, env.store, nil, WithDetector(quickDetector(noSleep)))

	adm := svc.Handle(context.Background(), src)
	require.Equal(t, Processed, adm.Outcome)
	require.NoError(t, adm.Err)

	job, err := env.store.GetJob(context.Background(), adm.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, job.Status)
	assert.Equal(t, proposal, job.FinalFilename)
	require.NotNil(t, job.NamingConfidence)
	assert.InDelta(t, 0.9, *job.NamingConfidence, 1e-9)

	wantOut := filepath.Join(env.output, proposal+".md")
	assert.Equal(t, wantOut, job.OutputPath)
	content, err := os.ReadFile(wantOut)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Summary: greeting exchange")
	assert.Contains(t, string(content), transcript)

	assert.NoFileExists(t, src)
	assert.FileExists(t, existing, "existing processed file must be kept")
	moved := filepath.Join(env.processed, "meeting_1.wav")
	require.FileExists(t, moved)
	info, err := os.Stat(moved)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), info.Size())
	assert.Equal(t, 1, tr.Calls())
}

func TestSubmit_RejectsPathInFlight(t *testing.T) {
	env := newTestEnv(t)
	src := writeAudio(t, env.watch, "meeting.wav")
	svc := env.service(&fakeTranscriber{text: "hello"})

	require.True(t, svc.guard.TryAcquire(src))
	_, err := svc.Submit(context.Background(), src)
	assert.ErrorIs(t, err, ErrInProgress)
	assert.ErrorIs(t, svc.Enqueue(src), ErrInProgress)
	svc.guard.Release(src)

	job, err := svc.Submit(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, job.Status)
}

func TestEnqueue_ProcessesInBackground(t *testing.T) {
	env := newTestEnv(t)
	src := writeAudio(t, env.watch, "meeting.wav")
	svc := env.service(&fakeTranscriber{text: "hello"})

	require.NoError(t, svc.Enqueue(src))
	require.True(t, svc.Wait(10*time.Second))
	assert.Equal(t, 1, jobCount(t, env.store))
	assert.FileExists(t, filepath.Join(env.processed, "meeting.wav"))
}

func TestRun_ProcessesExistingAndNewFiles(t *testing.T) {
	env := newTestEnv(t)
	writeAudio(t, env.watch, "existing.wav")
	fw := newFakeWatcher()
	svc := env.service(&fakeTranscriber{text: "hello"}, WithWatcher(fw))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return countJobs(env.store) == 1 }, 10*time.Second, 10*time.Millisecond)
	assert.True(t, svc.Status().Running)

	fresh := writeAudio(t, env.watch, "fresh.wav")
	fw.events <- watcher.FileEvent{Path: fresh, Size: 23, Timestamp: time.Now()}
	require.Eventually(t, func() bool { return countJobs(env.store) == 2 }, 10*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, fw.stopped.Load())
	assert.False(t, svc.Status().Running)
	assert.FileExists(t, filepath.Join(env.processed, "existing.wav"))
	assert.FileExists(t, filepath.Join(env.processed, "fresh.wav"))
}

func TestEnqueue_RejectedAfterShutdown(t *testing.T) {
	env := newTestEnv(t)
	fw := newFakeWatcher()
	svc := env.service(&fakeTranscriber{text: "hello"}, WithWatcher(fw))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	require.Eventually(t, func() bool { return svc.Status().Running }, 10*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	src := writeAudio(t, env.watch, "late.wav")
	assert.ErrorIs(t, svc.Enqueue(src), ErrStopping)
	assert.Empty(t, svc.Status().InFlight, "rejected path must release the guard")
	assert.FileExists(t, src)
	assert.Zero(t, jobCount(t, env.store))
}

func TestRun_DegradedWithoutWatchFolder(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.RemoveAll(env.watch))
	fw := newFakeWatcher()
	svc := env.service(&fakeTranscriber{text: "hello"}, WithWatcher(fw))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return len(svc.Status().Problems) > 0 }, 10*time.Second, 10*time.Millisecond)
	st := svc.Status()
	assert.False(t, st.Running)
	assert.False(t, st.FolderExists)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, fw.stopped.Load())
}

func TestSweep_RemovesJobsPastRetention(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.store.CreateJob(ctx, "old.wav", "/watch/old.wav")
	require.NoError(t, err)

	svc := env.service(&fakeTranscriber{}, WithClock(func() time.Time {
		return time.Now().AddDate(0, 0, env.cfg.Retention.JobDays+1)
	}))
	svc.Sweep(ctx)
	assert.Zero(t, jobCount(t, env.store))
}

func TestSweep_KeepsRecentJobs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.store.CreateJob(ctx, "new.wav", "/watch/new.wav")
	require.NoError(t, err)

	env.service(&fakeTranscriber{}).Sweep(ctx)
	assert.Equal(t, 1, jobCount(t, env.store))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "duplicate", Duplicate.String())
	assert.Equal(t, "unavailable", Unavailable.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}

// gatedTranscriber records how many calls overlap.
type gatedTranscriber struct {
	running *atomic.Int32
	peak    *atomic.Int32
}

func (g *gatedTranscriber) Transcribe(ctx context.Context, path string, opts transcription.Options) (*transcription.Result, error) {
	n := g.running.Add(1)
	defer g.running.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return &transcription.Result{Text: "hello"}, nil
}
