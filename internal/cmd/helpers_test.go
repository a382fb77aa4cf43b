package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/store"
)

// testVault initializes a vault in a temp directory with HOME pointed at
// another temp directory, and makes the vault the working directory.
func testVault(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NOTA_VAULT_ROOT", "")
	t.Setenv("SCRIBE_CONFIG", "")
	t.Setenv("DEEPGRAM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	root := t.TempDir()
	chdir(t, root)

	if _, err := execute(t, "init", "test-vault"); err != nil {
		t.Fatalf("init: %v", err)
	}
	return root
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// seedStore opens the vault's job database for direct writes.
func seedStore(t *testing.T) *store.Store {
	t.Helper()
	return openSeedStore(t)
}

func openSeedStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(filepath.Join(home, ".nota", "scribe.db"), opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func createJob(t *testing.T, st *store.Store, name string, final store.Status) *store.Job {
	t.Helper()
	ctx := context.Background()
	job, err := st.CreateJob(ctx, name, "/watch/"+name)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if final == store.StatusPending {
		return job
	}
	if err := st.Transition(ctx, job.ID, store.StatusProcessing); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if final != store.StatusProcessing {
		var opts []store.TransitionOption
		if final == store.StatusFailed {
			opts = append(opts, store.WithErrorMessage("empty transcript"))
		}
		if err := st.Transition(ctx, job.ID, final, opts...); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}
	job, err = st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	return job
}
