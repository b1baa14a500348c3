package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// recordingRunner captures git operations instead of executing them.
type recordingRunner struct {
	cloned       []string
	unshallowErr error
	deepened     bool
	revParse     map[string]string
}

func (r *recordingRunner) Clone(ctx context.Context, url, dest string, depth int) error {
	r.cloned = append(r.cloned, url)
	return os.MkdirAll(dest, 0755)
}

func (r *recordingRunner) FetchUnshallow(ctx context.Context, dir string) error {
	return r.unshallowErr
}

func (r *recordingRunner) FetchDeepen(ctx context.Context, dir string, depth int) error {
	r.deepened = true
	return nil
}

func (r *recordingRunner) RevParse(ctx context.Context, dir, ref string) (string, error) {
	if out, ok := r.revParse[ref]; ok {
		return out, nil
	}
	return "", errors.New("unknown revision")
}

func TestCloneReplacesExistingWorkspace(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "workspace")
	stale := filepath.Join(dest, "stale.txt")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(stale, []byte("old"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	runner := &recordingRunner{}
	m := NewManagerWithRunner(runner)

	if err := m.Clone(context.Background(), "https://example.com/app.git", dest); err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if len(runner.cloned) != 1 || runner.cloned[0] != "https://example.com/app.git" {
		t.Errorf("Expected one clone of the repo URL, got: %v", runner.cloned)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("Expected stale workspace contents to be removed before cloning")
	}
}

// flakyRunner fails the first N clone attempts.
type flakyRunner struct {
	recordingRunner
	failures int
	attempts int
}

func (r *flakyRunner) Clone(ctx context.Context, url, dest string, depth int) error {
	r.attempts++
	if r.attempts <= r.failures {
		return errors.New("fatal: early EOF")
	}
	return os.MkdirAll(dest, 0755)
}

func TestCloneRetriesOnce(t *testing.T) {
	runner := &flakyRunner{failures: 1}
	m := NewManagerWithRunner(runner)
	dest := filepath.Join(t.TempDir(), "ws")

	if err := m.Clone(context.Background(), "https://example.com/app.git", dest); err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if runner.attempts != 2 {
		t.Errorf("Expected 2 attempts, got: %v", runner.attempts)
	}
}

func TestCloneFailsAfterRetry(t *testing.T) {
	runner := &flakyRunner{failures: 2}
	m := NewManagerWithRunner(runner)

	err := m.Clone(context.Background(), "https://example.com/app.git", filepath.Join(t.TempDir(), "ws"))
	if err == nil {
		t.Fatal("Expected error when both attempts fail")
	}
	var ce *CloneError
	if !errors.As(err, &ce) {
		t.Errorf("Expected CloneError, got: %T", err)
	}
	if runner.attempts != 2 {
		t.Errorf("Expected exactly 2 attempts, got: %v", runner.attempts)
	}
}

func TestCloneURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"owner/app", "https://github.com/owner/app.git"},
		{"owner/app.git", "https://github.com/owner/app.git"},
		{"https://example.com/app.git", "https://example.com/app.git"},
		{"git@github.com:owner/app.git", "git@github.com:owner/app.git"},
	}
	for _, tc := range cases {
		if got := CloneURL(tc.in); got != tc.want {
			t.Errorf("CloneURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDeepenFallsBackToDeepen(t *testing.T) {
	runner := &recordingRunner{unshallowErr: errors.New("--unshallow on a complete repository")}
	m := NewManagerWithRunner(runner)

	if err := m.Deepen(context.Background(), "/tmp/ws"); err != nil {
		t.Fatalf("Deepen failed: %v", err)
	}
	if !runner.deepened {
		t.Error("Expected FetchDeepen after --unshallow was rejected")
	}
}

func TestHasCommit(t *testing.T) {
	full := "a1b2c3d4e5f60718293a4b5c6d7e8f9012345678"
	runner := &recordingRunner{revParse: map[string]string{
		full + "^{commit}":       full,
		"a1b2c3d4" + "^{commit}": full,
	}}
	m := NewManagerWithRunner(runner)
	ctx := context.Background()

	if !m.HasCommit(ctx, "/tmp/ws", full) {
		t.Error("Expected full hash to be present")
	}
	if !m.HasCommit(ctx, "/tmp/ws", "a1b2c3d4") {
		t.Error("Expected abbreviated hash to be present")
	}
	if m.HasCommit(ctx, "/tmp/ws", "deadbeef") {
		t.Error("Expected unknown commit to be absent")
	}
}

func TestCleanupReadOnlyFiles(t *testing.T) {
	dir := t.TempDir()
	ws := filepath.Join(dir, "ws")
	nested := filepath.Join(ws, ".gradle", "caches")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	locked := filepath.Join(nested, "module.lock")
	if err := os.WriteFile(locked, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chmod(nested, 0555); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	if err := Cleanup(ws); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if _, err := os.Stat(ws); !os.IsNotExist(err) {
		t.Error("Expected workspace to be removed")
	}
}

func TestCleanupMissingDir(t *testing.T) {
	if err := Cleanup(filepath.Join(t.TempDir(), "never-existed")); err != nil {
		t.Errorf("Expected nil for missing directory, got: %v", err)
	}
}
