package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// cloneDepth bounds the history fetched on the first attempt. Deep enough
// for most base commits; Deepen covers the rest.
const cloneDepth = 1000

// cloneTimeout bounds the first clone attempt; the retry gets double.
const cloneTimeout = 10 * time.Minute

// CloneError wraps failures to materialize a repository on disk.
type CloneError struct {
	URL string
	Err error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("clone %s: %v", e.URL, e.Err)
}

func (e *CloneError) Unwrap() error { return e.Err }

// Manager materializes repository workspaces on the host.
type Manager struct {
	git Runner
}

// NewManager creates a workspace manager using the host git binary.
func NewManager() *Manager {
	return &Manager{git: NewExecRunner()}
}

// NewManagerWithRunner creates a workspace manager with a custom runner.
func NewManagerWithRunner(git Runner) *Manager {
	return &Manager{git: git}
}

// Clone clones url into dest. The destination's parent is created as
// needed; an existing destination is removed first. A failed attempt is
// retried once against a fresh destination with an extended timeout,
// since large Android repositories routinely trip transient network
// failures.
func (m *Manager) Clone(ctx context.Context, url, dest string) error {
	if err := Cleanup(dest); err != nil {
		return &CloneError{URL: url, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return &CloneError{URL: url, Err: err}
	}

	attempt := func(timeout time.Duration) error {
		cloneCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return m.git.Clone(cloneCtx, url, dest, cloneDepth)
	}

	err := attempt(cloneTimeout)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return &CloneError{URL: url, Err: err}
	}
	if cleanupErr := Cleanup(dest); cleanupErr != nil {
		return &CloneError{URL: url, Err: cleanupErr}
	}
	if err := attempt(2 * cloneTimeout); err != nil {
		return &CloneError{URL: url, Err: err}
	}
	return nil
}

// Deepen extends the history of a shallow workspace so an older base commit
// becomes reachable. Tries a full unshallow first, then an incremental
// deepen for repositories that reject --unshallow.
func (m *Manager) Deepen(ctx context.Context, dir string) error {
	if err := m.git.FetchUnshallow(ctx, dir); err == nil {
		return nil
	}
	return m.git.FetchDeepen(ctx, dir, 10000)
}

// CloneURL maps a dataset repo value to a cloneable URL. Full URLs and
// scp-style remotes pass through; bare owner/name values resolve to
// GitHub.
func CloneURL(repo string) string {
	if strings.Contains(repo, "://") || strings.HasPrefix(repo, "git@") {
		return repo
	}
	return "https://github.com/" + strings.TrimSuffix(repo, ".git") + ".git"
}

// HasCommit reports whether the workspace history contains the commit.
func (m *Manager) HasCommit(ctx context.Context, dir, commit string) bool {
	resolved, err := m.git.RevParse(ctx, dir, commit+"^{commit}")
	if err != nil {
		return false
	}
	return strings.HasPrefix(resolved, commit) || strings.HasPrefix(commit, resolved)
}

// Cleanup removes a workspace directory. Gradle caches drop read-only
// files, so permission errors trigger a chmod sweep before retrying.
func Cleanup(dir string) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	err := os.RemoveAll(dir)
	if err == nil {
		return nil
	}
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		mode := fs.FileMode(0644)
		if d.IsDir() {
			mode = 0755
		}
		_ = os.Chmod(path, mode)
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("cleanup %s: %w", dir, walkErr)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("cleanup %s: %w", dir, err)
	}
	return nil
}
