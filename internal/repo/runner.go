// Package repo manages host-side repository workspaces: cloning, commit
// deepening, cleanup, and patch text inspection.
package repo

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner abstracts the git operations the workspace manager needs, so tests
// can substitute a fake.
type Runner interface {
	Clone(ctx context.Context, url, dest string, depth int) error
	FetchUnshallow(ctx context.Context, dir string) error
	FetchDeepen(ctx context.Context, dir string, depth int) error
	RevParse(ctx context.Context, dir, ref string) (string, error)
}

// ExecRunner implements Runner using exec.Command.
type ExecRunner struct{}

// NewExecRunner creates a git runner backed by the host git binary.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// run executes a git command in dir and returns its trimmed output.
func (r *ExecRunner) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// Clone clones url into dest with submodules and a bounded history depth.
func (r *ExecRunner) Clone(ctx context.Context, url, dest string, depth int) error {
	_, err := r.run(ctx, "", "clone", "--recursive", "--depth", fmt.Sprintf("%d", depth), url, dest)
	return err
}

// FetchUnshallow converts a shallow clone into a full one.
func (r *ExecRunner) FetchUnshallow(ctx context.Context, dir string) error {
	_, err := r.run(ctx, dir, "fetch", "--unshallow")
	return err
}

// FetchDeepen extends a shallow clone's history by depth commits.
func (r *ExecRunner) FetchDeepen(ctx context.Context, dir string, depth int) error {
	_, err := r.run(ctx, dir, "fetch", fmt.Sprintf("--deepen=%d", depth))
	return err
}

// RevParse resolves a ref to a full commit hash.
func (r *ExecRunner) RevParse(ctx context.Context, dir, ref string) (string, error) {
	return r.run(ctx, dir, "rev-parse", ref)
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
