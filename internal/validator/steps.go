package validator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mobilebench/benchval/internal/buildcfg"
	"github.com/mobilebench/benchval/internal/container"
	"github.com/mobilebench/benchval/internal/dataset"
	"github.com/mobilebench/benchval/internal/repo"
	"github.com/mobilebench/benchval/internal/testrun"
	"github.com/mobilebench/benchval/internal/transition"
)

// Container workspace layout. The pristine snapshot taken right after
// checkout seeds the post workspace so both phases start from the same
// tree.
const (
	workspacePath = "/workspace"
	pristinePath  = "/workspace_pristine"
	postPath      = "/workspace_clean"
)

// PatchError reports that every application strategy failed; the last
// strategy's diagnostic is preserved.
type PatchError struct {
	Name       string
	Diagnostic string
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("apply %s: all strategies failed: %s", e.Name, e.Diagnostic)
}

// instanceState carries one instance through the pipeline. Step functions
// take and return it so the flow reads as a chain.
type instanceState struct {
	instance dataset.Instance
	result   *Result
	cfg      buildcfg.Config
	hostDir  string
	targets  testrun.Targets
	pre      testrun.ExecutionResult
	post     testrun.ExecutionResult
}

// stepClone materializes the repository on the host and makes sure the
// base commit is reachable before the tree goes into the container.
func (v *Validator) stepClone(ctx context.Context, st *instanceState) error {
	st.hostDir = filepath.Join(v.opts.WorkDir, st.instance.InstanceID)
	url := repo.CloneURL(st.instance.Repo)
	v.log.Log("[%s] cloning %s", st.instance.InstanceID, url)
	if err := v.repos.Clone(ctx, url, st.hostDir); err != nil {
		return err
	}
	if !v.repos.HasCommit(ctx, st.hostDir, st.instance.BaseCommit) {
		// Outside the default depth; the container-side checkout has its
		// own fallback, so deepen failures only get logged.
		if err := v.repos.Deepen(ctx, st.hostDir); err != nil {
			v.log.Log("[%s] deepen history: %v", st.instance.InstanceID, err)
		}
	}
	st.result.RepoCloned = true
	st.result.Stage = StageCloned
	return nil
}

// stepConfigure detects the toolchain. Detection never fails the
// instance; everything questionable lands in ConfigWarnings.
func (v *Validator) stepConfigure(ctx context.Context, st *instanceState) error {
	cfg, warnings := buildcfg.Detect(st.hostDir)
	cfg, err := buildcfg.ApplyOverrides(st.hostDir, cfg)
	if err != nil {
		warnings = append(warnings, err.Error())
	}
	st.cfg = cfg
	st.result.ConfigWarnings = warnings
	st.result.ConfigParsed = true
	st.result.Stage = StageConfigured
	v.log.Log("[%s] config: java=%s gradle=%s agp=%s kotlin=%v warnings=%d",
		st.instance.InstanceID, cfg.JavaVersion, cfg.GradleVersion, cfg.AGPVersion, cfg.HasKotlin, len(warnings))
	return nil
}

// stepProvision creates the container and copies the workspace in.
func (v *Validator) stepProvision(ctx context.Context, st *instanceState) error {
	id := st.instance.InstanceID
	if _, err := v.containers.Create(ctx, id); err != nil {
		return err
	}
	st.result.ContainerCreated = true
	if err := v.containers.CopyIn(ctx, id, st.hostDir, workspacePath); err != nil {
		return &container.ProvisionError{Instance: id, Err: err}
	}
	st.result.Stage = StageContainerReady
	return nil
}

// stepCheckout forces the workspace onto the base commit and snapshots the
// pristine tree for the post phase.
func (v *Validator) stepCheckout(ctx context.Context, st *instanceState) error {
	id := st.instance.InstanceID
	commit := st.instance.BaseCommit

	prep := strings.Join([]string{
		"git config --global --add safe.directory " + workspacePath,
		"git submodule foreach --recursive git reset --hard || true",
		"git reset --hard",
		"git clean -fdx",
	}, " && ")
	if _, err := v.exec(ctx, id, workspacePath, prep, 5*time.Minute); err != nil {
		return fmt.Errorf("reset workspace: %w", err)
	}

	checkout := fmt.Sprintf("git checkout --force %s", commit)
	if res, err := v.exec(ctx, id, workspacePath, checkout, 5*time.Minute); err != nil || res.ExitCode != 0 {
		// The shallow clone may not reach the base commit yet.
		deepen := "git fetch --unshallow || git fetch --deepen=10000"
		if _, err := v.exec(ctx, id, workspacePath, deepen, 10*time.Minute); err != nil {
			return fmt.Errorf("deepen history for %s: %w", commit, err)
		}
		if res, err := v.exec(ctx, id, workspacePath, checkout, 5*time.Minute); err != nil {
			return err
		} else if res.ExitCode != 0 {
			return fmt.Errorf("checkout %s: %s", commit, tail(res.Output, 500))
		}
	}

	post := strings.Join([]string{
		"git submodule update --init --recursive || true",
		"git rev-parse HEAD",
	}, " && ")
	res, err := v.exec(ctx, id, workspacePath, post, 10*time.Minute)
	if err != nil {
		return err
	}
	head := lastLine(res.Output)
	if !strings.HasPrefix(head, commit) && !strings.HasPrefix(commit, head) {
		return fmt.Errorf("checkout verification failed: HEAD %s is not %s", head, commit)
	}

	snapshot := fmt.Sprintf("rm -rf %s && cp -a %s %s", pristinePath, workspacePath, pristinePath)
	if _, err := v.exec(ctx, id, "/", snapshot, 10*time.Minute); err != nil {
		return fmt.Errorf("snapshot pristine tree: %w", err)
	}

	st.result.BaseCommitCheckedOut = true
	st.result.Stage = StageCommitCheckedOut
	return nil
}

// patchStrategies are tried in order; the first clean exit wins.
var patchStrategies = []struct {
	name string
	cmd  string
}{
	{"git-apply", "git apply %s"},
	{"git-apply-reject", "git apply --reject %s"},
	{"git-apply-whitespace", "git apply --whitespace=fix %s"},
	{"patch-p1", "patch -p1 < %s"},
	{"patch-fuzz", "patch --fuzz=5 -p1 < %s"},
}

// applyPatch writes the patch into the container and walks the strategy
// ladder inside the given workspace.
func (v *Validator) applyPatch(ctx context.Context, instanceID, workspace, name, patch string) error {
	if strings.TrimSpace(patch) == "" {
		return nil
	}
	patchFile := "/tmp/" + name + ".patch"
	write := fmt.Sprintf("cat > %s <<'BENCHVAL_PATCH_EOF'\n%s\nBENCHVAL_PATCH_EOF", patchFile, patch)
	if res, err := v.containers.Exec(ctx, instanceID, write, time.Minute); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	} else if res.ExitCode != 0 {
		return fmt.Errorf("write %s: exit %d: %s", name, res.ExitCode, tail(res.Output, 200))
	}

	var lastDiag string
	for _, strat := range patchStrategies {
		cmd := fmt.Sprintf(strat.cmd, patchFile)
		res, err := v.exec(ctx, instanceID, workspace, cmd, 2*time.Minute)
		if err != nil {
			lastDiag = err.Error()
			continue
		}
		if res.ExitCode == 0 {
			v.log.Log("[%s] %s applied via %s", instanceID, name, strat.name)
			return nil
		}
		lastDiag = fmt.Sprintf("%s: exit %d: %s", strat.name, res.ExitCode, tail(res.Output, 500))
		// A rejected git apply can leave partial state behind.
		reset := "git checkout -- . 2>/dev/null; git clean -fd 2>/dev/null || true"
		_, _ = v.exec(ctx, instanceID, workspace, reset, time.Minute)
	}
	return &PatchError{Name: name, Diagnostic: lastDiag}
}

// stepTestPatch applies the test patch to the pre workspace and derives
// the test targets from it.
func (v *Validator) stepTestPatch(ctx context.Context, st *instanceState) error {
	id := st.instance.InstanceID
	if err := v.applyPatch(ctx, id, workspacePath, "test", st.instance.TestPatch); err != nil {
		return err
	}
	st.result.TestPatchApplied = true
	st.result.Stage = StageTestPatchApplied

	st.targets = testrun.TargetsFromPatch(st.instance.TestPatch)
	st.result.SkippedInstrumentedTests = st.targets.SkippedInstrumented
	v.log.Log("[%s] targets: %d classes, %d instrumented skipped",
		id, len(st.targets.Classes()), len(st.targets.SkippedInstrumented))
	return nil
}

// stepPreTests runs the pre phase. A failed build triggers one stub pass
// when stubs are enabled, then a single retry.
func (v *Validator) stepPreTests(ctx context.Context, st *instanceState) error {
	id := st.instance.InstanceID
	if err := v.containers.PrepareForTests(ctx, id, workspacePath); err != nil {
		v.log.Log("[%s] prepare for tests: %v", id, err)
	}

	pre, err := v.runner.Run(ctx, id, workspacePath, st.targets, st.cfg, v.opts.TestTimeout)
	if err != nil && !pre.TimedOut {
		return err
	}

	if !pre.BuildSuccessful && v.opts.EnableStubs && !st.targets.Empty() {
		st.result.Stubs = v.tryStubs(ctx, st)
		switch {
		case st.result.Stubs.Error != "":
			// A failed stub pass may have written some files; put the
			// workspace back and keep the unstubbed pre results.
			if err := v.restorePreWorkspace(ctx, st); err != nil {
				return err
			}
		case st.result.Stubs.Applied:
			st.result.Stage = StageStubsApplied
			if pre, err = v.runner.Run(ctx, id, workspacePath, st.targets, st.cfg, v.opts.TestTimeout); err != nil && !pre.TimedOut {
				return err
			}
		}
	}

	st.pre = pre
	st.result.PreExecution = summarize(pre)
	st.result.Stage = StagePreTestsRun
	v.log.Log("[%s] pre: build=%v total=%d passed=%d failed=%d",
		id, pre.BuildSuccessful, pre.TotalTests, pre.Passed, pre.Failed+pre.Errors)
	return nil
}

// tryStubs invokes the stub generator and folds its outcome (or error)
// into a summary. Stub failure never fails the instance.
func (v *Validator) tryStubs(ctx context.Context, st *instanceState) *StubSummary {
	summary := &StubSummary{Attempted: true}
	out, err := v.stubs.Apply(ctx, v.containers, st.instance.InstanceID, workspacePath, st.instance.Patch)
	summary.Applied = out.Applied
	summary.Reason = out.Reason
	summary.Files = out.Files
	if err != nil {
		summary.Error = err.Error()
		v.log.Log("[%s] stub generation: %v", st.instance.InstanceID, err)
	}
	return summary
}

// restorePreWorkspace rebuilds /workspace from the pristine snapshot and
// reapplies the test patch, discarding stub leftovers.
func (v *Validator) restorePreWorkspace(ctx context.Context, st *instanceState) error {
	id := st.instance.InstanceID
	rebuild := fmt.Sprintf("rm -rf %s && cp -a %s %s", workspacePath, pristinePath, workspacePath)
	if _, err := v.exec(ctx, id, "/", rebuild, 10*time.Minute); err != nil {
		return fmt.Errorf("restore pre workspace: %w", err)
	}
	return v.applyPatch(ctx, id, workspacePath, "test", st.instance.TestPatch)
}

// stepPostWorkspace rebuilds the post workspace from the pristine snapshot
// and reapplies the test patch, so stubs and pre-phase build output never
// leak into the post run.
func (v *Validator) stepPostWorkspace(ctx context.Context, st *instanceState) error {
	id := st.instance.InstanceID
	rebuild := fmt.Sprintf("rm -rf %s && cp -a %s %s", postPath, pristinePath, postPath)
	if _, err := v.exec(ctx, id, "/", rebuild, 10*time.Minute); err != nil {
		return fmt.Errorf("rebuild post workspace: %w", err)
	}
	if err := v.applyPatch(ctx, id, postPath, "test-post", st.instance.TestPatch); err != nil {
		return err
	}
	st.result.Stage = StagePostWorkspaceReady
	return nil
}

// stepSolutionPatch applies the candidate solution to the post workspace.
func (v *Validator) stepSolutionPatch(ctx context.Context, st *instanceState) error {
	id := st.instance.InstanceID
	if err := v.applyPatch(ctx, id, postPath, "solution", st.instance.Patch); err != nil {
		return err
	}
	st.result.SolutionPatchApplied = true
	st.result.Stage = StageSolutionPatchApplied
	return nil
}

// stepPostTests runs the post phase in the patched workspace.
func (v *Validator) stepPostTests(ctx context.Context, st *instanceState) error {
	id := st.instance.InstanceID
	if err := v.containers.PrepareForTests(ctx, id, postPath); err != nil {
		v.log.Log("[%s] prepare for tests: %v", id, err)
	}
	post, err := v.runner.Run(ctx, id, postPath, st.targets, st.cfg, v.opts.TestTimeout)
	if err != nil && !post.TimedOut {
		return err
	}
	st.post = post
	st.result.PostExecution = summarize(post)
	st.result.Stage = StagePostTestsRun
	v.log.Log("[%s] post: build=%v total=%d passed=%d failed=%d",
		id, post.BuildSuccessful, post.TotalTests, post.Passed, post.Failed+post.Errors)
	return nil
}

// stepTransitions classifies outcome changes and decides instance success:
// the solution must fix at least one failing test and break none.
func (v *Validator) stepTransitions(ctx context.Context, st *instanceState) error {
	st.result.setTransitions(transition.Classify(st.pre.StatusMap(), st.post.StatusMap()))
	st.result.Success = st.post.BuildSuccessful &&
		st.result.FailToPassCount > 0 &&
		st.result.PassToFailCount == 0
	return nil
}

// exec wraps a container exec with a cd into the given workspace.
func (v *Validator) exec(ctx context.Context, instanceID, workspace, cmd string, timeout time.Duration) (container.ExecResult, error) {
	full := cmd
	if workspace != "" && workspace != "/" {
		full = fmt.Sprintf("cd %s && %s", workspace, cmd)
	}
	return v.containers.Exec(ctx, instanceID, full, timeout)
}

func summarize(r testrun.ExecutionResult) *ExecutionSummary {
	return &ExecutionSummary{
		BuildSuccessful: r.BuildSuccessful,
		PassedCount:     r.Passed,
		FailedCount:     r.Failed + r.Errors,
		SkippedCount:    r.Skipped,
		PassedTests:     r.PassedNames(),
		FailedTests:     r.FailedNames(),
		GradleCommand:   r.GradleCommand,
		DurationSecs:    r.Duration.Seconds(),
		TimedOut:        r.TimedOut,
		Diagnostics:     r.Diagnostics,
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
