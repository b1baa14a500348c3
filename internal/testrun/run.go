package testrun

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mobilebench/benchval/internal/buildcfg"
	"github.com/mobilebench/benchval/internal/container"
	"github.com/mobilebench/benchval/internal/transition"
)

// ExecutionResult summarizes one test phase.
type ExecutionResult struct {
	TotalTests      int
	Passed          int
	Failed          int
	Skipped         int
	Errors          int
	Duration        time.Duration
	ExitCode        int
	RawOutput       string
	Tests           []TestCase
	BuildSuccessful bool
	TimedOut        bool
	GradleCommand   string
	ParseErrors     []string
	Diagnostics     []string
}

// PassedNames returns the full names of passing tests, and FailedNames the
// failing ones (FAILED and ERROR alike).
func (r ExecutionResult) PassedNames() []string {
	var out []string
	for _, tc := range r.Tests {
		if tc.Status == transition.StatusPassed {
			out = append(out, tc.FullName())
		}
	}
	return out
}

func (r ExecutionResult) FailedNames() []string {
	var out []string
	for _, tc := range r.Tests {
		if tc.Status == transition.StatusFailed || tc.Status == transition.StatusError {
			out = append(out, tc.FullName())
		}
	}
	return out
}

// StatusMap keys the phase's tests for transition classification.
func (r ExecutionResult) StatusMap() map[string]transition.Status {
	return StatusMap(r.Tests)
}

// compilationIndicators are output fragments that distinguish a broken
// build from failing tests.
var compilationIndicators = []string{
	"Compilation failed",
	"compileDebugJavaWithJavac FAILED",
	"compileDebugKotlin FAILED",
	"error: cannot find symbol",
	"error: package",
	"Unresolved reference",
	"Could not resolve all files for configuration",
}

// collectCmd emits every JUnit report under the workspace between markers
// the parser recognizes. Intermediate build copies are excluded.
const collectCmd = `for f in $(find . -path ./build/intermediates -prune -o -name "TEST-*.xml" -print 2>/dev/null); do echo "=== XML FILE: $f ==="; cat "$f"; echo "=== END XML FILE ==="; done`

// Runner executes a phase's tests inside the instance's container.
type Runner struct {
	exec container.Execer
}

// NewRunner creates a test runner on top of a container exec surface.
func NewRunner(exec container.Execer) *Runner {
	return &Runner{exec: exec}
}

// Run executes the targets in the given workspace and parses the resulting
// reports. An empty target set is a successful zero-test run. A run whose
// build produced no reports at all is a build failure, never a zero-pass
// test result.
func (r *Runner) Run(ctx context.Context, instanceID, workspace string, targets Targets, cfg buildcfg.Config, timeout time.Duration) (ExecutionResult, error) {
	if targets.Empty() {
		return ExecutionResult{BuildSuccessful: true}, nil
	}

	gradleCmd := Command(targets, cfg.TestVariant, int(timeout.Seconds()))
	result := ExecutionResult{GradleCommand: gradleCmd}

	start := time.Now()
	// The exec deadline sits above the in-container timeout so coreutils
	// timeout gets the first chance to kill the build.
	execRes, err := r.exec.Exec(ctx, instanceID, container.WithToolchain(cfg, workspace, gradleCmd), timeout+2*time.Minute)
	result.Duration = time.Since(start)
	result.ExitCode = execRes.ExitCode
	result.RawOutput = execRes.Output

	if err != nil {
		if errors.Is(err, container.ErrTimeout) {
			result.TimedOut = true
			return result, err
		}
		return result, err
	}
	if execRes.ExitCode == container.TimeoutExitCode {
		result.TimedOut = true
	}

	collectRes, err := r.exec.Exec(ctx, instanceID, container.WithToolchain(cfg, workspace, collectCmd), 5*time.Minute)
	if err != nil {
		return result, err
	}

	reports, parseErrs := ParseCollectedReports(collectRes.Output)
	for _, pe := range parseErrs {
		result.ParseErrors = append(result.ParseErrors, pe.Error())
	}
	result.Tests = DedupTests(reports, cfg.TestVariant)

	for _, tc := range result.Tests {
		switch tc.Status {
		case transition.StatusPassed:
			result.Passed++
		case transition.StatusFailed:
			result.Failed++
		case transition.StatusSkipped:
			result.Skipped++
		case transition.StatusError:
			result.Errors++
		}
	}
	result.TotalTests = len(result.Tests)

	result.BuildSuccessful = buildSucceeded(execRes.Output, execRes.ExitCode)
	if len(reports) == 0 {
		result.BuildSuccessful = false
	}
	for _, indicator := range compilationIndicators {
		if strings.Contains(execRes.Output, indicator) {
			result.Diagnostics = append(result.Diagnostics, indicator)
		}
	}
	return result, nil
}

// buildSucceeded applies Gradle's output markers, falling back to the exit
// code when neither marker is present.
func buildSucceeded(output string, exitCode int) bool {
	if strings.Contains(output, "BUILD SUCCESSFUL") {
		return true
	}
	if strings.Contains(output, "BUILD FAILED") {
		return false
	}
	return exitCode == 0
}
