package testrun

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mobilebench/benchval/internal/buildcfg"
	"github.com/mobilebench/benchval/internal/container"
)

// fakeExecer routes gradle invocations and report collection to canned
// results.
type fakeExecer struct {
	gradleResult  container.ExecResult
	collectResult container.ExecResult
	gradleErr     error
	commands      []string
}

func (f *fakeExecer) Exec(ctx context.Context, instanceID, cmd string, timeout time.Duration) (container.ExecResult, error) {
	f.commands = append(f.commands, cmd)
	if strings.Contains(cmd, "./gradlew") {
		return f.gradleResult, f.gradleErr
	}
	return f.collectResult, nil
}

func debugCfg() buildcfg.Config {
	return buildcfg.Config{JavaVersion: "17", TestVariant: "debug"}
}

func loginTargets() Targets {
	return Targets{ByModule: map[string][]string{":app": {"com.app.LoginTest"}}}
}

// TestRunParsesReports checks a successful run produces counted, parsed
// tests.
func TestRunParsesReports(t *testing.T) {
	fake := &fakeExecer{
		gradleResult:  container.ExecResult{ExitCode: 0, Output: "BUILD SUCCESSFUL in 40s"},
		collectResult: container.ExecResult{ExitCode: 0, Output: collectedOutput},
	}
	runner := NewRunner(fake)

	res, err := runner.Run(context.Background(), "app-1", "/workspace", loginTargets(), debugCfg(), 30*time.Minute)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.BuildSuccessful {
		t.Error("Expected BuildSuccessful=true")
	}
	if res.TotalTests != 3 || res.Passed != 1 || res.Failed != 1 || res.Errors != 1 {
		t.Errorf("Unexpected counts: total=%d passed=%d failed=%d errors=%d",
			res.TotalTests, res.Passed, res.Failed, res.Errors)
	}
	if res.GradleCommand == "" || !strings.Contains(res.GradleCommand, "testDebugUnitTest") {
		t.Errorf("Expected gradle command recorded, got: %q", res.GradleCommand)
	}
}

// TestRunNoReportsIsBuildFailure checks the no-reports edge: the build is
// marked failed even when gradle exits zero.
func TestRunNoReportsIsBuildFailure(t *testing.T) {
	fake := &fakeExecer{
		gradleResult:  container.ExecResult{ExitCode: 0, Output: "BUILD SUCCESSFUL in 1s"},
		collectResult: container.ExecResult{ExitCode: 0, Output: ""},
	}
	runner := NewRunner(fake)

	res, err := runner.Run(context.Background(), "app-1", "/workspace", loginTargets(), debugCfg(), time.Minute)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.BuildSuccessful {
		t.Error("Expected BuildSuccessful=false when no reports were produced")
	}
	if res.TotalTests != 0 {
		t.Errorf("Expected zero tests, got: %d", res.TotalTests)
	}
}

// TestRunEmptyTargets checks an empty patch yields a zero-test success
// without touching the container.
func TestRunEmptyTargets(t *testing.T) {
	fake := &fakeExecer{}
	runner := NewRunner(fake)

	res, err := runner.Run(context.Background(), "app-1", "/workspace", Targets{}, debugCfg(), time.Minute)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.BuildSuccessful || res.TotalTests != 0 {
		t.Errorf("Expected zero-test success, got: %+v", res)
	}
	if len(fake.commands) != 0 {
		t.Errorf("Expected no container commands, got: %v", fake.commands)
	}
}

// TestRunCompilationDiagnostics checks compiler failures are surfaced as
// diagnostics.
func TestRunCompilationDiagnostics(t *testing.T) {
	fake := &fakeExecer{
		gradleResult: container.ExecResult{
			ExitCode: 1,
			Output:   "error: cannot find symbol\nBUILD FAILED in 10s",
		},
		collectResult: container.ExecResult{ExitCode: 0, Output: ""},
	}
	runner := NewRunner(fake)

	res, err := runner.Run(context.Background(), "app-1", "/workspace", loginTargets(), debugCfg(), time.Minute)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.BuildSuccessful {
		t.Error("Expected build failure")
	}
	if len(res.Diagnostics) == 0 {
		t.Error("Expected compilation diagnostics")
	}
}

// TestRunTimeoutExitCode checks the coreutils timeout exit code marks the
// run timed out.
func TestRunTimeoutExitCode(t *testing.T) {
	fake := &fakeExecer{
		gradleResult:  container.ExecResult{ExitCode: container.TimeoutExitCode, Output: "partial"},
		collectResult: container.ExecResult{ExitCode: 0, Output: ""},
	}
	runner := NewRunner(fake)

	res, err := runner.Run(context.Background(), "app-1", "/workspace", loginTargets(), debugCfg(), time.Minute)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.TimedOut {
		t.Error("Expected TimedOut=true")
	}
	if res.BuildSuccessful {
		t.Error("Expected build failure on timeout")
	}
}
