package validator

import (
	"time"

	"github.com/mobilebench/benchval/internal/transition"
)

// Stage identifies where in the pipeline an instance currently is. Stages
// advance monotonically; a failed instance records the last stage it
// reached.
type Stage string

const (
	StageInit                 Stage = "init"
	StageCloned               Stage = "cloned"
	StageConfigured           Stage = "configured"
	StageContainerReady       Stage = "container_ready"
	StageCommitCheckedOut     Stage = "commit_checked_out"
	StageTestPatchApplied     Stage = "test_patch_applied"
	StageStubsApplied         Stage = "stubs_applied"
	StagePreTestsRun          Stage = "pre_tests_run"
	StagePostWorkspaceReady   Stage = "post_workspace_ready"
	StageSolutionPatchApplied Stage = "solution_patch_applied"
	StagePostTestsRun         Stage = "post_tests_run"
	StageTransitionsComputed  Stage = "transitions_computed"
	StagePersisted            Stage = "persisted"
)

// ExecutionSummary is the persisted digest of one test phase.
type ExecutionSummary struct {
	BuildSuccessful bool     `json:"build_successful"`
	PassedCount     int      `json:"passed_count"`
	FailedCount     int      `json:"failed_count"`
	SkippedCount    int      `json:"skipped_count"`
	PassedTests     []string `json:"passed_tests"`
	FailedTests     []string `json:"failed_tests"`
	GradleCommand   string   `json:"gradle_command,omitempty"`
	DurationSecs    float64  `json:"duration_seconds"`
	TimedOut        bool     `json:"timed_out,omitempty"`
	Diagnostics     []string `json:"diagnostics,omitempty"`
}

// StubSummary records what the stub generator did for the pre phase.
type StubSummary struct {
	Attempted bool     `json:"attempted"`
	Applied   bool     `json:"applied"`
	Reason    string   `json:"reason,omitempty"`
	Files     []string `json:"files,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Result is the complete outcome of validating one instance. It is
// threaded through every pipeline step and persisted as
// validation_result.json.
type Result struct {
	InstanceID   string `json:"instance_id"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
	Stage        Stage  `json:"stage"`

	RepoCloned           bool `json:"repo_cloned"`
	ConfigParsed         bool `json:"config_parsed"`
	ContainerCreated     bool `json:"container_created"`
	BaseCommitCheckedOut bool `json:"base_commit_checked_out"`
	TestPatchApplied     bool `json:"test_patch_applied"`
	SolutionPatchApplied bool `json:"solution_patch_applied"`

	ConfigWarnings []string `json:"config_warnings,omitempty"`

	PreExecution  *ExecutionSummary `json:"pre_test_execution,omitempty"`
	PostExecution *ExecutionSummary `json:"post_test_execution,omitempty"`
	Stubs         *StubSummary      `json:"stub_generation,omitempty"`

	FailToPass []string `json:"fail_to_pass"`
	PassToPass []string `json:"pass_to_pass"`
	PassToFail []string `json:"pass_to_fail"`
	FailToFail []string `json:"fail_to_fail"`
	OnlyPre    []string `json:"only_pre,omitempty"`
	OnlyPost   []string `json:"only_post,omitempty"`

	FailToPassCount int `json:"fail_to_pass_count"`
	PassToPassCount int `json:"pass_to_pass_count"`
	PassToFailCount int `json:"pass_to_fail_count"`
	FailToFailCount int `json:"fail_to_fail_count"`

	SkippedInstrumentedTests []string `json:"skipped_instrumented_tests,omitempty"`

	TotalDurationSecs float64 `json:"total_duration_seconds"`
}

// newResult starts a Result at the initial stage.
func newResult(instanceID string) *Result {
	return &Result{InstanceID: instanceID, Stage: StageInit}
}

// setTransitions copies classification output into the result with counts
// derived from the buckets themselves.
func (r *Result) setTransitions(t transition.Result) {
	r.FailToPass = t.FailToPass
	r.PassToPass = t.PassToPass
	r.PassToFail = t.PassToFail
	r.FailToFail = t.FailToFail
	r.OnlyPre = t.OnlyPre
	r.OnlyPost = t.OnlyPost
	r.FailToPassCount, r.PassToPassCount, r.PassToFailCount, r.FailToFailCount = t.Counts()
	r.Stage = StageTransitionsComputed
}

// fail records a terminal error and returns the result for chaining.
func (r *Result) fail(err error) *Result {
	r.Success = false
	if err != nil {
		r.ErrorMessage = err.Error()
	}
	return r
}

// Summary aggregates a batch run for final_validation_summary.json.
type Summary struct {
	Timestamp          string         `json:"timestamp"`
	TotalInstances     int            `json:"total_instances"`
	Successful         int            `json:"successful"`
	Failed             int            `json:"failed"`
	SuccessRate        float64        `json:"success_rate"`
	TotalDurationSecs  float64        `json:"total_duration_seconds"`
	FailuresByStage    map[Stage]int  `json:"failures_by_stage,omitempty"`
	SuccessfulIDs      []string       `json:"successful_instance_ids"`
	FailedIDs          []string       `json:"failed_instance_ids"`
	TransitionOverview map[string]int `json:"transition_overview"`
}

// buildSummary computes the batch digest from per-instance results.
func buildSummary(results []*Result, elapsed time.Duration) Summary {
	s := Summary{
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		TotalInstances:     len(results),
		TotalDurationSecs:  elapsed.Seconds(),
		FailuresByStage:    make(map[Stage]int),
		TransitionOverview: make(map[string]int),
	}
	for _, r := range results {
		if r.Success {
			s.Successful++
			s.SuccessfulIDs = append(s.SuccessfulIDs, r.InstanceID)
		} else {
			s.Failed++
			s.FailedIDs = append(s.FailedIDs, r.InstanceID)
			s.FailuresByStage[r.Stage]++
		}
		s.TransitionOverview["fail_to_pass"] += r.FailToPassCount
		s.TransitionOverview["pass_to_pass"] += r.PassToPassCount
		s.TransitionOverview["pass_to_fail"] += r.PassToFailCount
		s.TransitionOverview["fail_to_fail"] += r.FailToFailCount
	}
	if s.TotalInstances > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.TotalInstances)
	}
	return s
}
