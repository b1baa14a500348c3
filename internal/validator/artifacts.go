package validator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Artifact file names inside the output directory.
const (
	resultFile   = "validation_result.json"
	analysisFile = "test_analysis.json"
	summaryFile  = "final_validation_summary.json"
	reportFile   = "validation_report.txt"
)

// transitionBucket pairs a bucket's tests with a count derived from them.
type transitionBucket struct {
	Count int      `json:"count"`
	Tests []string `json:"tests"`
}

func bucket(tests []string) transitionBucket {
	if tests == nil {
		tests = []string{}
	}
	return transitionBucket{Count: len(tests), Tests: tests}
}

// testAnalysis is the grading-oriented artifact written next to the raw
// result.
type testAnalysis struct {
	InstanceID       string                      `json:"instance_id"`
	TestTransitions  map[string]transitionBucket `json:"test_transitions"`
	ExecutionSummary struct {
		Pre  *ExecutionSummary `json:"pre_execution,omitempty"`
		Post *ExecutionSummary `json:"post_execution,omitempty"`
	} `json:"execution_summary"`
	SkippedInstrumentedTests transitionBucket `json:"skipped_instrumented_tests"`
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// SaveInstance persists an instance's result and analysis under
// <outputDir>/<instance_id>/.
func SaveInstance(outputDir string, r *Result) error {
	dir := filepath.Join(outputDir, r.InstanceID)
	if err := writeJSON(filepath.Join(dir, resultFile), r); err != nil {
		return err
	}

	analysis := testAnalysis{
		InstanceID: r.InstanceID,
		TestTransitions: map[string]transitionBucket{
			"fail_to_pass": bucket(r.FailToPass),
			"pass_to_pass": bucket(r.PassToPass),
			"pass_to_fail": bucket(r.PassToFail),
			"fail_to_fail": bucket(r.FailToFail),
			"only_pre":     bucket(r.OnlyPre),
			"only_post":    bucket(r.OnlyPost),
		},
		SkippedInstrumentedTests: bucket(r.SkippedInstrumentedTests),
	}
	analysis.ExecutionSummary.Pre = r.PreExecution
	analysis.ExecutionSummary.Post = r.PostExecution
	return writeJSON(filepath.Join(dir, analysisFile), analysis)
}

// LoadInstanceResult reconstructs a previously persisted result, used when
// resuming a batch so completed instances keep their outcomes in the final
// summary.
func LoadInstanceResult(outputDir, instanceID string) (*Result, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, instanceID, resultFile))
	if err != nil {
		return nil, fmt.Errorf("load result for %s: %w", instanceID, err)
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse result for %s: %w", instanceID, err)
	}
	return &r, nil
}

// SaveSummary persists the batch digest and the human-readable report.
func SaveSummary(outputDir string, s Summary) error {
	if err := writeJSON(filepath.Join(outputDir, summaryFile), s); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, reportFile), []byte(renderReport(s)), 0644)
}

// renderReport formats the plain-text batch report.
func renderReport(s Summary) string {
	var b strings.Builder
	b.WriteString("Validation Report\n")
	b.WriteString("=================\n\n")
	fmt.Fprintf(&b, "Generated:        %s\n", s.Timestamp)
	fmt.Fprintf(&b, "Total instances:  %d\n", s.TotalInstances)
	fmt.Fprintf(&b, "Successful:       %d\n", s.Successful)
	fmt.Fprintf(&b, "Failed:           %d\n", s.Failed)
	fmt.Fprintf(&b, "Success rate:     %.1f%%\n", s.SuccessRate*100)
	fmt.Fprintf(&b, "Total duration:   %.1fs\n\n", s.TotalDurationSecs)

	b.WriteString("Transitions\n-----------\n")
	for _, k := range []string{"fail_to_pass", "pass_to_pass", "pass_to_fail", "fail_to_fail"} {
		fmt.Fprintf(&b, "  %-13s %d\n", k+":", s.TransitionOverview[k])
	}

	if len(s.FailuresByStage) > 0 {
		b.WriteString("\nFailures by stage\n-----------------\n")
		stages := make([]string, 0, len(s.FailuresByStage))
		for st := range s.FailuresByStage {
			stages = append(stages, string(st))
		}
		sort.Strings(stages)
		for _, st := range stages {
			fmt.Fprintf(&b, "  %-22s %d\n", st+":", s.FailuresByStage[Stage(st)])
		}
	}

	if len(s.FailedIDs) > 0 {
		b.WriteString("\nFailed instances\n----------------\n")
		for _, id := range s.FailedIDs {
			fmt.Fprintf(&b, "  %s\n", id)
		}
	}
	return b.String()
}
