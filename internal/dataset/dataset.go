// Package dataset loads validation instances from JSONL files and applies
// id-based filtering.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Instance is one validation task: a repository, a base commit, the
// candidate solution patch and the test patch that exercises it.
type Instance struct {
	InstanceID       string `json:"instance_id"`
	Repo             string `json:"repo"`
	BaseCommit       string `json:"base_commit"`
	Patch            string `json:"patch"`
	TestPatch        string `json:"test_patch"`
	ProblemStatement string `json:"problem_statement,omitempty"`
}

// Validate checks the fields required to run an instance.
func (in Instance) Validate() error {
	switch {
	case in.InstanceID == "":
		return fmt.Errorf("instance missing instance_id")
	case in.Repo == "":
		return fmt.Errorf("instance %s missing repo", in.InstanceID)
	case in.BaseCommit == "":
		return fmt.Errorf("instance %s missing base_commit", in.InstanceID)
	}
	return nil
}

// Load reads instances from a JSONL file, one JSON object per line. Blank
// lines are skipped. Malformed lines are collected as warnings rather than
// aborting the load; an error is returned only when the file cannot be read
// or yields zero usable instances.
func Load(path string) ([]Instance, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer f.Close()

	var (
		instances []Instance
		warnings  []string
		lineNo    int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var in Instance
		if err := json.Unmarshal([]byte(line), &in); err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: %v", lineNo, err))
			continue
		}
		if err := in.Validate(); err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: %v", lineNo, err))
			continue
		}
		instances = append(instances, in)
	}
	if err := scanner.Err(); err != nil {
		return nil, warnings, fmt.Errorf("read dataset %s: %w", path, err)
	}
	if len(instances) == 0 {
		return nil, warnings, fmt.Errorf("dataset %s contains no usable instances", path)
	}
	return instances, warnings, nil
}

// matchesID reports whether a filter term selects an instance id. A term
// matches on exact equality, or, when the term is purely numeric, when the
// id ends in "-<term>" or "_<term>".
func matchesID(id, term string) bool {
	if id == term {
		return true
	}
	if !numeric(term) {
		return false
	}
	return strings.HasSuffix(id, "-"+term) || strings.HasSuffix(id, "_"+term)
}

func numeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func matchesAny(id string, terms []string) bool {
	for _, t := range terms {
		if matchesID(id, t) {
			return true
		}
	}
	return false
}

// Filter narrows instances by include/exclude id terms and an optional
// maximum. Exclude takes precedence over include. max <= 0 means unlimited.
func Filter(instances []Instance, include, exclude []string, max int) []Instance {
	out := make([]Instance, 0, len(instances))
	for _, in := range instances {
		if matchesAny(in.InstanceID, exclude) {
			continue
		}
		if len(include) > 0 && !matchesAny(in.InstanceID, include) {
			continue
		}
		out = append(out, in)
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
