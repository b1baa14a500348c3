// Package transition classifies per-test outcome changes between a
// pre-patch and a post-patch test run.
package transition

import "sort"

// Status is the terminal outcome of a single test case.
type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusFailed  Status = "FAILED"
	StatusSkipped Status = "SKIPPED"
	StatusError   Status = "ERROR"
)

// failing reports whether a status counts as a failure. ERROR and FAILED
// are equivalent for classification purposes.
func failing(s Status) bool {
	return s == StatusFailed || s == StatusError
}

// Result holds the four transition buckets plus the test names that were
// present in only one of the two runs. One-sided names never contribute to
// a bucket; they are kept so callers can inspect suite drift.
type Result struct {
	FailToPass []string
	PassToPass []string
	PassToFail []string
	FailToFail []string
	OnlyPre    []string
	OnlyPost   []string
}

// Counts returns the bucket sizes. They are always derived from the slices
// themselves so they cannot drift from the contents.
func (r Result) Counts() (failToPass, passToPass, passToFail, failToFail int) {
	return len(r.FailToPass), len(r.PassToPass), len(r.PassToFail), len(r.FailToFail)
}

// Classify buckets every test name present in both runs by its status
// transition. Skipped tests participate like passing ones only when they
// pass in the other run is irrelevant: a SKIPPED status is treated as
// neither passing nor failing and the name is left out of all buckets.
func Classify(pre, post map[string]Status) Result {
	var res Result
	for name, before := range pre {
		after, ok := post[name]
		if !ok {
			res.OnlyPre = append(res.OnlyPre, name)
			continue
		}
		switch {
		case failing(before) && after == StatusPassed:
			res.FailToPass = append(res.FailToPass, name)
		case before == StatusPassed && after == StatusPassed:
			res.PassToPass = append(res.PassToPass, name)
		case before == StatusPassed && failing(after):
			res.PassToFail = append(res.PassToFail, name)
		case failing(before) && failing(after):
			res.FailToFail = append(res.FailToFail, name)
		}
	}
	for name := range post {
		if _, ok := pre[name]; !ok {
			res.OnlyPost = append(res.OnlyPost, name)
		}
	}
	sort.Strings(res.FailToPass)
	sort.Strings(res.PassToPass)
	sort.Strings(res.PassToFail)
	sort.Strings(res.FailToFail)
	sort.Strings(res.OnlyPre)
	sort.Strings(res.OnlyPost)
	return res
}
