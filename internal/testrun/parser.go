package testrun

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mobilebench/benchval/internal/transition"
)

// TestCase is one parsed test outcome.
type TestCase struct {
	Name      string
	ClassName string
	Status    transition.Status
	Duration  float64
	Message   string
}

// FullName is the canonical "class.method" identifier used for transition
// matching.
func (tc TestCase) FullName() string {
	if tc.ClassName == "" {
		return tc.Name
	}
	return tc.ClassName + "." + tc.Name
}

// ParseError wraps report extraction failures.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse report %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// junitSuite mirrors the Gradle JUnit XML report shape.
type junitSuite struct {
	XMLName   xml.Name    `xml:"testsuite"`
	TestCases []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure"`
	Error     *junitFailure `xml:"error"`
	Skipped   *struct{}     `xml:"skipped"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

// xmlSectionRe recognizes the marker framing the collection command wraps
// around each report file.
var xmlSectionRe = regexp.MustCompile(`(?s)=== XML FILE: (.+?) ===\n(.*?)\n?=== END XML FILE ===`)

// Report is one report file's tests plus its path, kept so variant
// preference can arbitrate duplicates.
type Report struct {
	Path  string
	Tests []TestCase
}

// ParseCollectedReports extracts every marked XML section from the report
// collection output and parses it. Sections that fail to parse are
// reported as errors but do not abort the rest.
func ParseCollectedReports(output string) ([]Report, []error) {
	var (
		reports []Report
		errs    []error
	)
	for _, m := range xmlSectionRe.FindAllStringSubmatch(output, -1) {
		path := strings.TrimSpace(m[1])
		body := strings.TrimSpace(m[2])
		if body == "" {
			continue
		}
		tests, err := parseJUnitXML(body)
		if err != nil {
			errs = append(errs, &ParseError{File: path, Err: err})
			continue
		}
		reports = append(reports, Report{Path: path, Tests: tests})
	}
	return reports, errs
}

func parseJUnitXML(body string) ([]TestCase, error) {
	var suite junitSuite
	if err := xml.Unmarshal([]byte(body), &suite); err != nil {
		return nil, err
	}
	tests := make([]TestCase, 0, len(suite.TestCases))
	for _, tc := range suite.TestCases {
		parsed := TestCase{
			Name:      tc.Name,
			ClassName: tc.ClassName,
			Status:    transition.StatusPassed,
			Duration:  tc.Time,
		}
		switch {
		case tc.Error != nil:
			parsed.Status = transition.StatusError
			parsed.Message = failureMessage(tc.Error)
		case tc.Failure != nil:
			parsed.Status = transition.StatusFailed
			parsed.Message = failureMessage(tc.Failure)
		case tc.Skipped != nil:
			parsed.Status = transition.StatusSkipped
		}
		tests = append(tests, parsed)
	}
	return tests, nil
}

func failureMessage(f *junitFailure) string {
	if f.Message != "" {
		return f.Message
	}
	return strings.TrimSpace(f.Body)
}

// variantRank orders duplicate reports: reports produced by the canonical
// test variant win over other variants of the same class.
func variantRank(path, variant string) int {
	if variant != "" && strings.Contains(strings.ToLower(path), strings.ToLower(variant)) {
		return 0
	}
	return 1
}

// DedupTests flattens reports into one test list, keeping exactly one
// outcome per class.method. When build variants produce the same test
// twice, the canonical variant's report wins; ties keep the first parsed.
func DedupTests(reports []Report, variant string) []TestCase {
	type entry struct {
		tc   TestCase
		rank int
	}
	byName := make(map[string]entry)
	for _, rep := range reports {
		rank := variantRank(rep.Path, variant)
		for _, tc := range rep.Tests {
			key := tc.FullName()
			cur, ok := byName[key]
			if !ok || rank < cur.rank {
				byName[key] = entry{tc: tc, rank: rank}
			}
		}
	}
	out := make([]TestCase, 0, len(byName))
	for _, e := range byName {
		out = append(out, e.tc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName() < out[j].FullName() })
	return out
}

// StatusMap keys every test by its full name for transition
// classification.
func StatusMap(tests []TestCase) map[string]transition.Status {
	m := make(map[string]transition.Status, len(tests))
	for _, tc := range tests {
		m[tc.FullName()] = tc.Status
	}
	return m
}
