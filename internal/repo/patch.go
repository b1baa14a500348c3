package repo

import (
	"regexp"
	"strings"
)

var (
	plusFileRe = regexp.MustCompile(`(?m)^\+\+\+ b/(.+)$`)
	diffGitRe  = regexp.MustCompile(`(?m)^diff --git a/.+ b/(.+)$`)
)

// ChangedFiles extracts the target-side file paths from a unified diff.
// Order of first appearance is preserved and duplicates are dropped.
func ChangedFiles(patch string) []string {
	seen := make(map[string]bool)
	var files []string
	add := func(matches [][]string) {
		for _, m := range matches {
			path := strings.TrimSpace(m[1])
			if path == "" || path == "/dev/null" || seen[path] {
				continue
			}
			seen[path] = true
			files = append(files, path)
		}
	}
	add(plusFileRe.FindAllStringSubmatch(patch, -1))
	add(diffGitRe.FindAllStringSubmatch(patch, -1))
	return files
}

// IsTestFile reports whether a changed path looks like a JVM test source
// file.
func IsTestFile(path string) bool {
	lower := strings.ToLower(path)
	if !strings.HasSuffix(lower, ".java") && !strings.HasSuffix(lower, ".kt") {
		return false
	}
	return strings.Contains(lower, "test")
}

// TestFiles returns the changed paths that are test sources.
func TestFiles(patch string) []string {
	var tests []string
	for _, f := range ChangedFiles(patch) {
		if IsTestFile(f) {
			tests = append(tests, f)
		}
	}
	return tests
}
