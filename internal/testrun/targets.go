// Package testrun derives Gradle test invocations from a test patch,
// executes them inside a build container, and parses the JUnit reports.
package testrun

import (
	"sort"
	"strings"

	"github.com/mobilebench/benchval/internal/repo"
)

// Targets is the set of unit test classes to run, grouped by Gradle
// module, plus the instrumented classes that were set aside.
type Targets struct {
	// ByModule maps a Gradle module path (":app", ":core:data", ":" for
	// the root module) to fully qualified test class names.
	ByModule map[string][]string

	// SkippedInstrumented lists classes that need a device or emulator
	// and therefore cannot run here.
	SkippedInstrumented []string
}

// Empty reports whether there is nothing runnable.
func (t Targets) Empty() bool {
	return len(t.ByModule) == 0
}

// Classes returns all runnable class names, sorted.
func (t Targets) Classes() []string {
	var out []string
	for _, classes := range t.ByModule {
		out = append(out, classes...)
	}
	sort.Strings(out)
	return out
}

// instrumentedMarkers identify tests that require a device.
var instrumentedMarkers = []string{"/androidtest/", "/instrumentedtest/"}

func isInstrumented(path string) bool {
	lower := strings.ToLower(path)
	for _, m := range instrumentedMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return strings.HasSuffix(lower, "androidtest.java") || strings.HasSuffix(lower, "androidtest.kt")
}

// utilityPrefixes and utilitySuffixes filter files that live in test trees
// but are not test classes themselves.
var utilityPrefixes = []string{"mock", "fake", "stub", "base", "abstract"}

var utilitySuffixes = []string{"helper", "util", "utils", "factory", "fixture", "rule", "matcher"}

// isUtilityClass reports whether a filename looks like shared test
// infrastructure rather than a runnable test class. Names ending in Test
// are always treated as runnable.
func isUtilityClass(fileName string) bool {
	base := strings.TrimSuffix(strings.TrimSuffix(fileName, ".java"), ".kt")
	lower := strings.ToLower(base)
	if strings.HasSuffix(lower, "test") || strings.HasSuffix(lower, "tests") {
		return false
	}
	for _, p := range utilityPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	for _, s := range utilitySuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// sourceRoots are the path segments that separate a module's directory
// layout from the java/kotlin package path.
var sourceRoots = []string{
	"/src/test/java/", "/src/test/kotlin/",
	"/src/androidTest/java/", "/src/androidTest/kotlin/",
	"/src/commonTest/kotlin/", "/src/unitTest/java/", "/src/unitTest/kotlin/",
	"/java/", "/kotlin/",
}

// classNameForPath converts a repo-relative source path to a fully
// qualified class name, or "" when no source root is recognizable.
func classNameForPath(path string) string {
	norm := "/" + strings.TrimPrefix(path, "/")
	for _, root := range sourceRoots {
		idx := strings.Index(norm, root)
		if idx < 0 {
			continue
		}
		rel := norm[idx+len(root):]
		rel = strings.TrimSuffix(strings.TrimSuffix(rel, ".java"), ".kt")
		return strings.ReplaceAll(rel, "/", ".")
	}
	return ""
}

// moduleForPath derives the Gradle module path from the directory segments
// before the first "src". A file with no leading segments belongs to the
// root module.
func moduleForPath(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	var moduleParts []string
	for _, p := range parts {
		if p == "src" {
			if len(moduleParts) == 0 {
				return ":"
			}
			return ":" + strings.Join(moduleParts, ":")
		}
		moduleParts = append(moduleParts, p)
	}
	// No src segment at all; assume the conventional app module.
	return ":app"
}

// TargetsFromPatch extracts the test classes a test patch touches,
// separating instrumented classes that cannot run without a device.
func TargetsFromPatch(testPatch string) Targets {
	targets := Targets{ByModule: make(map[string][]string)}
	seen := make(map[string]bool)

	for _, path := range repo.TestFiles(testPatch) {
		fileName := path[strings.LastIndex(path, "/")+1:]
		if isUtilityClass(fileName) {
			continue
		}
		class := classNameForPath(path)
		if class == "" || seen[class] {
			continue
		}
		seen[class] = true
		if isInstrumented(path) {
			targets.SkippedInstrumented = append(targets.SkippedInstrumented, class)
			continue
		}
		module := moduleForPath(path)
		targets.ByModule[module] = append(targets.ByModule[module], class)
	}
	for module := range targets.ByModule {
		sort.Strings(targets.ByModule[module])
	}
	sort.Strings(targets.SkippedInstrumented)
	return targets
}
