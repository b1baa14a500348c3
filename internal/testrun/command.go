package testrun

import (
	"fmt"
	"sort"
	"strings"
)

// Command builds the timeboxed gradlew invocation for the given targets.
// Each module contributes one test task scoped to its classes; the root
// ":app" module uses the unprefixed task name as Gradle expects.
func Command(targets Targets, variant string, timeoutSecs int) string {
	if variant == "" {
		variant = "debug"
	}
	task := "test" + strings.ToUpper(variant[:1]) + variant[1:] + "UnitTest"

	modules := make([]string, 0, len(targets.ByModule))
	for m := range targets.ByModule {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	var parts []string
	for _, module := range modules {
		taskPath := task
		if module != ":app" && module != ":" {
			taskPath = module + ":" + task
		}
		parts = append(parts, taskPath)
		for _, class := range targets.ByModule[module] {
			parts = append(parts, fmt.Sprintf("--tests %q", class))
		}
	}

	return fmt.Sprintf("timeout %d ./gradlew %s --no-daemon --stacktrace --continue --parallel",
		timeoutSecs, strings.Join(parts, " "))
}
