package testrun

import (
	"strings"
	"testing"
)

// TestCommandAppModule checks the app module task carries no module prefix.
func TestCommandAppModule(t *testing.T) {
	targets := Targets{ByModule: map[string][]string{
		":app": {"com.app.LoginTest"},
	}}

	cmd := Command(targets, "debug", 1800)

	if !strings.HasPrefix(cmd, "timeout 1800 ./gradlew testDebugUnitTest") {
		t.Errorf("Unexpected command prefix: %s", cmd)
	}
	if !strings.Contains(cmd, `--tests "com.app.LoginTest"`) {
		t.Errorf("Expected --tests filter, got: %s", cmd)
	}
	if !strings.Contains(cmd, "--no-daemon") || !strings.Contains(cmd, "--continue") {
		t.Errorf("Expected standard gradle flags, got: %s", cmd)
	}
}

// TestCommandNestedModule checks nested modules keep their task prefix.
func TestCommandNestedModule(t *testing.T) {
	targets := Targets{ByModule: map[string][]string{
		":core:data": {"com.app.data.RepoTest"},
	}}

	cmd := Command(targets, "release", 600)

	if !strings.Contains(cmd, ":core:data:testReleaseUnitTest") {
		t.Errorf("Expected module-scoped task, got: %s", cmd)
	}
}

// TestCommandDefaultVariant checks an empty variant falls back to debug.
func TestCommandDefaultVariant(t *testing.T) {
	targets := Targets{ByModule: map[string][]string{
		":": {"com.app.RootTest"},
	}}

	cmd := Command(targets, "", 60)

	if !strings.Contains(cmd, " testDebugUnitTest ") {
		t.Errorf("Expected debug variant task for root module, got: %s", cmd)
	}
}
