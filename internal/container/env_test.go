package container

import (
	"strings"
	"testing"

	"github.com/mobilebench/benchval/internal/buildcfg"
)

// TestWithToolchain checks the exec prefix carries JAVA_HOME, GRADLE_OPTS
// and the workspace cd.
func TestWithToolchain(t *testing.T) {
	cfg := buildcfg.Config{JavaVersion: "17", JVMArgs: "-Xmx4096m"}

	cmd := WithToolchain(cfg, "/workspace", "./gradlew test")

	if !strings.Contains(cmd, "JAVA_HOME=/usr/lib/jvm/java-17-openjdk-amd64") {
		t.Errorf("Expected JAVA_HOME for Java 17, got: %s", cmd)
	}
	if !strings.Contains(cmd, `GRADLE_OPTS="-Xmx4096m"`) {
		t.Errorf("Expected GRADLE_OPTS, got: %s", cmd)
	}
	if !strings.Contains(cmd, "cd /workspace && ./gradlew test") {
		t.Errorf("Expected workspace cd before command, got: %s", cmd)
	}
}

// TestWithToolchainNoOptionalEnv checks optional settings are omitted.
func TestWithToolchainNoOptionalEnv(t *testing.T) {
	cfg := buildcfg.Config{JavaVersion: "11"}

	cmd := WithToolchain(cfg, "/workspace_clean", "true")

	if strings.Contains(cmd, "GRADLE_OPTS") || strings.Contains(cmd, "ANDROID_NDK_VERSION") {
		t.Errorf("Expected no optional env, got: %s", cmd)
	}
}

// TestSanitizeName checks container-unsafe runes are replaced.
func TestSanitizeName(t *testing.T) {
	if got := sanitizeName("org/app#1"); got != "org_app_1" {
		t.Errorf("Expected org_app_1, got: %s", got)
	}
}
