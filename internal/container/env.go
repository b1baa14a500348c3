package container

import (
	"fmt"
	"strings"

	"github.com/mobilebench/benchval/internal/buildcfg"
)

// javaHome maps a JDK major version to its path inside the build image.
func javaHome(version string) string {
	return fmt.Sprintf("/usr/lib/jvm/java-%s-openjdk-amd64", version)
}

// WithToolchain prefixes cmd with the environment the project's toolchain
// requires and a cd into the workspace.
func WithToolchain(cfg buildcfg.Config, workspace, cmd string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "export JAVA_HOME=%s && export PATH=$JAVA_HOME/bin:$PATH", javaHome(cfg.JavaVersion))
	if cfg.JVMArgs != "" {
		fmt.Fprintf(&b, " && export GRADLE_OPTS=%q", cfg.JVMArgs)
	}
	if cfg.NDKVersion != "" {
		fmt.Fprintf(&b, " && export ANDROID_NDK_VERSION=%s", cfg.NDKVersion)
	}
	fmt.Fprintf(&b, " && cd %s && %s", workspace, cmd)
	return b.String()
}
