// Package buildcfg inspects an Android/Gradle checkout and derives the
// toolchain settings a test run needs. Detection never fails: anything it
// cannot determine falls back to a default and surfaces as a warning.
package buildcfg

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config describes the toolchain of a project under test.
type Config struct {
	JavaVersion   string `json:"java_version" yaml:"java_version"`
	GradleVersion string `json:"gradle_version" yaml:"gradle_version"`
	AGPVersion    string `json:"agp_version,omitempty" yaml:"agp_version"`
	CompileSDK    int    `json:"compile_sdk" yaml:"compile_sdk"`
	TargetSDK     int    `json:"target_sdk" yaml:"target_sdk"`
	MinSDK        int    `json:"min_sdk" yaml:"min_sdk"`
	NDKVersion    string `json:"ndk_version,omitempty" yaml:"ndk_version"`
	JVMArgs       string `json:"jvm_args" yaml:"jvm_args"`
	TestVariant   string `json:"test_variant" yaml:"test_variant"`
	HasKotlin     bool   `json:"has_kotlin" yaml:"has_kotlin"`
}

// Defaults recent enough to build most projects when detection comes up
// empty.
func defaultConfig() Config {
	return Config{
		JavaVersion:   "17",
		GradleVersion: "8.6",
		CompileSDK:    35,
		TargetSDK:     35,
		MinSDK:        21,
		JVMArgs:       "-Xmx4096m",
		TestVariant:   "debug",
	}
}

var supportedJava = []string{"8", "11", "17", "21"}

const (
	minSDKBound = 21
	maxSDKBound = 35
)

var (
	wrapperVersionRe = regexp.MustCompile(`distributionUrl=.*gradle-([\d.]+?)-(?:bin|all)\.zip`)
	jvmArgsRe        = regexp.MustCompile(`(?m)^\s*org\.gradle\.jvmargs\s*=\s*(.+)$`)

	agpPatterns = []*regexp.Regexp{
		regexp.MustCompile(`com\.android\.tools\.build:gradle:([\d.]+)`),
		regexp.MustCompile(`id\s*[("']+com\.android\.application["')]+\s*version\s*["']([\d.]+)["']`),
		regexp.MustCompile(`id\s*[("']+com\.android\.library["')]+\s*version\s*["']([\d.]+)["']`),
	}
	agpCatalogPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^\s*agp\s*=\s*"([\d.]+)"`),
		regexp.MustCompile(`(?m)^\s*android-gradle\s*=\s*"([\d.]+)"`),
		regexp.MustCompile(`(?m)^\s*androidGradlePlugin\s*=\s*"([\d.]+)"`),
	}

	compileSDKRe = regexp.MustCompile(`compileSdk(?:Version)?\s*[=(]?\s*(\d+)`)
	targetSDKRe  = regexp.MustCompile(`targetSdk(?:Version)?\s*[=(]?\s*(\d+)`)
	minSDKRe     = regexp.MustCompile(`minSdk(?:Version)?\s*[=(]?\s*(\d+)`)
	ndkRe        = regexp.MustCompile(`ndkVersion\s*[=(]?\s*["']([\d.]+)["']`)
	kotlinRe     = regexp.MustCompile(`kotlin\(|org\.jetbrains\.kotlin|kotlin-android`)
)

// Detect derives the build configuration of the checkout at root. The
// returned warnings describe every value that fell back to a default.
func Detect(root string) (Config, []string) {
	cfg := defaultConfig()
	var warnings []string

	if v, ok := wrapperGradleVersion(root); ok {
		cfg.GradleVersion = v
	} else {
		warnings = append(warnings, fmt.Sprintf("gradle wrapper version not found, defaulting to %s", cfg.GradleVersion))
	}

	if args, ok := gradleJVMArgs(root); ok {
		cfg.JVMArgs = args
	}

	buildFiles := collectBuildFiles(root)

	if v, ok := detectAGP(root, buildFiles); ok {
		cfg.AGPVersion = v
		cfg.JavaVersion = javaForAGP(v)
	} else {
		cfg.JavaVersion = javaForGradle(cfg.GradleVersion)
		warnings = append(warnings, fmt.Sprintf("AGP version not found, deriving Java %s from Gradle %s", cfg.JavaVersion, cfg.GradleVersion))
	}
	cfg.JavaVersion = clampJava(cfg.JavaVersion)

	if sdk, ok := firstIntMatch(buildFiles, compileSDKRe); ok {
		cfg.CompileSDK = clampSDK(sdk)
	}
	if sdk, ok := firstIntMatch(buildFiles, targetSDKRe); ok {
		cfg.TargetSDK = clampSDK(sdk)
	}
	if sdk, ok := firstIntMatch(buildFiles, minSDKRe); ok {
		cfg.MinSDK = clampSDK(sdk)
	}
	if ndk, ok := firstStringMatch(buildFiles, ndkRe); ok {
		cfg.NDKVersion = ndk
	}

	cfg.HasKotlin = detectKotlin(root, buildFiles)

	return cfg, warnings
}

// wrapperGradleVersion reads gradle/wrapper/gradle-wrapper.properties.
func wrapperGradleVersion(root string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(root, "gradle", "wrapper", "gradle-wrapper.properties"))
	if err != nil {
		return "", false
	}
	m := wrapperVersionRe.FindStringSubmatch(string(data))
	if m == nil {
		return "", false
	}
	return strings.TrimSuffix(m[1], "."), true
}

func gradleJVMArgs(root string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(root, "gradle.properties"))
	if err != nil {
		return "", false
	}
	m := jvmArgsRe.FindStringSubmatch(string(data))
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// collectBuildFiles reads the gradle build scripts detection scans. Only
// top-level and one-level-deep module scripts matter for toolchain facts.
func collectBuildFiles(root string) []string {
	names := []string{
		"build.gradle", "build.gradle.kts",
		"settings.gradle", "settings.gradle.kts",
	}
	var contents []string
	for _, n := range names {
		if data, err := os.ReadFile(filepath.Join(root, n)); err == nil {
			contents = append(contents, string(data))
		}
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return contents
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		for _, n := range []string{"build.gradle", "build.gradle.kts"} {
			if data, err := os.ReadFile(filepath.Join(root, e.Name(), n)); err == nil {
				contents = append(contents, string(data))
			}
		}
	}
	return contents
}

func detectAGP(root string, buildFiles []string) (string, bool) {
	for _, content := range buildFiles {
		for _, re := range agpPatterns {
			if m := re.FindStringSubmatch(content); m != nil {
				return m[1], true
			}
		}
	}
	if data, err := os.ReadFile(filepath.Join(root, "gradle", "libs.versions.toml")); err == nil {
		for _, re := range agpCatalogPatterns {
			if m := re.FindStringSubmatch(string(data)); m != nil {
				return m[1], true
			}
		}
	}
	return "", false
}

// javaForAGP maps an Android Gradle Plugin version to the JDK it requires.
func javaForAGP(agp string) string {
	switch {
	case versionAtLeast(agp, "7.4"):
		return "17"
	case versionAtLeast(agp, "4.2"):
		return "11"
	default:
		return "8"
	}
}

// javaForGradle is the fallback mapping when no AGP version is visible.
func javaForGradle(gradle string) string {
	switch {
	case versionAtLeast(gradle, "8.0"):
		return "17"
	case versionAtLeast(gradle, "6.7"):
		return "11"
	default:
		return "8"
	}
}

func clampJava(v string) string {
	for _, s := range supportedJava {
		if v == s {
			return v
		}
	}
	// Snap to the nearest supported version below, or the floor.
	n, err := strconv.Atoi(v)
	if err != nil {
		return "17"
	}
	best := supportedJava[0]
	for _, s := range supportedJava {
		sn, _ := strconv.Atoi(s)
		if sn <= n {
			best = s
		}
	}
	return best
}

func clampSDK(v int) int {
	if v < minSDKBound {
		return minSDKBound
	}
	if v > maxSDKBound {
		return maxSDKBound
	}
	return v
}

func firstIntMatch(contents []string, re *regexp.Regexp) (int, bool) {
	for _, c := range contents {
		if m := re.FindStringSubmatch(c); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func firstStringMatch(contents []string, re *regexp.Regexp) (string, bool) {
	for _, c := range contents {
		if m := re.FindStringSubmatch(c); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// detectKotlin checks build scripts for kotlin plugins and the tree for .kt
// sources. The source walk is bounded to src directories.
func detectKotlin(root string, buildFiles []string) bool {
	for _, c := range buildFiles {
		if kotlinRe.MatchString(c) {
			return true
		}
	}
	found := false
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found {
			return filepath.SkipAll
		}
		if d.IsDir() {
			name := d.Name()
			if name == ".git" || name == "build" || name == ".gradle" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".kt") {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// versionAtLeast compares dotted version strings numerically per segment.
func versionAtLeast(v, min string) bool {
	vp := strings.Split(v, ".")
	mp := strings.Split(min, ".")
	for i := 0; i < len(mp); i++ {
		var vn, mn int
		if i < len(vp) {
			vn, _ = strconv.Atoi(vp[i])
		}
		mn, _ = strconv.Atoi(mp[i])
		if vn != mn {
			return vn > mn
		}
	}
	return true
}
