package testrun

import (
	"reflect"
	"testing"
)

const multiModulePatch = `diff --git a/app/src/test/java/com/app/LoginTest.java b/app/src/test/java/com/app/LoginTest.java
+++ b/app/src/test/java/com/app/LoginTest.java
diff --git a/core/data/src/test/kotlin/com/app/data/RepoTest.kt b/core/data/src/test/kotlin/com/app/data/RepoTest.kt
+++ b/core/data/src/test/kotlin/com/app/data/RepoTest.kt
diff --git a/app/src/androidTest/java/com/app/ScreenTest.java b/app/src/androidTest/java/com/app/ScreenTest.java
+++ b/app/src/androidTest/java/com/app/ScreenTest.java
diff --git a/app/src/test/java/com/app/MockServer.java b/app/src/test/java/com/app/MockServer.java
+++ b/app/src/test/java/com/app/MockServer.java
`

// TestTargetsFromPatch covers module grouping, instrumented skipping and
// utility filtering in one patch.
func TestTargetsFromPatch(t *testing.T) {
	targets := TargetsFromPatch(multiModulePatch)

	if !reflect.DeepEqual(targets.ByModule[":app"], []string{"com.app.LoginTest"}) {
		t.Errorf("Unexpected :app classes: %v", targets.ByModule[":app"])
	}
	if !reflect.DeepEqual(targets.ByModule[":core:data"], []string{"com.app.data.RepoTest"}) {
		t.Errorf("Unexpected :core:data classes: %v", targets.ByModule[":core:data"])
	}
	if !reflect.DeepEqual(targets.SkippedInstrumented, []string{"com.app.ScreenTest"}) {
		t.Errorf("Expected instrumented test skipped, got: %v", targets.SkippedInstrumented)
	}
	for _, classes := range targets.ByModule {
		for _, c := range classes {
			if c == "com.app.MockServer" {
				t.Error("Utility class MockServer should have been filtered")
			}
		}
	}
}

// TestTargetsEmptyPatch checks an empty patch produces no targets.
func TestTargetsEmptyPatch(t *testing.T) {
	targets := TargetsFromPatch("")
	if !targets.Empty() {
		t.Errorf("Expected empty targets, got: %+v", targets)
	}
}

// TestClassNameForPath covers the recognized source roots.
func TestClassNameForPath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"app/src/test/java/com/app/FooTest.java", "com.app.FooTest"},
		{"lib/src/test/kotlin/com/lib/BarTest.kt", "com.lib.BarTest"},
		{"shared/src/commonTest/kotlin/com/s/BazTest.kt", "com.s.BazTest"},
		{"legacy/tests/java/com/old/QuxTest.java", "com.old.QuxTest"},
		{"README.md", ""},
	}
	for _, c := range cases {
		if got := classNameForPath(c.path); got != c.want {
			t.Errorf("classNameForPath(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}

// TestModuleForPath covers nested modules, the root module and the
// fallback.
func TestModuleForPath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"app/src/test/java/com/app/FooTest.java", ":app"},
		{"core/data/src/test/kotlin/com/app/RepoTest.kt", ":core:data"},
		{"src/test/java/com/app/RootTest.java", ":"},
		{"weird/path/Test.java", ":app"},
	}
	for _, c := range cases {
		if got := moduleForPath(c.path); got != c.want {
			t.Errorf("moduleForPath(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}

// TestIsUtilityClass checks the filename heuristics.
func TestIsUtilityClass(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"MockServer.java", true},
		{"FakeRepository.kt", true},
		{"TestHelper.java", true},
		{"StringUtils.kt", true},
		{"BaseActivity.java", true},
		{"LoginTest.java", false},
		{"MockolateTest.kt", false},
	}
	for _, c := range cases {
		if got := isUtilityClass(c.name); got != c.want {
			t.Errorf("isUtilityClass(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}
