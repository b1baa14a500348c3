// Package stubgen produces compile-only skeletons for source files a
// solution patch introduces, so a test patch that references new symbols
// can still compile in the pre-patch workspace.
package stubgen

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mobilebench/benchval/internal/container"
)

// StubError wraps stub materialization failures. Stubbing is best effort;
// callers record the error and move on.
type StubError struct {
	File string
	Err  error
}

func (e *StubError) Error() string {
	return fmt.Sprintf("stub %s: %v", e.File, e.Err)
}

func (e *StubError) Unwrap() error { return e.Err }

// Outcome reports whether stubs were applied and why not if they weren't.
type Outcome struct {
	Applied bool
	Reason  string
	Files   []string
}

// Generator is the stub capability the validator invokes when the pre
// build fails.
type Generator interface {
	Apply(ctx context.Context, exec container.Execer, instanceID, workspace, solutionPatch string) (Outcome, error)
}

// SignatureGenerator builds skeletons from the type and method signatures
// visible in a patch's added lines.
type SignatureGenerator struct{}

// NewSignatureGenerator creates the default stub generator.
func NewSignatureGenerator() *SignatureGenerator {
	return &SignatureGenerator{}
}

var (
	newFileRe = regexp.MustCompile(`(?m)^diff --git a/.+ b/(.+)\nnew file mode`)

	packageRe = regexp.MustCompile(`^\+\s*package\s+([\w.]+)`)
	typeRe    = regexp.MustCompile(`^\+\s*(?:public\s+|internal\s+|open\s+|abstract\s+)*(class|interface|object|enum)\s+(\w+)`)

	javaMethodRe   = regexp.MustCompile(`^\+\s*(?:public|protected)\s+(?:static\s+)?([\w<>\[\], ?]+)\s+(\w+)\s*\(([^)]*)\)\s*\{`)
	kotlinMethodRe = regexp.MustCompile(`^\+\s*(?:override\s+|open\s+|public\s+)*fun\s+(\w+)\s*\(([^)]*)\)(?:\s*:\s*([\w<>?.]+))?`)
)

// Apply scans the solution patch for brand-new non-test source files,
// rebuilds them as skeletons whose methods have inert default bodies, and
// writes them into the workspace. When the patch adds no new files there
// is nothing to stub and the outcome is Skipped.
func (g *SignatureGenerator) Apply(ctx context.Context, exec container.Execer, instanceID, workspace, solutionPatch string) (Outcome, error) {
	files := newSourceFiles(solutionPatch)
	if len(files) == 0 {
		return Outcome{Reason: "solution patch adds no new source files"}, nil
	}

	var stubbed []string
	for _, file := range files {
		src := buildSkeleton(file, fileAddedLines(solutionPatch, file))
		if src == "" {
			continue
		}
		if err := writeFileInContainer(ctx, exec, instanceID, workspace, file, src); err != nil {
			// A half-written workspace must never count as applied; the
			// caller restores the tree. Files lists what did land.
			return Outcome{Reason: "write failed, workspace needs restore", Files: stubbed},
				&StubError{File: file, Err: err}
		}
		stubbed = append(stubbed, file)
	}
	if len(stubbed) == 0 {
		return Outcome{Reason: "no stubbable declarations found in new files"}, nil
	}
	return Outcome{Applied: true, Files: stubbed}, nil
}

// newSourceFiles lists non-test .java/.kt files the patch creates.
func newSourceFiles(patch string) []string {
	var files []string
	for _, m := range newFileRe.FindAllStringSubmatch(patch, -1) {
		path := strings.TrimSpace(m[1])
		lower := strings.ToLower(path)
		if !strings.HasSuffix(lower, ".java") && !strings.HasSuffix(lower, ".kt") {
			continue
		}
		if strings.Contains(lower, "test") {
			continue
		}
		files = append(files, path)
	}
	return files
}

// fileAddedLines returns the '+' lines of the hunk that creates file.
func fileAddedLines(patch, file string) []string {
	marker := "+++ b/" + file
	idx := strings.Index(patch, marker)
	if idx < 0 {
		return nil
	}
	rest := patch[idx+len(marker):]
	if end := strings.Index(rest, "\ndiff --git "); end >= 0 {
		rest = rest[:end]
	}
	var lines []string
	for _, line := range strings.Split(rest, "\n") {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			lines = append(lines, line)
		}
	}
	return lines
}

// buildSkeleton reconstructs a compilable shell of the added file: package,
// type declaration, and public methods with default bodies.
func buildSkeleton(file string, added []string) string {
	kotlin := strings.HasSuffix(strings.ToLower(file), ".kt")

	var pkg, typeKind, typeName string
	type method struct{ name, params, ret string }
	var methods []method

	for _, line := range added {
		if m := packageRe.FindStringSubmatch(line); m != nil && pkg == "" {
			pkg = m[1]
		}
		if m := typeRe.FindStringSubmatch(line); m != nil && typeName == "" {
			typeKind, typeName = m[1], m[2]
		}
		if kotlin {
			if m := kotlinMethodRe.FindStringSubmatch(line); m != nil {
				methods = append(methods, method{name: m[1], params: m[2], ret: m[3]})
			}
		} else {
			if m := javaMethodRe.FindStringSubmatch(line); m != nil {
				methods = append(methods, method{name: m[2], params: m[3], ret: strings.TrimSpace(m[1])})
			}
		}
	}
	if typeName == "" {
		return ""
	}

	var b strings.Builder
	if kotlin {
		if pkg != "" {
			fmt.Fprintf(&b, "package %s\n\n", pkg)
		}
		fmt.Fprintf(&b, "%s %s {\n", typeKind, typeName)
		for _, m := range methods {
			ret := ""
			if m.ret != "" && m.ret != "Unit" {
				ret = ": " + m.ret
			}
			fmt.Fprintf(&b, "    fun %s(%s)%s = TODO(\"stub\")\n", m.name, m.params, ret)
		}
		b.WriteString("}\n")
	} else {
		if pkg != "" {
			fmt.Fprintf(&b, "package %s;\n\n", pkg)
		}
		fmt.Fprintf(&b, "public %s %s {\n", typeKind, typeName)
		for _, m := range methods {
			fmt.Fprintf(&b, "    public %s %s(%s) {\n        %s\n    }\n", m.ret, m.name, m.params, javaDefaultBody(m.ret))
		}
		b.WriteString("}\n")
	}
	return b.String()
}

func javaDefaultBody(ret string) string {
	switch strings.TrimSpace(ret) {
	case "void":
		return "throw new UnsupportedOperationException(\"stub\");"
	case "boolean":
		return "return false;"
	case "int", "long", "short", "byte", "char":
		return "return 0;"
	case "float", "double":
		return "return 0.0;"
	default:
		return "return null;"
	}
}

// writeFileInContainer materializes content at a workspace-relative path
// via a quoted heredoc, so patch text is never shell-expanded.
func writeFileInContainer(ctx context.Context, exec container.Execer, instanceID, workspace, relPath, content string) error {
	full := workspace + "/" + relPath
	dir := full[:strings.LastIndex(full, "/")]
	cmd := fmt.Sprintf("mkdir -p %s && cat > %s <<'BENCHVAL_STUB_EOF'\n%s\nBENCHVAL_STUB_EOF", dir, full, content)
	res, err := exec.Exec(ctx, instanceID, cmd, time.Minute)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("write failed with exit %d: %s", res.ExitCode, res.Output)
	}
	return nil
}

// Verify SignatureGenerator implements Generator at compile time.
var _ Generator = (*SignatureGenerator)(nil)
