package buildcfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OverrideFile is the per-project file that pins toolchain values when
// detection guesses wrong.
const OverrideFile = "benchval.yaml"

// override mirrors Config with optional fields so absent keys leave the
// detected value untouched.
type override struct {
	JavaVersion   *string `yaml:"java_version"`
	GradleVersion *string `yaml:"gradle_version"`
	AGPVersion    *string `yaml:"agp_version"`
	CompileSDK    *int    `yaml:"compile_sdk"`
	TargetSDK     *int    `yaml:"target_sdk"`
	MinSDK        *int    `yaml:"min_sdk"`
	NDKVersion    *string `yaml:"ndk_version"`
	JVMArgs       *string `yaml:"jvm_args"`
	TestVariant   *string `yaml:"test_variant"`
	HasKotlin     *bool   `yaml:"has_kotlin"`
}

// ApplyOverrides merges the project's override file into cfg. A missing
// file is not an error; a malformed one is.
func ApplyOverrides(root string, cfg Config) (Config, error) {
	data, err := os.ReadFile(filepath.Join(root, OverrideFile))
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", OverrideFile, err)
	}
	var o override
	if err := yaml.Unmarshal(data, &o); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", OverrideFile, err)
	}
	if o.JavaVersion != nil {
		cfg.JavaVersion = clampJava(*o.JavaVersion)
	}
	if o.GradleVersion != nil {
		cfg.GradleVersion = *o.GradleVersion
	}
	if o.AGPVersion != nil {
		cfg.AGPVersion = *o.AGPVersion
	}
	if o.CompileSDK != nil {
		cfg.CompileSDK = clampSDK(*o.CompileSDK)
	}
	if o.TargetSDK != nil {
		cfg.TargetSDK = clampSDK(*o.TargetSDK)
	}
	if o.MinSDK != nil {
		cfg.MinSDK = clampSDK(*o.MinSDK)
	}
	if o.NDKVersion != nil {
		cfg.NDKVersion = *o.NDKVersion
	}
	if o.JVMArgs != nil {
		cfg.JVMArgs = *o.JVMArgs
	}
	if o.TestVariant != nil {
		cfg.TestVariant = *o.TestVariant
	}
	if o.HasKotlin != nil {
		cfg.HasKotlin = *o.HasKotlin
	}
	return cfg, nil
}
