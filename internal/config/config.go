// Package config handles configuration loading for benchval.
// It layers built-in defaults, the user config file (~/.benchval.yaml),
// a project-level .benchval.yaml, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for benchval.
type Config struct {
	Dataset    string           `mapstructure:"dataset"`
	Output     string           `mapstructure:"output"`
	Run        RunConfig        `mapstructure:"run"`
	Docker     DockerConfig     `mapstructure:"docker"`
	Validation ValidationConfig `mapstructure:"validation"`
	LogFile    string           `mapstructure:"log_file"`
}

// RunConfig holds batch execution settings.
type RunConfig struct {
	Workers         int           `mapstructure:"workers"`
	TestTimeout     time.Duration `mapstructure:"test_timeout"`
	MaxInstances    int           `mapstructure:"max_instances"`
	CheckpointEvery int           `mapstructure:"checkpoint_every"`
}

// DockerConfig holds container settings.
type DockerConfig struct {
	Image          string `mapstructure:"image"`
	KeepContainers bool   `mapstructure:"keep_containers"`
}

// ValidationConfig holds pipeline behavior toggles.
type ValidationConfig struct {
	EnableStubs bool `mapstructure:"enable_stubs"`
	Resume      bool `mapstructure:"resume"`
}

// Load loads configuration from user and project config files and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (BENCHVAL_*)
// 2. Project config (.benchval.yaml in current directory or parent)
// 3. User config (~/.benchval.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfig := UserConfigPath()
	if _, err := os.Stat(userConfig); err == nil {
		v.SetConfigFile(userConfig)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("BENCHVAL")
	v.AutomaticEnv()
	v.BindEnv("docker.image", "BENCHVAL_IMAGE")
	v.BindEnv("run.workers", "BENCHVAL_WORKERS")
	v.BindEnv("dataset", "BENCHVAL_DATASET")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Dataset = os.ExpandEnv(cfg.Dataset)
	cfg.Output = os.ExpandEnv(cfg.Output)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// UserConfigPath returns the path to the user config file.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".benchval.yaml"
	}
	return filepath.Join(home, ".benchval.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("dataset", "")
	v.SetDefault("output", "validation_results")
	v.SetDefault("log_file", "")

	v.SetDefault("run.workers", 1)
	v.SetDefault("run.test_timeout", "30m")
	v.SetDefault("run.max_instances", 0)
	v.SetDefault("run.checkpoint_every", 10)

	v.SetDefault("docker.image", "mingc/android-build-box:latest")
	v.SetDefault("docker.keep_containers", false)

	v.SetDefault("validation.enable_stubs", false)
	v.SetDefault("validation.resume", false)
}

// findProjectConfig searches for .benchval.yaml in the current directory
// and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".benchval.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Output: "validation_results",
		Run: RunConfig{
			Workers:         1,
			TestTimeout:     30 * time.Minute,
			CheckpointEvery: 10,
		},
		Docker: DockerConfig{
			Image: "mingc/android-build-box:latest",
		},
	}
}
