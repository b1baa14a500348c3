package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "benchval.yaml")

	content := `dataset: /data/instances.jsonl
output: /tmp/results
run:
  workers: 4
  test_timeout: 45m
  max_instances: 20
docker:
  image: custom/android:latest
  keep_containers: true
validation:
  enable_stubs: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Dataset != "/data/instances.jsonl" {
		t.Errorf("Expected dataset /data/instances.jsonl, got: %v", cfg.Dataset)
	}
	if cfg.Run.Workers != 4 {
		t.Errorf("Expected 4 workers, got: %v", cfg.Run.Workers)
	}
	if cfg.Run.TestTimeout != 45*time.Minute {
		t.Errorf("Expected 45m test timeout, got: %v", cfg.Run.TestTimeout)
	}
	if cfg.Run.MaxInstances != 20 {
		t.Errorf("Expected max_instances 20, got: %v", cfg.Run.MaxInstances)
	}
	if cfg.Docker.Image != "custom/android:latest" {
		t.Errorf("Expected custom image, got: %v", cfg.Docker.Image)
	}
	if !cfg.Docker.KeepContainers {
		t.Error("Expected keep_containers to be true")
	}
	if !cfg.Validation.EnableStubs {
		t.Error("Expected enable_stubs to be true")
	}
}

func TestLoadFromPathDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "benchval.yaml")

	if err := os.WriteFile(path, []byte("dataset: d.jsonl\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Output != "validation_results" {
		t.Errorf("Expected default output dir, got: %v", cfg.Output)
	}
	if cfg.Run.Workers != 1 {
		t.Errorf("Expected default 1 worker, got: %v", cfg.Run.Workers)
	}
	if cfg.Run.TestTimeout != 30*time.Minute {
		t.Errorf("Expected default 30m timeout, got: %v", cfg.Run.TestTimeout)
	}
	if cfg.Docker.Image != "mingc/android-build-box:latest" {
		t.Errorf("Expected default image, got: %v", cfg.Docker.Image)
	}
	if cfg.Validation.Resume {
		t.Error("Expected resume to default to false")
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Run.Workers != 1 {
		t.Errorf("Expected 1 worker, got: %v", cfg.Run.Workers)
	}
	if cfg.Docker.Image == "" {
		t.Error("Expected a default docker image")
	}
}
