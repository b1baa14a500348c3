package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mobilebench/benchval/internal/config"
	"github.com/mobilebench/benchval/internal/container"
	"github.com/mobilebench/benchval/internal/dataset"
	"github.com/mobilebench/benchval/internal/validator"
)

var (
	validateDataset      string
	validateOutput       string
	validateWorkers      int
	validateTimeout      time.Duration
	validateInclude      []string
	validateExclude      []string
	validateMaxInstances int
	validateResume       bool
	validateKeep         bool
	validateEnableStubs  bool
	validateImage        string
	validateLogFile      string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate dataset instances against their solution patches",
	Long: `Validate every instance of a JSONL dataset.

For each instance, benchval clones the repository, provisions a Docker
container, checks out the base commit, applies the test patch, runs the
affected unit tests, then rebuilds a clean workspace with the solution
patch applied and runs them again. Test outcomes from the two runs are
compared and classified into transitions.

An instance succeeds when the post-patch build completes, at least one
test moved FAIL_TO_PASS, and no test moved PASS_TO_FAIL.

Artifacts are written under the output directory:
  <output>/<instance_id>/validation_result.json
  <output>/<instance_id>/test_analysis.json
  <output>/final_validation_summary.json
  <output>/validation_report.txt

Examples:
  benchval validate --dataset instances.jsonl
  benchval validate --dataset instances.jsonl --workers 4 --timeout 45m
  benchval validate --dataset instances.jsonl --include app-debug-101
  benchval validate --dataset instances.jsonl --resume`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateDataset, "dataset", "", "Path to the JSONL dataset file")
	validateCmd.Flags().StringVar(&validateOutput, "output", "", "Directory for validation artifacts")
	validateCmd.Flags().IntVar(&validateWorkers, "workers", 0, "Number of instances validated concurrently")
	validateCmd.Flags().DurationVar(&validateTimeout, "timeout", 0, "Per-test-suite timeout (e.g. 30m)")
	validateCmd.Flags().StringSliceVar(&validateInclude, "include", nil, "Only validate matching instance IDs (exact or numeric suffix)")
	validateCmd.Flags().StringSliceVar(&validateExclude, "exclude", nil, "Skip matching instance IDs")
	validateCmd.Flags().IntVar(&validateMaxInstances, "max-instances", 0, "Stop after N instances (0 = all)")
	validateCmd.Flags().BoolVar(&validateResume, "resume", false, "Skip instances recorded in the progress database")
	validateCmd.Flags().BoolVar(&validateKeep, "keep-containers", false, "Stop containers instead of removing them (debugging)")
	validateCmd.Flags().BoolVar(&validateEnableStubs, "enable-stubs", false, "Generate stub implementations for new source files before the pre run")
	validateCmd.Flags().StringVar(&validateImage, "image", "", "Docker build image")
	validateCmd.Flags().StringVar(&validateLogFile, "log-file", "", "Debug log path (default <output>/validation_debug.log)")
}

// resolveValidateConfig merges the config file with explicit flags.
// Flags win when set.
func resolveValidateConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("dataset") {
		cfg.Dataset = validateDataset
	}
	if cmd.Flags().Changed("output") {
		cfg.Output = validateOutput
	}
	if cmd.Flags().Changed("workers") {
		cfg.Run.Workers = validateWorkers
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Run.TestTimeout = validateTimeout
	}
	if cmd.Flags().Changed("max-instances") {
		cfg.Run.MaxInstances = validateMaxInstances
	}
	if cmd.Flags().Changed("resume") {
		cfg.Validation.Resume = validateResume
	}
	if cmd.Flags().Changed("keep-containers") {
		cfg.Docker.KeepContainers = validateKeep
	}
	if cmd.Flags().Changed("enable-stubs") {
		cfg.Validation.EnableStubs = validateEnableStubs
	}
	if cmd.Flags().Changed("image") {
		cfg.Docker.Image = validateImage
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = validateLogFile
	}

	if cfg.Dataset == "" {
		return nil, fmt.Errorf("no dataset given: pass --dataset or set it in %s", config.UserConfigPath())
	}
	return cfg, nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	if err := CheckDockerCLI(); err != nil {
		return err
	}

	cfg, err := resolveValidateConfig(cmd)
	if err != nil {
		return err
	}

	instances, warnings, err := dataset.Load(cfg.Dataset)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	for _, w := range warnings {
		color.Yellow("warning: %s", w)
	}

	instances = dataset.Filter(instances, validateInclude, validateExclude, cfg.Run.MaxInstances)
	if len(instances) == 0 {
		return fmt.Errorf("no instances left after filtering")
	}

	if err := os.MkdirAll(cfg.Output, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	logPath := cfg.LogFile
	if logPath == "" {
		logPath = filepath.Join(cfg.Output, "validation_debug.log")
	}
	log, err := validator.NewDebugLogger(logPath)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	defer log.Close()

	runID := uuid.NewString()

	mgr, err := container.NewManager(cfg.Docker.Image, runID)
	if err != nil {
		return fmt.Errorf("connect to docker: %w", err)
	}
	defer mgr.Close()
	mgr.KeepContainers = cfg.Docker.KeepContainers

	progress, err := validator.OpenProgress(validator.ProgressPath(cfg.Output))
	if err != nil {
		return fmt.Errorf("open progress database: %w", err)
	}
	defer progress.Close()

	workDir, err := os.MkdirTemp("", "benchval-clones-")
	if err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	v := validator.New(validator.Options{
		RunID:           runID,
		OutputDir:       cfg.Output,
		WorkDir:         workDir,
		TestTimeout:     cfg.Run.TestTimeout,
		Workers:         cfg.Run.Workers,
		EnableStubs:     cfg.Validation.EnableStubs,
		Resume:          cfg.Validation.Resume,
		CheckpointEvery: cfg.Run.CheckpointEvery,
	}, mgr, progress, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Validating %d instance(s) with %d worker(s), image %s\n",
		len(instances), max(cfg.Run.Workers, 1), cfg.Docker.Image)

	summary, err := v.Run(ctx, instances)
	if err != nil {
		if ctx.Err() != nil {
			color.Yellow("Run interrupted; partial results saved to %s", cfg.Output)
		}
		return err
	}

	printSummary(summary, cfg.Output)

	if summary.Successful == 0 {
		return fmt.Errorf("no instances validated successfully")
	}
	return nil
}

// printSummary renders the batch digest to the terminal.
func printSummary(s validator.Summary, outputDir string) {
	bold := color.New(color.Bold)

	fmt.Println()
	bold.Println("Validation complete")
	fmt.Printf("  Instances:    %d\n", s.TotalInstances)
	color.Green("  Successful:   %d", s.Successful)
	if s.Failed > 0 {
		color.Red("  Failed:       %d", s.Failed)
	} else {
		fmt.Printf("  Failed:       %d\n", s.Failed)
	}
	fmt.Printf("  Success rate: %.1f%%\n", s.SuccessRate*100)
	fmt.Printf("  Duration:     %s\n", (time.Duration(s.TotalDurationSecs * float64(time.Second))).Round(time.Second))

	if len(s.TransitionOverview) > 0 {
		fmt.Println("  Transitions:")
		for _, key := range []string{"fail_to_pass", "pass_to_pass", "pass_to_fail", "fail_to_fail"} {
			if n, ok := s.TransitionOverview[key]; ok {
				fmt.Printf("    %-13s %d\n", key, n)
			}
		}
	}

	if len(s.FailuresByStage) > 0 {
		fmt.Println("  Failures by stage:")
		for stage, n := range s.FailuresByStage {
			fmt.Printf("    %-20s %d\n", stage, n)
		}
	}

	fmt.Printf("\nArtifacts written to %s\n", outputDir)
}
