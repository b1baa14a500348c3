package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// CheckDockerCLI verifies that the 'docker' CLI is available in PATH.
// The engine itself is reached over the API socket, but a missing CLI
// almost always means a missing daemon, so surface it early.
func CheckDockerCLI() error {
	_, err := exec.LookPath("docker")
	if err != nil {
		return fmt.Errorf("docker CLI not found in PATH\n\n" +
			"benchval runs test suites inside disposable Docker containers\n" +
			"and needs a local Docker engine.\n\n" +
			"Install it from:\n" +
			"  https://docs.docker.com/engine/install/")
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "benchval",
	Short: "Mobile patch validation engine",
	Long: `benchval validates candidate patches against Android app repositories.

For each dataset instance it clones the repository, checks out the base
commit inside a disposable Docker container, runs the relevant unit tests
before and after the solution patch, and classifies every test by its
pass/fail transition. An instance is accepted when the patch turns at
least one failing test green without breaking any passing test.

Core capabilities:
- Streams JSONL datasets with per-instance include/exclude filters
- Detects Gradle, AGP, Java and SDK versions per repository
- Runs pre/post test suites in isolated containers with timeouts
- Classifies FAIL_TO_PASS / PASS_TO_PASS / PASS_TO_FAIL / FAIL_TO_FAIL
- Persists per-instance artifacts and resumes interrupted batches`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}
