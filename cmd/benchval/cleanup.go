package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mobilebench/benchval/internal/container"
)

var cleanupForce bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove containers left behind by earlier runs",
	Long: `Remove orphaned benchval containers.

Validation containers are normally removed when their instance finishes,
but a crash, a kill -9, or --keep-containers can leave them behind. This
command removes every container whose name carries the benchval prefix,
regardless of which run created it.

Examples:
  benchval cleanup            # Interactive cleanup with confirmation
  benchval cleanup --force    # Skip confirmation prompt`,
	RunE: runCleanupCmd,
}

func init() {
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "Skip confirmation prompt")
}

func runCleanupCmd(cmd *cobra.Command, args []string) error {
	if err := CheckDockerCLI(); err != nil {
		return err
	}

	if !cleanupForce {
		fmt.Print("Remove all benchval containers? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Cleanup cancelled.")
			return nil
		}
	}

	mgr, err := container.NewManager(container.DefaultImage, uuid.NewString())
	if err != nil {
		return fmt.Errorf("connect to docker: %w", err)
	}
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	removed, err := mgr.CleanupOrphans(ctx)
	if err != nil {
		return fmt.Errorf("cleanup containers: %w", err)
	}

	if removed == 0 {
		fmt.Println("No benchval containers found.")
	} else {
		fmt.Printf("Removed %d container(s).\n", removed)
	}
	return nil
}
