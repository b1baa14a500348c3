// Package container manages the disposable Docker containers test runs
// execute in.
package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
)

// DefaultImage carries the Android SDK, Gradle distributions and the JDKs
// the build config layer selects between.
const DefaultImage = "mingc/android-build-box:latest"

// namePrefix namespaces every container this tool creates so orphan
// cleanup can find strays from earlier runs.
const namePrefix = "android-bench-"

// ErrTimeout marks an exec that exceeded its deadline. The synthetic exit
// code mirrors coreutils timeout.
var ErrTimeout = errors.New("command timed out")

// TimeoutExitCode is reported for execs killed by their deadline.
const TimeoutExitCode = 124

// ProvisionError wraps failures to bring a container to a usable state.
type ProvisionError struct {
	Instance string
	Err      error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision container for %s: %v", e.Instance, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// ExecResult is the outcome of one command run inside a container.
type ExecResult struct {
	ExitCode int
	Output   string
}

// Execer is the surface the test runner and validator depend on; the
// concrete Manager implements it against the Docker API.
type Execer interface {
	Exec(ctx context.Context, instanceID string, cmd string, timeout time.Duration) (ExecResult, error)
}

// Manager owns the Docker client and a registry of containers keyed by
// instance id so every created container can be torn down, even on
// interrupt.
type Manager struct {
	cli   *client.Client
	image string
	runID string

	// KeepContainers leaves containers stopped instead of removed, for
	// postmortem debugging.
	KeepContainers bool

	mu         sync.Mutex
	containers map[string]string // instance id -> container id
}

// NewManager connects to the Docker daemon from the environment. runID
// namespaces container names so concurrent runs never collide.
func NewManager(image, runID string) (*Manager, error) {
	cli, err := client.New(client.FromEnv)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if image == "" {
		image = DefaultImage
	}
	return &Manager{
		cli:        cli,
		image:      image,
		runID:      runID,
		containers: make(map[string]string),
	}, nil
}

// Close releases the Docker client.
func (m *Manager) Close() error {
	return m.cli.Close()
}

// Ping verifies the Docker daemon is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	_, err := m.cli.Ping(ctx, client.PingOptions{})
	return err
}

// containerName is unique per run and instance.
func (m *Manager) containerName(instanceID string) string {
	run := m.runID
	if len(run) > 8 {
		run = run[:8]
	}
	return namePrefix + run + "-" + sanitizeName(instanceID)
}

func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// EnsureImage makes the build image available locally, pulling it when the
// daemon does not have it yet.
func (m *Manager) EnsureImage(ctx context.Context) error {
	_, err := m.cli.ImageInspect(ctx, m.image)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("inspect image %s: %w", m.image, err)
	}
	rc, err := m.cli.ImagePull(ctx, m.image, client.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", m.image, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("pull image %s: %w", m.image, err)
	}
	return nil
}

// Create starts a keep-alive container for the instance and registers it
// for teardown. The instance's previous container, if any, is removed
// first.
func (m *Manager) Create(ctx context.Context, instanceID string) (string, error) {
	_ = m.Cleanup(ctx, instanceID)

	name := m.containerName(instanceID)
	result, err := m.cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Name:  name,
		Image: m.image,
		Config: &container.Config{
			// Keep the container alive between execs.
			Cmd:        []string{"tail", "-f", "/dev/null"},
			WorkingDir: "/workspace",
			Env: []string{
				"HOME=/tmp",
				"GRADLE_USER_HOME=/tmp/.gradle",
				"ANDROID_HOME=/opt/android-sdk",
			},
		},
		HostConfig: &container.HostConfig{},
	})
	if err != nil {
		return "", &ProvisionError{Instance: instanceID, Err: fmt.Errorf("create container %s: %w", name, err)}
	}
	if _, err := m.cli.ContainerStart(ctx, result.ID, client.ContainerStartOptions{}); err != nil {
		_, _ = m.cli.ContainerRemove(ctx, result.ID, client.ContainerRemoveOptions{Force: true})
		return "", &ProvisionError{Instance: instanceID, Err: fmt.Errorf("start container %s: %w", name, err)}
	}

	m.mu.Lock()
	m.containers[instanceID] = result.ID
	m.mu.Unlock()
	return result.ID, nil
}

func (m *Manager) lookup(instanceID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.containers[instanceID]
	return id, ok
}

// Exec runs a shell command inside the instance's container with a
// deadline. A deadline hit returns ErrTimeout and a synthetic exit code;
// other transport failures return an error with exit code -1.
func (m *Manager) Exec(ctx context.Context, instanceID string, cmd string, timeout time.Duration) (ExecResult, error) {
	containerID, ok := m.lookup(instanceID)
	if !ok {
		return ExecResult{ExitCode: -1}, fmt.Errorf("no container for instance %s", instanceID)
	}

	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// TTY keeps stdout/stderr as one unframed stream, which the report
	// collector depends on.
	created, err := m.cli.ExecCreate(execCtx, containerID, client.ExecCreateOptions{
		Cmd:          []string{"bash", "-lc", cmd},
		TTY:          true,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{ExitCode: -1}, fmt.Errorf("create exec: %w", err)
	}

	attach, err := m.cli.ExecAttach(execCtx, created.ID, client.ExecAttachOptions{})
	if err != nil {
		return ExecResult{ExitCode: -1}, fmt.Errorf("attach exec: %w", err)
	}
	defer attach.Close()

	// The hijacked connection outlives the context, so the deadline has to
	// close it explicitly or the read below blocks until the process exits.
	stop := context.AfterFunc(execCtx, func() { attach.Close() })
	defer stop()

	output, err := io.ReadAll(attach.Reader)
	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return ExecResult{ExitCode: TimeoutExitCode, Output: string(output)},
				fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, cmd)
		}
		return ExecResult{ExitCode: -1, Output: string(output)}, fmt.Errorf("read exec output: %w", err)
	}
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return ExecResult{ExitCode: TimeoutExitCode, Output: string(output)},
			fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, cmd)
	}

	inspect, err := m.cli.ExecInspect(ctx, created.ID, client.ExecInspectOptions{})
	if err != nil {
		return ExecResult{ExitCode: -1, Output: string(output)}, fmt.Errorf("inspect exec: %w", err)
	}
	return ExecResult{ExitCode: inspect.ExitCode, Output: string(output)}, nil
}

// CopyIn streams hostDir into the container at destPath and normalizes
// permissions so gradlew is runnable.
func (m *Manager) CopyIn(ctx context.Context, instanceID, hostDir, destPath string) error {
	containerID, ok := m.lookup(instanceID)
	if !ok {
		return fmt.Errorf("no container for instance %s", instanceID)
	}
	if _, err := m.Exec(ctx, instanceID, "mkdir -p "+destPath, time.Minute); err != nil {
		return fmt.Errorf("prepare %s: %w", destPath, err)
	}
	archive, err := tarDirectory(hostDir)
	if err != nil {
		return fmt.Errorf("archive %s: %w", hostDir, err)
	}
	_, err = m.cli.CopyToContainer(ctx, containerID, client.CopyToContainerOptions{
		DestinationPath: destPath,
		Content:         archive,
	})
	if err != nil {
		return fmt.Errorf("copy to container: %w", err)
	}
	fixup := fmt.Sprintf("chmod 755 %s && if [ -f %s/gradlew ]; then chmod +x %s/gradlew; fi", destPath, destPath, destPath)
	if _, err := m.Exec(ctx, instanceID, fixup, time.Minute); err != nil {
		return fmt.Errorf("fix permissions: %w", err)
	}
	return nil
}

// PrepareForTests clears stale build output and stops any leftover Gradle
// daemon in the given workspace.
func (m *Manager) PrepareForTests(ctx context.Context, instanceID, workspace string) error {
	cmd := fmt.Sprintf("cd %s && find . -type d -name build -prune -exec rm -rf {} + ; if [ -f ./gradlew ]; then ./gradlew --stop >/dev/null 2>&1 || true; fi", workspace)
	_, err := m.Exec(ctx, instanceID, cmd, 5*time.Minute)
	return err
}

// Cleanup stops and removes the instance's container. With KeepContainers
// set the container is only stopped.
func (m *Manager) Cleanup(ctx context.Context, instanceID string) error {
	m.mu.Lock()
	containerID, ok := m.containers[instanceID]
	delete(m.containers, instanceID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.remove(ctx, containerID)
}

func (m *Manager) remove(ctx context.Context, containerID string) error {
	stopTimeout := 10
	// Stop failures are tolerated; forced removal below still tears the
	// container down.
	_, _ = m.cli.ContainerStop(ctx, containerID, client.ContainerStopOptions{Timeout: &stopTimeout})
	if m.KeepContainers {
		return nil
	}
	if _, err := m.cli.ContainerRemove(ctx, containerID, client.ContainerRemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container: %w", err)
	}
	return nil
}

// CleanupAll tears down every registered container. Called on normal
// completion and on interrupt.
func (m *Manager) CleanupAll(ctx context.Context) []error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.containers))
	for instance := range m.containers {
		ids = append(ids, instance)
	}
	m.mu.Unlock()
	sort.Strings(ids)

	var errs []error
	for _, instance := range ids {
		if err := m.Cleanup(ctx, instance); err != nil {
			errs = append(errs, fmt.Errorf("instance %s: %w", instance, err))
		}
	}
	return errs
}

// CleanupOrphans removes containers left behind by earlier runs,
// identified by the shared name prefix.
func (m *Manager) CleanupOrphans(ctx context.Context) (int, error) {
	list, err := m.cli.ContainerList(ctx, client.ContainerListOptions{All: true})
	if err != nil {
		return 0, fmt.Errorf("list containers: %w", err)
	}
	removed := 0
	for _, c := range list.Items {
		orphan := false
		for _, name := range c.Names {
			if strings.HasPrefix(strings.TrimPrefix(name, "/"), namePrefix) {
				orphan = true
				break
			}
		}
		if !orphan {
			continue
		}
		if err := m.remove(ctx, c.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Verify Manager implements Execer at compile time.
var _ Execer = (*Manager)(nil)
