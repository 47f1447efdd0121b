package container

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vim89/llm4s-sub012/internal/tool/service/executor"
)

// WorkspaceMount is where the host directory appears inside the container.
const WorkspaceMount = "/workspace"

// ContainerPort is the runner's listen port inside the container.
const ContainerPort = 8080

// Runtime launches and removes containers. Each call is one runtime process;
// a non-zero exit is reported in the Result, not as an error.
type Runtime interface {
	Run(ctx context.Context, name string, hostPort int, hostDir, image string) (*executor.Result, error)
	Stop(ctx context.Context, name string) (*executor.Result, error)
	Remove(ctx context.Context, name string) (*executor.Result, error)
}

type commandRunner interface {
	Run(ctx context.Context, command []string, dir string, env []string) (*executor.Result, error)
}

// DockerRuntime drives the docker CLI (or a compatible binary such as podman).
type DockerRuntime struct {
	binary string
	runner commandRunner
}

// NewDockerRuntime creates a DockerRuntime. An empty binary means "docker".
func NewDockerRuntime(binary string, runner commandRunner) *DockerRuntime {
	if runner == nil {
		panic("runner is required")
	}
	if binary == "" {
		binary = "docker"
	}
	return &DockerRuntime{binary: binary, runner: runner}
}

func (d *DockerRuntime) Run(ctx context.Context, name string, hostPort int, hostDir, image string) (*executor.Result, error) {
	return d.runner.Run(ctx, []string{
		d.binary, "run", "-d",
		"--name", name,
		"-p", strconv.Itoa(hostPort) + ":" + strconv.Itoa(ContainerPort),
		"-v", hostDir + ":" + WorkspaceMount,
		image,
	}, "", nil)
}

func (d *DockerRuntime) Stop(ctx context.Context, name string) (*executor.Result, error) {
	return d.runner.Run(ctx, []string{d.binary, "stop", name}, "", nil)
}

func (d *DockerRuntime) Remove(ctx context.Context, name string) (*executor.Result, error) {
	return d.runner.Run(ctx, []string{d.binary, "rm", name}, "", nil)
}

// EnsureReady checks that the runtime daemon answers, retrying up to
// attempts times at the given interval.
func (d *DockerRuntime) EnsureReady(ctx context.Context, attempts int, interval time.Duration) error {
	check := []string{d.binary, "info", "--format", "{{.ServerVersion}}"}
	if res, err := d.runner.Run(ctx, check, "", nil); err == nil && res.ExitCode == 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range attempts {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if res, err := d.runner.Run(ctx, check, "", nil); err == nil && res.ExitCode == 0 {
				return nil
			}
		}
	}

	res, err := d.runner.Run(ctx, check, "", nil)
	if err != nil {
		return &RuntimeUnavailableError{Binary: d.binary, Cause: err}
	}
	if res.ExitCode != 0 {
		return &RuntimeUnavailableError{Binary: d.binary, Cause: fmt.Errorf("exit code %d: %s", res.ExitCode, res.Stderr)}
	}
	return nil
}
