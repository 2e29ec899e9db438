package actions

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/e-m-dev/remedy/internal/models"
)

// DockerExecutor manages containers for docker remediation steps.
//
// Config: operation (restart|stop|start|remove|run), container (name, required
// except for run), image + port (for run), stop_timeout_seconds.
type DockerExecutor struct {
	cli *client.Client
}

// NewDockerExecutor creates a Docker client from the environment.
func NewDockerExecutor() (*DockerExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	return &DockerExecutor{cli: cli}, nil
}

func (e *DockerExecutor) Kind() models.ActionKind {
	return models.ActionDocker
}

func (e *DockerExecutor) Execute(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
	operation := stringConfig(step, "operation", "")
	name := stringConfig(step, "container", "")

	switch operation {
	case "restart":
		timeout := intConfig(step, "stop_timeout_seconds", 10)
		if err := e.cli.ContainerRestart(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
			return "", fmt.Errorf("failed to restart container %s: %w", name, err)
		}
		return fmt.Sprintf("container %s restarted", name), nil

	case "stop":
		timeout := intConfig(step, "stop_timeout_seconds", 10)
		if err := e.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
			return "", fmt.Errorf("failed to stop container %s: %w", name, err)
		}
		return fmt.Sprintf("container %s stopped", name), nil

	case "start":
		if err := e.cli.ContainerStart(ctx, name, types.ContainerStartOptions{}); err != nil {
			return "", fmt.Errorf("failed to start container %s: %w", name, err)
		}
		return fmt.Sprintf("container %s started", name), nil

	case "remove":
		if err := e.cli.ContainerRemove(ctx, name, types.ContainerRemoveOptions{Force: true}); err != nil {
			return "", fmt.Errorf("failed to remove container %s: %w", name, err)
		}
		return fmt.Sprintf("container %s removed", name), nil

	case "run":
		return e.runContainer(ctx, step)
	}

	return "", fmt.Errorf("docker step %q: unknown operation %q", step.ID, operation)
}

// runContainer pulls an image and starts a new container from it, publishing
// one port when configured.
func (e *DockerExecutor) runContainer(ctx context.Context, step models.ActionStep) (string, error) {
	image := stringConfig(step, "image", "")
	if image == "" {
		return "", fmt.Errorf("docker step %q: image is required for run", step.ID)
	}
	name := stringConfig(step, "container", "")

	out, err := e.cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	// Consume the output to ensure pull completes
	io.Copy(io.Discard, out)
	out.Close()

	config := &container.Config{Image: image}
	hostConfig := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
	}

	if port := stringConfig(step, "port", ""); port != "" {
		containerPort, err := nat.NewPort("tcp", port)
		if err != nil {
			return "", fmt.Errorf("invalid port %s: %w", port, err)
		}
		config.ExposedPorts = nat.PortSet{containerPort: struct{}{}}
		hostConfig.PortBindings = nat.PortMap{
			containerPort: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: port}},
		}
	}

	resp, err := e.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := e.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	return fmt.Sprintf("container %s running (id %s)", name, resp.ID[:12]), nil
}
