package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	harnesserrors "minifitest/internal/errors"
	"minifitest/internal/logger"
	"minifitest/pkg/runtime"
)

var _ runtime.ContainerRuntime = (*DockerRuntime)(nil)

// DockerRuntime implements the ContainerRuntime interface using Docker client.
type DockerRuntime struct {
	client *client.Client
}

// NewDockerRuntime creates a new DockerRuntime instance using client.FromEnv.
func NewDockerRuntime(ctx context.Context) (*DockerRuntime, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, harnesserrors.NewEngineError(
			"Failed to create Docker client",
			err.Error(),
			"Check DOCKER_HOST and related environment variables",
			fmt.Errorf("failed to create Docker client: %w", err),
		)
	}

	if _, err := dockerClient.Ping(ctx); err != nil {
		return nil, harnesserrors.NewEngineError(
			"Failed to connect to Docker daemon",
			err.Error(),
			"Ensure Docker is running and accessible to the current user",
			fmt.Errorf("failed to connect to Docker daemon: %w", err),
		)
	}

	return &DockerRuntime{client: dockerClient}, nil
}

// engineError classifies a Docker error into the harness taxonomy.
func engineError(op, target string, err error) error {
	if cerrdefs.IsNotFound(err) {
		return harnesserrors.NewEngineNotFoundError(target, fmt.Errorf("%s %s: %w", op, target, err))
	}
	return harnesserrors.NewEngineError(
		fmt.Sprintf("Failed to %s '%s'", op, target),
		err.Error(),
		"",
		fmt.Errorf("failed to %s %s: %w", op, target, err),
	)
}

// PullImage pulls a Docker image.
func (d *DockerRuntime) PullImage(ctx context.Context, imageName string) error {
	logger.Info().Str("image", imageName).Msg("pulling image")

	reader, err := d.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return engineError("pull image", imageName, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to stream image pull output: %w", err)
	}

	logger.Debug().Str("image", imageName).Msg("image pulled")
	return nil
}

// ImageHistory returns the CreatedBy line of every layer, newest first.
func (d *DockerRuntime) ImageHistory(ctx context.Context, imageName string) ([]string, error) {
	items, err := d.client.ImageHistory(ctx, imageName)
	if err != nil {
		return nil, engineError("read history of image", imageName, err)
	}

	history := make([]string, 0, len(items))
	for _, item := range items {
		history = append(history, item.CreatedBy)
	}
	return history, nil
}

func buildConfigs(opts runtime.CreateOptions) (*container.Config, *container.HostConfig, *network.NetworkingConfig, error) {
	exposed, bindings, err := nat.ParsePortSpecs(opts.Ports)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid port spec %v: %w", opts.Ports, err)
	}

	envKeys := make([]string, 0, len(opts.Env))
	for key := range opts.Env {
		envKeys = append(envKeys, key)
	}
	sort.Strings(envKeys)
	envVars := make([]string, 0, len(envKeys))
	for _, key := range envKeys {
		envVars = append(envVars, fmt.Sprintf("%s=%s", key, opts.Env[key]))
	}

	mounts := make([]mount.Mount, 0, len(opts.Mounts))
	for _, m := range opts.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	containerConfig := &container.Config{
		Image:        opts.Image,
		Cmd:          opts.Command,
		Entrypoint:   opts.Entrypoint,
		Env:          envVars,
		User:         opts.User,
		Labels:       opts.Labels,
		ExposedPorts: exposed,
	}

	hostConfig := &container.HostConfig{
		Mounts:       mounts,
		PortBindings: bindings,
	}

	var networkingConfig *network.NetworkingConfig
	if opts.Network != "" {
		hostConfig.NetworkMode = container.NetworkMode(opts.Network)
		networkingConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				opts.Network: {Aliases: []string{opts.Name}},
			},
		}
	}

	return containerConfig, hostConfig, networkingConfig, nil
}

// CreateContainer creates (but does not start) a container and returns its id.
func (d *DockerRuntime) CreateContainer(ctx context.Context, opts runtime.CreateOptions) (string, error) {
	containerConfig, hostConfig, networkingConfig, err := buildConfigs(opts)
	if err != nil {
		return "", harnesserrors.NewEngineError(
			fmt.Sprintf("Failed to create container '%s'", opts.Name),
			err.Error(),
			"Use docker port syntax such as 8080:80/tcp",
			err,
		)
	}

	logger.Debug().
		Str("name", opts.Name).
		Str("image", opts.Image).
		Int("mounts", len(opts.Mounts)).
		Str("network", opts.Network).
		Msg("creating container")

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, networkingConfig, nil, opts.Name)
	if err != nil {
		return "", engineError("create container", opts.Name, err)
	}
	for _, warning := range resp.Warnings {
		logger.Warn().Str("name", opts.Name).Msg(warning)
	}
	return resp.ID, nil
}

func (d *DockerRuntime) StartContainer(ctx context.Context, id string) error {
	if err := d.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return engineError("start container", id, err)
	}
	return nil
}

// ExecContainer runs cmd inside the container and collects its combined output.
func (d *DockerRuntime) ExecContainer(ctx context.Context, id string, cmd []string) (runtime.ExecResult, error) {
	execResp, err := d.client.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return runtime.ExecResult{}, engineError("exec in container", id, err)
	}

	hijacked, err := d.client.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return runtime.ExecResult{}, engineError("attach to exec in container", id, err)
	}
	defer hijacked.Close()

	var output bytes.Buffer
	if _, err := stdcopy.StdCopy(&output, &output, hijacked.Reader); err != nil {
		return runtime.ExecResult{}, fmt.Errorf("failed to read exec output: %w", err)
	}

	inspect, err := d.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return runtime.ExecResult{}, engineError("inspect exec in container", id, err)
	}

	return runtime.ExecResult{ExitCode: inspect.ExitCode, Output: output.Bytes()}, nil
}

// ContainerLogs returns stdout and stderr logs of the container so far.
func (d *DockerRuntime) ContainerLogs(ctx context.Context, id string) ([]byte, error) {
	reader, err := d.client.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, engineError("read logs of container", id, err)
	}
	defer reader.Close()

	var output bytes.Buffer
	if _, err := stdcopy.StdCopy(&output, &output, reader); err != nil {
		return nil, fmt.Errorf("failed to read container logs: %w", err)
	}
	return output.Bytes(), nil
}

func (d *DockerRuntime) inspect(ctx context.Context, ref string) (runtime.ContainerState, error) {
	info, err := d.client.ContainerInspect(ctx, ref)
	if err != nil {
		return runtime.ContainerState{}, engineError("inspect container", ref, err)
	}

	state := runtime.ContainerState{ID: info.ID, Name: info.Name}
	if info.State != nil {
		state.Status = string(info.State.Status)
		state.Running = info.State.Running
		state.ExitCode = info.State.ExitCode
	}
	return state, nil
}

func (d *DockerRuntime) InspectContainer(ctx context.Context, id string) (runtime.ContainerState, error) {
	return d.inspect(ctx, id)
}

// FindContainer looks a container up by name.
func (d *DockerRuntime) FindContainer(ctx context.Context, name string) (runtime.ContainerState, error) {
	return d.inspect(ctx, name)
}

func (d *DockerRuntime) RemoveContainer(ctx context.Context, id string, force bool) error {
	if err := d.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: force}); err != nil {
		return engineError("remove container", id, err)
	}
	return nil
}

// CopyArchive extracts an uncompressed tar stream into destDir of the container.
func (d *DockerRuntime) CopyArchive(ctx context.Context, id, destDir string, archive io.Reader) error {
	if err := d.client.CopyToContainer(ctx, id, destDir, archive, container.CopyToContainerOptions{}); err != nil {
		return engineError("copy archive into container", id, err)
	}
	return nil
}

func (d *DockerRuntime) CreateNetwork(ctx context.Context, name string) (string, error) {
	resp, err := d.client.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"})
	if err != nil {
		return "", engineError("create network", name, err)
	}
	logger.Debug().Str("network", name).Str("id", resp.ID).Msg("network created")
	return resp.ID, nil
}

func (d *DockerRuntime) RemoveNetwork(ctx context.Context, name string) error {
	if err := d.client.NetworkRemove(ctx, name); err != nil {
		return engineError("remove network", name, err)
	}
	return nil
}
