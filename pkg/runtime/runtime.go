// Package runtime defines the container engine primitives the harness consumes.
package runtime

import (
	"context"
	"io"
)

// Mount binds a host path into a container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// CreateOptions defines the parameters for creating a container.
type CreateOptions struct {
	Name       string
	Image      string
	Command    []string
	Entrypoint []string
	Env        map[string]string
	// Ports uses docker port-spec syntax, e.g. "8080:80/tcp" or "9998".
	Ports   []string
	Mounts  []Mount
	Network string
	User    string
	Labels  map[string]string
}

// ExecResult is the outcome of a command run inside a container.
// Output holds stdout and stderr interleaved as raw bytes.
type ExecResult struct {
	ExitCode int
	Output   []byte
}

// ContainerState is the engine-reported status of a container.
type ContainerState struct {
	ID       string
	Name     string
	Status   string
	Running  bool
	ExitCode int
}

// Exited reports whether the engine considers the container stopped.
func (s ContainerState) Exited() bool {
	return s.Status == "exited" || s.Status == "dead"
}

// ContainerRuntime defines the contract for container operations.
//
// Lookups by id or name return an error matching errors.ErrEngineNotFound
// when the container does not exist.
type ContainerRuntime interface {
	PullImage(ctx context.Context, image string) error
	ImageHistory(ctx context.Context, image string) ([]string, error)

	CreateContainer(ctx context.Context, opts CreateOptions) (string, error)
	StartContainer(ctx context.Context, id string) error
	ExecContainer(ctx context.Context, id string, cmd []string) (ExecResult, error)
	ContainerLogs(ctx context.Context, id string) ([]byte, error)
	InspectContainer(ctx context.Context, id string) (ContainerState, error)
	RemoveContainer(ctx context.Context, id string, force bool) error
	CopyArchive(ctx context.Context, id, destDir string, archive io.Reader) error
	FindContainer(ctx context.Context, name string) (ContainerState, error)

	CreateNetwork(ctx context.Context, name string) (string, error)
	RemoveNetwork(ctx context.Context, name string) error
}
