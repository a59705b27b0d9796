package app

import (
	"context"
	"fmt"

	"minifitest/internal/runtime"
	pkgruntime "minifitest/pkg/runtime"
)

// RuntimeFactory creates container runtimes from their engine name. It
// decouples the orchestrator from concrete engine implementations.
type RuntimeFactory struct{}

// NewRuntimeFactory creates a new instance of RuntimeFactory.
func NewRuntimeFactory() *RuntimeFactory {
	return &RuntimeFactory{}
}

// GetRuntime returns the runtime for engine. An empty name selects docker.
func (f *RuntimeFactory) GetRuntime(ctx context.Context, engine string) (pkgruntime.ContainerRuntime, error) {
	switch engine {
	case "", "docker":
		rt, err := runtime.NewDockerRuntime(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Docker runtime: %w", err)
		}
		return rt, nil
	default:
		return nil, fmt.Errorf("unsupported container engine: %s", engine)
	}
}
