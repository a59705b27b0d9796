package scenario

import (
	"context"
	"fmt"
	"time"

	"minifitest/internal/agent"
	"minifitest/internal/container"
	"minifitest/pkg/runtime"
)

// Factory builds containers for a platform, decoupling the scenario from the
// concrete container variants.
type Factory struct {
	rt runtime.ContainerRuntime
}

func NewFactory(rt runtime.ContainerRuntime) *Factory {
	return &Factory{rt: rt}
}

// Container returns the platform variant for opts, wrapped in a Service when
// readyLog is set.
func (f *Factory) Container(platform container.Platform, opts container.Options, readyLog string, readyTimeout time.Duration) (container.Container, error) {
	if opts.Image == "" {
		return nil, fmt.Errorf("container %s has no image", opts.Name)
	}

	c := container.New(platform, f.rt, opts)
	if readyLog == "" {
		return c, nil
	}
	return container.NewService(c, readyLog, readyTimeout), nil
}

// Agent returns an agent container with the layout detected from its image.
func (f *Factory) Agent(ctx context.Context, opts agent.Options) (*agent.Agent, error) {
	if opts.Image == "" {
		return nil, fmt.Errorf("agent %s has no image", opts.Name)
	}

	a, err := agent.New(ctx, f.rt, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent %s: %w", opts.Name, err)
	}
	return a, nil
}
