// Package scenario owns the containers and network of one test scenario.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"minifitest/internal/agent"
	"minifitest/internal/container"
	harnesserrors "minifitest/internal/errors"
	"minifitest/internal/logger"
	"minifitest/pkg/runtime"
)

// DefaultAgentName is the base name of the primary agent container.
const DefaultAgentName = "minifi-primary"

// Label marks every container started for a scenario.
const Label = "minifitest.scenario"

// Context tracks the containers of one scenario in declaration order.
// Container names get the scenario ID appended so parallel scenarios never
// collide on the engine.
type Context struct {
	ID       string
	Network  string
	Platform container.Platform

	rt         runtime.ContainerRuntime
	factory    *Factory
	containers []container.Container
	byName     map[string]container.Container
	agents     map[string]*agent.Agent

	networkCreated bool
}

// NewID returns a short random scenario identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func New(rt runtime.ContainerRuntime, platform container.Platform) *Context {
	return NewWithID(rt, platform, NewID())
}

func NewWithID(rt runtime.ContainerRuntime, platform container.Platform, id string) *Context {
	logger.SetScenario(id)
	return &Context{
		ID:       id,
		Network:  "minifitest-" + id,
		Platform: platform.Resolve(),
		rt:       rt,
		factory:  NewFactory(rt),
		byName:   make(map[string]container.Container),
		agents:   make(map[string]*agent.Agent),
	}
}

// ContainerName scopes base to this scenario.
func (s *Context) ContainerName(base string) string {
	return base + "-" + s.ID
}

func (s *Context) labels() map[string]string {
	return map[string]string{Label: s.ID}
}

// EnsureNetwork creates the scenario bridge network once.
func (s *Context) EnsureNetwork(ctx context.Context) error {
	if s.networkCreated {
		return nil
	}
	if _, err := s.rt.CreateNetwork(ctx, s.Network); err != nil {
		return err
	}
	s.networkCreated = true
	logger.Debug().Str("network", s.Network).Msg("created scenario network")
	return nil
}

func (s *Context) register(base string, c container.Container) error {
	if _, exists := s.byName[base]; exists {
		return harnesserrors.NewHarnessError(
			harnesserrors.ErrDuplicateInstance,
			fmt.Sprintf("Container '%s' is already defined in scenario %s", base, s.ID),
			"",
			"Give every container in the harness file a unique name",
			nil,
		)
	}
	s.byName[base] = c
	s.containers = append(s.containers, c)
	return nil
}

// AddContainer creates a plain container named base. A non-empty readyLog
// makes it a service that waits for that log line on deploy.
func (s *Context) AddContainer(base string, opts container.Options, readyLog string, readyTimeout time.Duration) (container.Container, error) {
	opts.Name = s.ContainerName(base)
	opts.Network = s.Network
	opts.Labels = mergeLabels(opts.Labels, s.labels())

	c, err := s.factory.Container(s.Platform, opts, readyLog, readyTimeout)
	if err != nil {
		return nil, err
	}
	if err := s.register(base, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Agent returns the agent named base, creating it on first use.
func (s *Context) Agent(ctx context.Context, base string, opts agent.Options) (*agent.Agent, error) {
	if a, ok := s.agents[base]; ok {
		return a, nil
	}

	opts.Name = s.ContainerName(base)
	opts.Network = s.Network
	opts.Platform = s.Platform
	opts.Labels = mergeLabels(opts.Labels, s.labels())

	a, err := s.factory.Agent(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := s.register(base, a); err != nil {
		return nil, err
	}
	s.agents[base] = a
	return a, nil
}

// DefaultAgent returns the primary agent, creating it on first use.
func (s *Context) DefaultAgent(ctx context.Context, opts agent.Options) (*agent.Agent, error) {
	return s.Agent(ctx, DefaultAgentName, opts)
}

// Get looks a container up by its unscoped name.
func (s *Context) Get(base string) (container.Container, bool) {
	c, ok := s.byName[base]
	return c, ok
}

// LookupAgent returns an agent created earlier.
func (s *Context) LookupAgent(base string) (*agent.Agent, bool) {
	a, ok := s.agents[base]
	return a, ok
}

// Containers returns every container in declaration order.
func (s *Context) Containers() []container.Container {
	return append([]container.Container(nil), s.containers...)
}

// DeployAll creates the network and deploys every container in declaration
// order, stopping at the first failure.
func (s *Context) DeployAll(ctx context.Context) error {
	if err := s.EnsureNetwork(ctx); err != nil {
		return err
	}
	for _, c := range s.containers {
		if c.State() != container.Undeployed {
			continue
		}
		if err := c.Deploy(ctx); err != nil {
			return fmt.Errorf("failed to deploy %s: %w", c.Name(), err)
		}
		logger.Info().Str("container", c.Name()).Msg("container deployed")
	}
	return nil
}

// CleanUp removes every container, newest first, then the network.
func (s *Context) CleanUp(ctx context.Context) {
	for i := len(s.containers) - 1; i >= 0; i-- {
		s.containers[i].CleanUp(ctx)
	}
	if !s.networkCreated {
		return
	}
	if err := s.rt.RemoveNetwork(ctx, s.Network); err != nil && !errors.Is(err, harnesserrors.ErrEngineNotFound) {
		logger.Warn().Err(err).Str("network", s.Network).Msg("failed to remove scenario network")
	}
	s.networkCreated = false
}

func mergeLabels(base, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
