// Package agent provides the MiNiFi agent container: configuration files,
// readiness and access to its controller CLI.
package agent

import (
	"context"
	"strconv"
	"strings"
	"time"

	"minifitest/internal/container"
	"minifitest/internal/controller"
	"minifitest/internal/logger"
	"minifitest/internal/staging"
	"minifitest/pkg/runtime"
)

const (
	ReadyLog            = "MiNiFi started"
	DefaultReadyTimeout = 15 * time.Second

	FlowConfigName    = "config.yml"
	PropertiesName    = "minifi.properties"
	LogPropertiesName = "minifi-log.properties"
)

type Options struct {
	Name         string
	Image        string
	Network      string
	Env          map[string]string
	Ports        []string
	User         string
	Labels       map[string]string
	Platform     container.Platform
	ReadyTimeout time.Duration
	FlowConfig   string

	// Layout skips detection when set.
	Layout *Layout
}

// Agent is a MiNiFi container. Properties, log properties and the flow
// config are written into the layout's conf directory on deploy and must be
// set before the first Deploy call.
type Agent struct {
	*container.Service

	layout        Layout
	Properties    *Properties
	LogProperties *Properties
	FlowConfig    string

	controller *controller.Controller
	confStaged bool
}

// New detects the image layout, unless opts.Layout is set, and builds an
// agent for it.
func New(ctx context.Context, rt runtime.ContainerRuntime, opts Options) (*Agent, error) {
	if opts.Layout != nil {
		return NewWithLayout(rt, *opts.Layout, opts), nil
	}
	layout, err := DetectLayout(ctx, rt, opts.Image, opts.Platform)
	if err != nil {
		return nil, err
	}
	return NewWithLayout(rt, layout, opts), nil
}

func NewWithLayout(rt runtime.ContainerRuntime, layout Layout, opts Options) *Agent {
	platform := opts.Platform.Resolve()
	if layout.Name == WindowsLayout.Name {
		platform = container.PlatformWindows
	}

	c := container.New(platform, rt, container.Options{
		Name:    opts.Name,
		Image:   opts.Image,
		Network: opts.Network,
		Env:     opts.Env,
		Ports:   opts.Ports,
		User:    opts.User,
		Labels:  opts.Labels,
	})

	timeout := opts.ReadyTimeout
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	svc := container.NewService(c, ReadyLog, timeout)

	return &Agent{
		Service:       svc,
		layout:        layout,
		Properties:    DefaultProperties(layout),
		LogProperties: DefaultLogProperties(),
		FlowConfig:    opts.FlowConfig,
		controller:    controller.New(svc, layout.ControllerPath),
	}
}

func (a *Agent) Layout() Layout {
	return a.layout
}

func (a *Agent) Controller() *controller.Controller {
	return a.controller
}

func (a *Agent) SetProperty(key, value string) {
	a.Properties.Set(key, value)
}

func (a *Agent) SetLogProperty(key, value string) {
	a.LogProperties.Set(key, value)
}

// EnableControllerSocket lets minifi-controller reach the agent on
// localhost:9998.
func (a *Agent) EnableControllerSocket() {
	a.SetProperty("controller.socket.enable", "true")
	a.SetProperty("controller.socket.host", "localhost")
	a.SetProperty("controller.socket.port", "9998")
	a.SetProperty("controller.socket.local.any.interface", "false")
}

func (a *Agent) EnableFIPSMode() {
	a.SetProperty("nifi.openssl.fips.support.enable", "true")
}

// ConfigPath is the guest path of the flow config.
func (a *Agent) ConfigPath() string {
	return strings.TrimSuffix(a.layout.ConfDir, "/") + "/" + FlowConfigName
}

func (a *Agent) stageConf() error {
	if a.confStaged {
		return nil
	}

	files := map[string]string{
		FlowConfigName:    a.FlowConfig,
		PropertiesName:    a.Properties.Render(),
		LogPropertiesName: a.LogProperties.Render(),
	}

	// Windows mounts the whole conf directory; elsewhere the image ships
	// other files there, so only ours are mounted.
	if a.Platform() == container.PlatformWindows {
		dir := staging.NewDirectory(a.layout.ConfDir)
		for name, content := range files {
			dir.AddFile(name, content)
		}
		if err := a.AddDirectory(dir); err != nil {
			return err
		}
	} else {
		for _, name := range []string{FlowConfigName, PropertiesName, LogPropertiesName} {
			if err := a.AddFile(staging.NewFile(a.layout.ConfDir, name, files[name])); err != nil {
				return err
			}
		}
	}

	a.confStaged = true
	return nil
}

func (a *Agent) Deploy(ctx context.Context) error {
	if err := a.stageConf(); err != nil {
		return err
	}
	logger.Info().Str("container", a.Name()).Str("layout", a.layout.Name).Msg("deploying agent")
	logger.Debug().Str("container", a.Name()).Msg("flow config:\n" + a.FlowConfig)
	return a.Service.Deploy(ctx)
}

// MemoryUsage returns the resident set size of the agent process in bytes.
func (a *Agent) MemoryUsage(ctx context.Context) (int64, bool) {
	code, output, err := a.ExecRun(ctx, "awk", `/VmRSS/ { printf "%d\n", $2 }`, "/proc/1/status")
	if err != nil || code != 0 {
		return 0, false
	}
	kb, err := strconv.ParseInt(strings.TrimSpace(output), 10, 64)
	if err != nil {
		logger.Debug().Str("output", output).Msg("unexpected VmRSS output")
		return 0, false
	}
	bytes := kb * 1024
	logger.Info().Str("container", a.Name()).Int64("bytes", bytes).Msg("agent memory usage")
	return bytes, true
}
