package container

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/shlex"

	harnesserrors "minifitest/internal/errors"
	"minifitest/internal/logger"
	"minifitest/internal/staging"
	"minifitest/pkg/runtime"
)

// lifecycle holds the engine plumbing shared by both platform variants.
type lifecycle struct {
	rt   runtime.ContainerRuntime
	opts Options

	files     []staging.File
	dirs      []*staging.Directory
	hostFiles []staging.HostFile

	id     string
	state  State
	stager *staging.Stager
}

func newLifecycle(rt runtime.ContainerRuntime, opts Options) lifecycle {
	return lifecycle{rt: rt, opts: opts, state: Undeployed}
}

func (l *lifecycle) Name() string  { return l.opts.Name }
func (l *lifecycle) Image() string { return l.opts.Image }
func (l *lifecycle) State() State  { return l.state }
func (l *lifecycle) ID() string    { return l.id }

func (l *lifecycle) requireUndeployed(what string) error {
	if l.state == Undeployed {
		return nil
	}
	return harnesserrors.NewHarnessError(
		harnesserrors.ErrAlreadyDeployed,
		fmt.Sprintf("Cannot %s on container '%s' in state %s", what, l.opts.Name, l.state),
		"",
		"Declare files and directories before deploying the container",
		nil,
	)
}

func (l *lifecycle) AddFile(f staging.File) error {
	if err := l.requireUndeployed("add file " + f.FullPath()); err != nil {
		return err
	}
	l.files = append(l.files, f)
	return nil
}

func (l *lifecycle) AddDirectory(d *staging.Directory) error {
	if err := l.requireUndeployed("add directory " + d.Path); err != nil {
		return err
	}
	l.dirs = append(l.dirs, d)
	return nil
}

func (l *lifecycle) AddHostFile(h staging.HostFile) error {
	if err := l.requireUndeployed("add host file " + h.ContainerPath); err != nil {
		return err
	}
	l.hostFiles = append(l.hostFiles, h)
	return nil
}

// evict removes any container left over with the same name.
func (l *lifecycle) evict(ctx context.Context) error {
	existing, err := l.rt.FindContainer(ctx, l.opts.Name)
	if errors.Is(err, harnesserrors.ErrEngineNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	logger.Warn().Str("container", l.opts.Name).Str("id", existing.ID).Msg("found existing container, removing it first")
	if err := l.rt.RemoveContainer(ctx, existing.ID, true); err != nil && !errors.Is(err, harnesserrors.ErrEngineNotFound) {
		return err
	}
	return nil
}

// createAndStart evicts any stale container, then creates and starts a new one.
func (l *lifecycle) createAndStart(ctx context.Context, mounts []runtime.Mount) error {
	if err := l.evict(ctx); err != nil {
		return err
	}

	logger.Info().Str("container", l.opts.Name).Str("image", l.opts.Image).Msg("creating and starting container")
	id, err := l.rt.CreateContainer(ctx, runtime.CreateOptions{
		Name:       l.opts.Name,
		Image:      l.opts.Image,
		Command:    l.opts.Command,
		Entrypoint: l.opts.Entrypoint,
		Env:        l.opts.Env,
		Ports:      l.opts.Ports,
		Mounts:     mounts,
		Network:    l.opts.Network,
		User:       l.opts.User,
		Labels:     l.opts.Labels,
	})
	if err != nil {
		return err
	}
	l.id = id

	return l.rt.StartContainer(ctx, id)
}

// rollback undoes a partial deploy and leaves the container Undeployed.
func (l *lifecycle) rollback(ctx context.Context, cause error) {
	logger.Error().Err(cause).Str("container", l.opts.Name).Msg("deploy failed, rolling back")
	l.release(ctx)
	l.state = Undeployed
}

// release removes the runtime container and the staging directory.
func (l *lifecycle) release(ctx context.Context) {
	if err := l.stager.Cleanup(); err != nil {
		logger.Warn().Err(err).Str("container", l.opts.Name).Msg("failed to remove staging directory")
	}
	l.stager = nil

	if l.id == "" {
		return
	}
	if err := l.rt.RemoveContainer(ctx, l.id, true); err != nil && !errors.Is(err, harnesserrors.ErrEngineNotFound) {
		logger.Error().Err(err).Str("container", l.opts.Name).Msg("failed to remove container")
	}
	l.id = ""
}

func (l *lifecycle) CleanUp(ctx context.Context) {
	l.release(ctx)
	if l.state == Deployed || l.state == Exited {
		l.state = Removed
	}
}

func (l *lifecycle) Exited(ctx context.Context) bool {
	if l.id == "" {
		return false
	}

	state, err := l.rt.InspectContainer(ctx, l.id)
	if errors.Is(err, harnesserrors.ErrEngineNotFound) {
		l.id = ""
		return false
	}
	if err != nil {
		logger.Debug().Err(err).Str("container", l.opts.Name).Msg("status probe failed")
		return false
	}
	if state.Exited() {
		l.state = Exited
		return true
	}
	return false
}

func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// exec runs cmd without checking the lifecycle state.
func (l *lifecycle) exec(ctx context.Context, cmd []string) (int, string, error) {
	result, err := l.rt.ExecContainer(ctx, l.id, cmd)
	if err != nil {
		logger.Error().Err(err).Str("container", l.opts.Name).Strs("cmd", cmd).Msg("exec failed")
		return -1, "", err
	}
	output := decode(result.Output)
	logger.Debug().Str("container", l.opts.Name).Strs("cmd", cmd).Int("exit_code", result.ExitCode).Msg("exec finished")
	return result.ExitCode, output, nil
}

func (l *lifecycle) ExecRun(ctx context.Context, cmd ...string) (int, string, error) {
	if l.id == "" || (l.state != Deployed && l.state != Exited) {
		return -1, NotRunningMessage, harnesserrors.ErrNotDeployed
	}
	return l.exec(ctx, cmd)
}

// ExecLine splits line with shell word rules and runs it.
func (l *lifecycle) ExecLine(ctx context.Context, line string) (int, string, error) {
	argv, err := shlex.Split(line)
	if err != nil {
		return -1, "", fmt.Errorf("failed to split command %q: %w", line, err)
	}
	if len(argv) == 0 {
		return -1, "", fmt.Errorf("empty command")
	}
	return l.ExecRun(ctx, argv...)
}

func (l *lifecycle) GetLogs(ctx context.Context) string {
	if l.id == "" {
		return ""
	}
	logs, err := l.rt.ContainerLogs(ctx, l.id)
	if err != nil {
		logger.Debug().Err(err).Str("container", l.opts.Name).Msg("failed to read logs")
		return ""
	}
	return decode(logs)
}

func (l *lifecycle) LogAppOutput(ctx context.Context) {
	logs := l.GetLogs(ctx)
	for _, line := range strings.Split(strings.TrimRight(logs, "\n"), "\n") {
		if line == "" {
			continue
		}
		logger.Info().Str("container", l.opts.Name).Msg(line)
	}
}
