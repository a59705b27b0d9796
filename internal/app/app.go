// Package app orchestrates harness runs: up deploys a scenario and runs its
// checks, down removes whatever a kept run left behind.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"minifitest/internal/config"
	"minifitest/internal/container"
	harnesserrors "minifitest/internal/errors"
	"minifitest/internal/logger"
	"minifitest/internal/scenario"
	"minifitest/internal/ui"
	"minifitest/pkg/runtime"
)

// Options configures an up run.
type Options struct {
	HarnessPath string
	Pull        bool
	Keep        bool
	RetainState bool
	StateDir    string

	// Engine names the container engine used when Runtime is nil.
	Engine  string
	Runtime runtime.ContainerRuntime
	Console *ui.Console
}

// DownOptions configures a down run.
type DownOptions struct {
	StateDir string
	Engine   string
	Runtime  runtime.ContainerRuntime
	Console  *ui.Console
}

func resolveRuntime(ctx context.Context, rt runtime.ContainerRuntime, engine string) (runtime.ContainerRuntime, error) {
	if rt != nil {
		return rt, nil
	}
	return NewRuntimeFactory().GetRuntime(ctx, engine)
}

func resolveConsole(c *ui.Console) *ui.Console {
	if c != nil {
		return c
	}
	return ui.NewConsole()
}

// Up loads the harness, deploys its scenario and runs its checks. The
// returned run carries the check results even when Up fails.
func Up(ctx context.Context, opts Options) (*Run, error) {
	console := resolveConsole(opts.Console)

	previous, err := loadState(opts.StateDir)
	if err != nil {
		return nil, err
	}
	if previous.hasResources() {
		return nil, harnesserrors.NewStateError(
			"A previous run left containers behind",
			fmt.Sprintf("run %s on network %s has not been torn down", previous.RunID, previous.Network),
			"Run 'minifitest down' first",
			fmt.Errorf("state file %s holds live resources", statePath(opts.StateDir)),
		)
	}

	cfg, err := config.Load(opts.HarnessPath)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("harness", cfg.Metadata.Name).Str("path", cfg.Path).Msg("harness loaded")

	platform, err := container.ParsePlatform(cfg.Spec.Platform)
	if err != nil {
		return nil, harnesserrors.NewConfigError("Invalid platform", err.Error(), "Use auto, posix or windows", err)
	}

	rt, err := resolveRuntime(ctx, opts.Runtime, opts.Engine)
	if err != nil {
		return nil, err
	}

	s := scenario.New(rt, platform)
	run := &Run{
		Config:   cfg,
		Runtime:  rt,
		Scenario: s,
		State:    newState(cfg.Path, uuid.New().String(), s.ID, s.Network),
		Console:  console,
		Pull:     opts.Pull,
	}
	console.PrintInfo(fmt.Sprintf("Scenario %s (%s)", s.ID, cfg.Metadata.Name))

	stages := []Stage{
		&PrepareStage{},
		&DeployStage{stateDir: opts.StateDir},
		&CheckStage{},
	}
	runErr := runStages(ctx, run, stages, opts.StateDir)

	if runErr == nil && run.Failed() > 0 {
		for _, c := range s.Containers() {
			c.LogAppOutput(ctx)
		}
		runErr = harnesserrors.NewHarnessError(
			harnesserrors.ErrAssertionTimeout,
			"Checks failed",
			fmt.Sprintf("%d of %d checks failed", run.Failed(), len(run.Results)),
			"Re-run with --keep to inspect the containers",
			fmt.Errorf("%d checks failed", run.Failed()),
		)
	}

	finish(context.WithoutCancel(ctx), run, opts, runErr == nil)

	if runErr != nil {
		return run, runErr
	}
	console.PrintSuccess(fmt.Sprintf("All %d checks passed", len(run.Results)))
	return run, nil
}

func runStages(ctx context.Context, run *Run, stages []Stage, stateDir string) error {
	for _, stage := range stages {
		logger.Info().Str("stage", string(stage.Name())).Msg("stage started")
		if err := stage.Execute(ctx, run); err != nil {
			return fmt.Errorf("%s stage failed: %w", stage.Name(), err)
		}

		run.State.LastSuccessfulStage = stage.Name()
		// Nothing is on the engine until deploy has recorded containers.
		if len(run.State.Containers) > 0 {
			if err := saveState(stateDir, run.State); err != nil {
				return err
			}
		}
	}
	return nil
}

// finish keeps or removes the scenario and settles the state file.
func finish(ctx context.Context, run *Run, opts Options, succeeded bool) {
	if opts.Keep && len(run.State.Containers) > 0 {
		run.State.Kept = true
		if succeeded {
			run.State.LastSuccessfulStage = StageCompleted
		}
		if err := saveState(opts.StateDir, run.State); err != nil {
			logger.Warn().Err(err).Msg("failed to save state for kept run")
		}
		run.Console.PrintWarning("Containers kept; run 'minifitest down' to remove them")
		return
	}

	run.Scenario.CleanUp(ctx)

	if succeeded && opts.RetainState {
		run.State.LastSuccessfulStage = StageCompleted
		if err := saveState(opts.StateDir, run.State); err != nil {
			logger.Warn().Err(err).Msg("failed to save final state")
		} else {
			logger.Info().Str("file", statePath(opts.StateDir)).Msg("state file retained for auditing")
		}
		return
	}
	if err := removeStateFile(opts.StateDir); err != nil {
		logger.Warn().Err(err).Msg("failed to clean up state file")
	}
}

// Down removes the containers and network recorded by a previous up.
func Down(ctx context.Context, opts DownOptions) error {
	console := resolveConsole(opts.Console)

	state, err := loadState(opts.StateDir)
	if err != nil {
		return err
	}
	if state == nil {
		console.PrintInfo("Nothing to tear down")
		return nil
	}

	rt, err := resolveRuntime(ctx, opts.Runtime, opts.Engine)
	if err != nil {
		return err
	}

	var errs []error
	for i := len(state.Containers) - 1; i >= 0; i-- {
		name := state.Containers[i]
		st, err := rt.FindContainer(ctx, name)
		if errors.Is(err, harnesserrors.ErrEngineNotFound) {
			logger.Debug().Str("container", name).Msg("container already gone")
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := rt.RemoveContainer(ctx, st.ID, true); err != nil && !errors.Is(err, harnesserrors.ErrEngineNotFound) {
			errs = append(errs, err)
			continue
		}
		console.PrintInfo(fmt.Sprintf("Removed %s", name))
	}

	if state.Network != "" {
		if err := rt.RemoveNetwork(ctx, state.Network); err != nil && !errors.Is(err, harnesserrors.ErrEngineNotFound) {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to tear down run %s: %w", state.RunID, errors.Join(errs...))
	}

	if err := removeStateFile(opts.StateDir); err != nil {
		return err
	}
	console.PrintSuccess(fmt.Sprintf("Run %s torn down", state.RunID))
	return nil
}
