package app

import (
	"context"
	"fmt"

	"minifitest/internal/logger"
)

// PrepareStage pulls images when asked and declares the scenario's
// containers from the harness.
type PrepareStage struct{}

// Name returns the name of the stage
func (s *PrepareStage) Name() ExecutionStage {
	return StagePrepare
}

// Execute performs the prepare stage logic
func (s *PrepareStage) Execute(ctx context.Context, run *Run) error {
	if run.Pull {
		for _, img := range images(run.Config.Harness) {
			run.Console.PrintInfo(fmt.Sprintf("Pulling %s", img))
			if err := run.Runtime.PullImage(ctx, img); err != nil {
				return err
			}
		}
	}

	if err := buildScenario(ctx, run.Config, run.Scenario); err != nil {
		return fmt.Errorf("failed to build scenario: %w", err)
	}

	logger.Info().Int("containers", len(run.Scenario.Containers())).Msg("scenario prepared")
	return nil
}
