package app

import (
	"context"
	"fmt"
)

// DeployStage starts every container of the scenario and records their
// names so that a later down can find them.
type DeployStage struct {
	stateDir string
}

// Name returns the name of the stage
func (s *DeployStage) Name() ExecutionStage {
	return StageDeploy
}

// Execute performs the deploy stage logic
func (s *DeployStage) Execute(ctx context.Context, run *Run) error {
	for _, c := range run.Scenario.Containers() {
		run.State.Containers = append(run.State.Containers, c.Name())
	}
	// Saved before deploying so an interrupted run can still be torn down.
	if err := saveState(s.stateDir, run.State); err != nil {
		return err
	}

	if err := run.Scenario.DeployAll(ctx); err != nil {
		return err
	}

	run.Console.PrintSuccess(fmt.Sprintf("Deployed %d containers on network %s", len(run.State.Containers), run.Scenario.Network))
	return nil
}
