package app

import (
	"context"

	"minifitest/internal/logger"
)

// CheckStage runs the harness checks in order. Failed checks are recorded
// on the run; the stage itself only fails on cancellation.
type CheckStage struct{}

// Name returns the name of the stage
func (s *CheckStage) Name() ExecutionStage {
	return StageCheck
}

// Execute performs the check stage logic
func (s *CheckStage) Execute(ctx context.Context, run *Run) error {
	for _, check := range run.Config.Spec.Checks {
		if err := ctx.Err(); err != nil {
			return err
		}

		passed, detail := runCheck(ctx, run.Scenario, check)
		if passed {
			detail = ""
		}
		run.Results = append(run.Results, CheckResult{Name: check.DisplayName(), Passed: passed, Detail: detail})
		run.Console.PrintCheck(check.DisplayName(), passed, detail)
		logger.Info().Str("check", check.DisplayName()).Bool("passed", passed).Msg("check finished")
	}
	return nil
}
