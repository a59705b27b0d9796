package app

import (
	"context"

	"minifitest/internal/config"
	"minifitest/internal/scenario"
	"minifitest/internal/ui"
	"minifitest/pkg/runtime"
)

// Stage represents a single stage in the up workflow.
// Each stage implements this interface to provide a name and execution logic.
type Stage interface {
	Name() ExecutionStage
	Execute(ctx context.Context, run *Run) error
}

// Run carries everything the stages of one up invocation share.
type Run struct {
	Config   *config.Config
	Runtime  runtime.ContainerRuntime
	Scenario *scenario.Context
	State    *ExecutionState
	Console  *ui.Console
	Pull     bool

	Results []CheckResult
}

// CheckResult is the outcome of one harness check.
type CheckResult struct {
	Name   string
	Passed bool
	Detail string
}

// Failed returns the number of failed checks.
func (r *Run) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.Passed {
			n++
		}
	}
	return n
}
