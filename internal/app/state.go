package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	harnesserrors "minifitest/internal/errors"
)

// ExecutionStage represents the stages of the up workflow
type ExecutionStage string

const (
	StagePrepare   ExecutionStage = "prepare"
	StageDeploy    ExecutionStage = "deploy"
	StageCheck     ExecutionStage = "check"
	StageCompleted ExecutionStage = "completed"
)

// ExecutionState records what an up run created so that down can remove it
// later.
type ExecutionState struct {
	SchemaVersion       string         `json:"schema_version"`
	RunID               string         `json:"run_id"`
	ScenarioID          string         `json:"scenario_id"`
	HarnessPath         string         `json:"harness_path"`
	Network             string         `json:"network"`
	Containers          []string       `json:"containers"`
	LastSuccessfulStage ExecutionStage `json:"last_successful_stage"`
	Kept                bool           `json:"kept"`
	CreatedAt           time.Time      `json:"created_at"`
	LastUpdatedAt       time.Time      `json:"last_updated_at"`
}

const (
	StateFileName      = ".minifitest.state.json"
	StateSchemaVersion = "1.0"
)

func statePath(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, StateFileName)
}

// loadState loads the state file in dir. Returns nil if there is none.
func loadState(dir string) (*ExecutionState, error) {
	path := statePath(dir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, harnesserrors.NewStateError("Failed to read state file", err.Error(), "", fmt.Errorf("failed to read state file: %w", err))
	}

	var state ExecutionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, harnesserrors.NewStateError(
			"Failed to parse state file",
			err.Error(),
			fmt.Sprintf("Remove %s and clean up leftover containers by hand", path),
			fmt.Errorf("failed to parse state file: %w", err),
		)
	}

	return &state, nil
}

// saveState persists the execution state to the state file.
func saveState(dir string, state *ExecutionState) error {
	state.LastUpdatedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	if err := os.WriteFile(statePath(dir), data, 0644); err != nil {
		return harnesserrors.NewStateError("Failed to write state file", err.Error(), "", fmt.Errorf("failed to write state file: %w", err))
	}

	return nil
}

// newState creates a new execution state for a fresh run
func newState(harnessPath, runID, scenarioID, network string) *ExecutionState {
	now := time.Now()
	return &ExecutionState{
		SchemaVersion: StateSchemaVersion,
		RunID:         runID,
		ScenarioID:    scenarioID,
		HarnessPath:   harnessPath,
		Network:       network,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// hasResources reports whether the run may have left containers behind.
func (s *ExecutionState) hasResources() bool {
	if s == nil {
		return false
	}
	return s.Kept || s.LastSuccessfulStage != StageCompleted
}

// removeStateFile removes the state file in dir if present.
func removeStateFile(dir string) error {
	path := statePath(dir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove state file: %w", err)
	}

	return nil
}
