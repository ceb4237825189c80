package run

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/deepnoodle-ai/phoenix/plan"
)

// RunState is the complete serializable state of a run: everything needed
// to resume in a fresh process after a restart. Completed steps are never
// re-dispatched; replay skips every step with a logged success.
type RunState struct {
	SessionID  string             `json:"session_id"`
	Goal       string             `json:"goal"`
	Plan       *plan.Plan         `json:"plan"`
	Results    []*plan.StepResult `json:"results"`
	Stack      StackState         `json:"stack"`
	Recoveries []*RecoveryAttempt `json:"recoveries,omitempty"`
	SavedAt    time.Time          `json:"saved_at"`
}

// Snapshot captures the current run state.
func (e *Execution) Snapshot() *RunState {
	return &RunState{
		SessionID:  e.id,
		Goal:       e.plan.Goal,
		Plan:       e.plan,
		Results:    e.results.Results(),
		Stack:      e.goals.State(),
		Recoveries: e.recoveries.Attempts(),
		SavedAt:    time.Now(),
	}
}

// restoreState rebuilds in-memory state from a checkpointed run.
func (e *Execution) restoreState(state *RunState) {
	e.id = state.SessionID
	if state.Plan != nil {
		e.plan = state.Plan
	}
	for _, result := range state.Results {
		e.results.Append(result)
	}
	for _, attempt := range state.Recoveries {
		e.recoveries.Append(attempt)
	}
	e.goals.RestoreState(state.Stack)
	e.resumed = true
}

// DecodeRunState parses a checkpointed snapshot blob.
func DecodeRunState(data []byte) (*RunState, error) {
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode run state: %w", err)
	}
	if state.SessionID == "" {
		return nil, fmt.Errorf("run state has no session id")
	}
	return &state, nil
}
