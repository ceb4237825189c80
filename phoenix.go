// Package phoenix is the execution core of an autonomous task runner. It
// turns a plan (an ordered list of steps) plus a stream of step outcomes
// into a terminal result, with durable checkpointing and bounded recursive
// recovery. The heavy lifting lives in the run, plan, and checkpoint
// subpackages; this package defines the contracts for the external
// collaborators the core coordinates.
package phoenix

import (
	"context"

	"github.com/deepnoodle-ai/phoenix/plan"
)

// Planner produces plans and, on request, alternative step lists for a step
// that could not be recovered locally.
type Planner interface {

	// CreatePlan produces a plan for the given goal
	CreatePlan(ctx context.Context, goal string) (*plan.Plan, error)

	// ProposeAlternative returns a replacement step list for a failed step.
	// The history carries prior error texts for the step so the planner can
	// avoid re-proposing a fix that already failed.
	ProposeAlternative(ctx context.Context, stepID, errorText string, history []string) ([]*plan.Step, error)
}

// Dispatcher executes one step against a tool backend. The attempt number is
// 1-based and increases across retries of the same step.
type Dispatcher interface {
	Execute(ctx context.Context, step *plan.Step, attempt int) (*plan.StepResult, error)
}

// Verification is the verifier's judgment of a step result.
type Verification struct {
	Verified bool     `json:"verified"`
	Issues   []string `json:"issues,omitempty"`
}

// Verifier checks whether a successful step result actually satisfies the
// step's expected result.
type Verifier interface {
	Verify(ctx context.Context, step *plan.Step, result *plan.StepResult) (*Verification, error)
}

// Diagnostician analyzes a failure and proposes a fix description.
type Diagnostician interface {
	Analyze(ctx context.Context, errorText, logContext string, history []string) (string, error)
}

// AuditVerdict is the auditor's decision on a proposed fix.
type AuditVerdict string

const (
	VerdictApprove AuditVerdict = "APPROVE"
	VerdictReject  AuditVerdict = "REJECT"
)

// AuditDecision carries the auditor's verdict and its reasoning.
type AuditDecision struct {
	Verdict   AuditVerdict `json:"verdict"`
	Reasoning string       `json:"reasoning,omitempty"`
}

// Auditor approves or rejects a proposed fix before it is applied.
type Auditor interface {
	Audit(ctx context.Context, errorText, fixDescription string) (*AuditDecision, error)
}
