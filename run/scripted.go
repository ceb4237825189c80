package run

import (
	"context"
	"fmt"
	"sync"

	"github.com/deepnoodle-ai/phoenix"
	"github.com/deepnoodle-ai/phoenix/plan"
)

// StepScript describes how a ScriptedDispatcher behaves for one action.
type StepScript struct {
	// FailuresBefore is the number of attempts that fail before the first
	// success.
	FailuresBefore int

	// AlwaysFail makes every attempt fail regardless of FailuresBefore.
	AlwaysFail bool

	// FailText is the failure text for failing attempts.
	FailText string

	// Result is the success text.
	Result string
}

// ScriptedDispatcher executes steps from a canned script, keyed by step
// action. Actions without a script always succeed. Useful for tests and
// for demonstrating recovery behavior without a real tool backend.
type ScriptedDispatcher struct {
	mutex   sync.Mutex
	scripts map[string]*StepScript
	calls   map[string]int
}

// NewScriptedDispatcher creates a dispatcher with the given scripts.
func NewScriptedDispatcher(scripts map[string]*StepScript) *ScriptedDispatcher {
	if scripts == nil {
		scripts = make(map[string]*StepScript)
	}
	return &ScriptedDispatcher{
		scripts: scripts,
		calls:   make(map[string]int),
	}
}

func (d *ScriptedDispatcher) Execute(ctx context.Context, step *plan.Step, attempt int) (*plan.StepResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mutex.Lock()
	d.calls[step.Action]++
	call := d.calls[step.Action]
	script := d.scripts[step.Action]
	d.mutex.Unlock()

	if script == nil {
		return &plan.StepResult{
			StepID:  step.ID,
			Success: true,
			Result:  fmt.Sprintf("completed: %s", step.Action),
		}, nil
	}
	if script.AlwaysFail || call <= script.FailuresBefore {
		return &plan.StepResult{
			StepID:  step.ID,
			Success: false,
			Result:  script.FailText,
		}, nil
	}
	result := script.Result
	if result == "" {
		result = fmt.Sprintf("completed: %s", step.Action)
	}
	return &plan.StepResult{StepID: step.ID, Success: true, Result: result}, nil
}

// Calls returns how many times the given action was dispatched.
func (d *ScriptedDispatcher) Calls(action string) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.calls[action]
}

// ScriptedPlanner serves canned plans and alternatives.
type ScriptedPlanner struct {
	mutex sync.Mutex

	// Plan is returned by CreatePlan for any goal.
	Plan *plan.Plan

	// Alternatives maps a failed step ID to the sub-plan proposed for it.
	// The same proposal is returned on every call, which exercises the
	// duplicate sub-plan guard.
	Alternatives map[string][]*plan.Step

	// AlternativeFunc, when set, overrides Alternatives.
	AlternativeFunc func(stepID, errorText string, history []string) ([]*plan.Step, error)

	proposals int
}

func (p *ScriptedPlanner) CreatePlan(ctx context.Context, goal string) (*plan.Plan, error) {
	if p.Plan == nil {
		return nil, fmt.Errorf("no plan scripted for goal %q", goal)
	}
	return p.Plan, nil
}

func (p *ScriptedPlanner) ProposeAlternative(ctx context.Context, stepID, errorText string, history []string) ([]*plan.Step, error) {
	p.mutex.Lock()
	p.proposals++
	p.mutex.Unlock()

	if p.AlternativeFunc != nil {
		return p.AlternativeFunc(stepID, errorText, history)
	}
	steps, ok := p.Alternatives[stepID]
	if !ok {
		return nil, fmt.Errorf("no alternative scripted for step %s", stepID)
	}
	return steps, nil
}

// Proposals returns how many alternatives were requested.
func (p *ScriptedPlanner) Proposals() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.proposals
}

// ScriptedVerifier rejects the first N verifications per step action, then
// verifies everything.
type ScriptedVerifier struct {
	mutex sync.Mutex

	// RejectionsBefore maps a step action to the number of verifications
	// rejected before the verifier starts approving.
	RejectionsBefore map[string]int

	// Issues is reported on every rejection.
	Issues []string

	calls map[string]int
}

func (v *ScriptedVerifier) Verify(ctx context.Context, step *plan.Step, result *plan.StepResult) (*phoenix.Verification, error) {
	v.mutex.Lock()
	if v.calls == nil {
		v.calls = make(map[string]int)
	}
	v.calls[step.Action]++
	call := v.calls[step.Action]
	limit := v.RejectionsBefore[step.Action]
	v.mutex.Unlock()

	if call <= limit {
		issues := v.Issues
		if len(issues) == 0 {
			issues = []string{"expected result not met"}
		}
		return &phoenix.Verification{Verified: false, Issues: issues}, nil
	}
	return &phoenix.Verification{Verified: true}, nil
}

// ScriptedDiagnostician proposes the same fix for every failure.
type ScriptedDiagnostician struct {
	Fix string
	Err error
}

func (d *ScriptedDiagnostician) Analyze(ctx context.Context, errorText, logContext string, history []string) (string, error) {
	if d.Err != nil {
		return "", d.Err
	}
	if d.Fix == "" {
		return "restart the affected component", nil
	}
	return d.Fix, nil
}

// ScriptedAuditor returns verdicts in order and approves once the script
// runs out.
type ScriptedAuditor struct {
	mutex    sync.Mutex
	Verdicts []phoenix.AuditVerdict
	calls    int
}

func (a *ScriptedAuditor) Audit(ctx context.Context, errorText, fixDescription string) (*phoenix.AuditDecision, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	verdict := phoenix.VerdictApprove
	if a.calls < len(a.Verdicts) {
		verdict = a.Verdicts[a.calls]
	}
	a.calls++
	return &phoenix.AuditDecision{Verdict: verdict, Reasoning: "scripted"}, nil
}
