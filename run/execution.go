// Package run implements the execution core: a coordinator that drives an
// ordered plan of steps to completion, classifies failures, and recovers
// through retries, self-healing, recursive sub-planning, or a durable
// checkpoint and process restart.
package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/deepnoodle-ai/phoenix"
	"github.com/deepnoodle-ai/phoenix/checkpoint"
	"github.com/deepnoodle-ai/phoenix/plan"
	"github.com/deepnoodle-ai/phoenix/retry"
	"github.com/deepnoodle-ai/phoenix/slogger"
	"github.com/google/uuid"
)

// Status represents the execution status
type Status string

const (
	StatusPlanning  Status = "planning"
	StatusExecuting Status = "executing"
	StatusVerifying Status = "verifying"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"

	// StatusChat is the shortcut for plans with zero steps: nothing to
	// execute, nothing to recover.
	StatusChat Status = "chat"
)

// ErrRestartRequested signals that run state was checkpointed and the
// process must now be replaced. The caller should exit with
// checkpoint.RestartExitCode and let the external supervisor relaunch.
var ErrRestartRequested = errors.New("restart requested")

// ErrDuplicateSubPlan signals that the planner proposed a step list
// identical to one already attempted for the same step.
var ErrDuplicateSubPlan = errors.New("identical sub-plan already attempted")

const (
	// DefaultStepRetryLimit bounds in-place retries of a single step.
	DefaultStepRetryLimit = 3

	// DefaultDispatchTimeout bounds a single dispatch or verification call.
	DefaultDispatchTimeout = 2 * time.Minute

	// DefaultRecursionBackoffBase seeds the exponential delay applied
	// before executing a recovery sub-plan at each additional depth.
	DefaultRecursionBackoffBase = 1 * time.Second
)

// Formatter receives progress notifications for display. Mirrors the
// results log but is purely cosmetic; a nil formatter is fine.
type Formatter interface {
	PrintStepStart(stepID, action string)
	PrintStepResult(result *plan.StepResult)
	PrintRecovery(stepID string, action Action, reason string)
}

// Options configures a new Execution.
type Options struct {
	Plan       *plan.Plan
	SessionID  string
	Dispatcher phoenix.Dispatcher
	Planner    phoenix.Planner
	Verifier   phoenix.Verifier
	Healer     *SelfHealer
	Router     *Router
	Supervisor *checkpoint.Supervisor
	Logger     slogger.Logger
	Formatter  Formatter

	// Resume restores a previously checkpointed run. The results log and
	// goal stack come back exactly as saved; already-successful steps are
	// skipped on re-execution.
	Resume *RunState

	RecoveryLog          *RecoveryLog
	MaxRecursiveDepth    int
	StepRetryLimit       int
	DispatchTimeout      time.Duration
	RecursionBackoffBase time.Duration

	// Sleep overrides the backoff sleep, letting tests count and skip
	// real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// RunResult is the plan-level outcome reported to the caller.
type RunResult struct {
	Status         Status
	SessionID      string
	Results        []*plan.StepResult
	Recoveries     []*RecoveryAttempt
	FailedStepID   string
	ErrorKind      string
	Resumed        bool
	RestartPending bool
	Duration       time.Duration
}

// Execution coordinates one run. Each run owns its results log and goal
// stack exclusively; many executions may run concurrently, one coordinator
// each, sharing only the durable checkpoint store.
type Execution struct {
	id         string
	plan       *plan.Plan
	dispatcher phoenix.Dispatcher
	planner    phoenix.Planner
	verifier   phoenix.Verifier
	healer     *SelfHealer
	router     *Router
	supervisor *checkpoint.Supervisor
	logger     slogger.Logger
	formatter  Formatter

	status       Status
	statusMutex  sync.RWMutex
	results      *plan.ResultLog
	goals        *GoalStack
	recoveries   *RecoveryLog
	healCounts   map[string]int
	triedPlans   map[string]map[string]bool
	failedStepID string
	failedKind   string
	resumed      bool
	restartFired bool
	startTime    time.Time

	stepRetryLimit       int
	dispatchTimeout      time.Duration
	recursionBackoffBase time.Duration
	sleep                func(ctx context.Context, d time.Duration) error
}

// NewExecution creates a new execution coordinator.
func NewExecution(opts Options) (*Execution, error) {
	if opts.Plan == nil {
		return nil, fmt.Errorf("plan is required")
	}
	if err := opts.Plan.Validate(); err != nil {
		return nil, err
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if opts.Logger == nil {
		opts.Logger = slogger.DefaultLogger
	}
	if opts.Router == nil {
		router, err := NewRouter(RouterPatterns{})
		if err != nil {
			return nil, err
		}
		opts.Router = router
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.New().String()
	}
	if opts.StepRetryLimit <= 0 {
		opts.StepRetryLimit = DefaultStepRetryLimit
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = DefaultDispatchTimeout
	}
	if opts.RecursionBackoffBase <= 0 {
		opts.RecursionBackoffBase = DefaultRecursionBackoffBase
	}
	if opts.RecoveryLog == nil {
		opts.RecoveryLog = NewRecoveryLog()
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}

	e := &Execution{
		id:                   opts.SessionID,
		plan:                 opts.Plan,
		dispatcher:           opts.Dispatcher,
		planner:              opts.Planner,
		verifier:             opts.Verifier,
		healer:               opts.Healer,
		router:               opts.Router,
		supervisor:           opts.Supervisor,
		logger:               opts.Logger.With("session_id", opts.SessionID),
		formatter:            opts.Formatter,
		status:               StatusPlanning,
		results:              plan.NewResultLog(),
		goals:                NewGoalStack(opts.MaxRecursiveDepth),
		recoveries:           opts.RecoveryLog,
		healCounts:           make(map[string]int),
		triedPlans:           make(map[string]map[string]bool),
		stepRetryLimit:       opts.StepRetryLimit,
		dispatchTimeout:      opts.DispatchTimeout,
		recursionBackoffBase: opts.RecursionBackoffBase,
		sleep:                opts.Sleep,
	}

	if opts.Resume != nil {
		e.restoreState(opts.Resume)
	}
	return e, nil
}

// ID returns the session ID of this run.
func (e *Execution) ID() string {
	return e.id
}

// Status returns the current execution status.
func (e *Execution) Status() Status {
	e.statusMutex.RLock()
	defer e.statusMutex.RUnlock()
	return e.status
}

func (e *Execution) setStatus(status Status) {
	e.statusMutex.Lock()
	defer e.statusMutex.Unlock()
	e.status = status
}

// Results returns the step results logged so far, in completion order.
func (e *Execution) Results() []*plan.StepResult {
	return e.results.Results()
}

// Run executes the plan to completion. It returns ErrRestartRequested when
// a fatal failure checkpointed the run: the process must exit and be
// relaunched, after which the run resumes from the snapshot.
func (e *Execution) Run(ctx context.Context) (*RunResult, error) {
	e.startTime = time.Now()
	e.logger.Info("run started",
		"goal", e.plan.Goal,
		"steps", len(e.plan.Steps),
		"resumed", e.resumed)

	if len(e.plan.Steps) == 0 {
		e.setStatus(StatusChat)
		return e.buildResult(), nil
	}

	// A resumed run keeps the goal stack restored from its snapshot; only
	// a fresh run pushes the root goal.
	if e.goals.Depth() == 0 {
		if err := e.goals.Push(e.plan.Goal, len(e.plan.Steps)); err != nil {
			return e.buildResult(), err
		}
	}
	err := e.executeSteps(ctx, e.plan.Steps, "")
	e.goals.Pop()

	if err != nil {
		e.setStatus(StatusError)
		e.logger.Error("run failed",
			"failed_step", e.failedStepID,
			"error_kind", e.failedKind,
			"error", err)
		return e.buildResult(), err
	}

	e.setStatus(StatusCompleted)
	if e.resumed && e.supervisor != nil {
		// The snapshot has served its purpose.
		if err := e.supervisor.DeleteSnapshot(ctx, e.id); err != nil {
			e.logger.Warn("failed to delete consumed snapshot", "error", err)
		}
	}
	e.logger.Info("run completed", "duration", time.Since(e.startTime))
	return e.buildResult(), nil
}

func (e *Execution) buildResult() *RunResult {
	return &RunResult{
		Status:         e.Status(),
		SessionID:      e.id,
		Results:        e.results.Results(),
		Recoveries:     e.recoveries.Attempts(),
		FailedStepID:   e.failedStepID,
		ErrorKind:      e.failedKind,
		Resumed:        e.resumed,
		RestartPending: e.restartFired,
		Duration:       time.Since(e.startTime),
	}
}

// executeSteps runs a step list in order, assigning hierarchical IDs under
// the given parent prefix. Steps that already succeeded in a prior process
// life are skipped.
func (e *Execution) executeSteps(ctx context.Context, steps []*plan.Step, parentID string) error {
	for i, step := range steps {
		// Copy before assigning the ID; the caller's step list may be
		// shared with a snapshot or a planner proposal.
		s := *step
		s.ID = plan.ChildID(parentID, i+1)

		if e.results.HasSuccess(s.ID) {
			e.logger.Info("skipping already-completed step", "step_id", s.ID)
			e.goals.AdvanceStep()
			continue
		}
		if err := e.executeStep(ctx, &s); err != nil {
			return err
		}
		e.goals.AdvanceStep()
	}
	return nil
}

// executeStep drives one step to a terminal outcome. Exactly one
// StepResult is appended to the log per terminal branch.
func (e *Execution) executeStep(ctx context.Context, step *plan.Step) error {
	e.setStatus(StatusExecuting)
	if e.formatter != nil {
		e.formatter.PrintStepStart(step.ID, step.Action)
	}
	logger := e.logger.With("step_id", step.ID)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			e.recordFailure(step, KindCancelled, "run cancelled")
			return err
		}

		result := e.dispatchAndVerify(ctx, step, attempt)
		if result.Success {
			e.recordResult(result)
			logger.Info("step completed", "attempt", attempt)
			return nil
		}
		if err := ctx.Err(); err != nil {
			e.recordFailure(step, KindCancelled, "run cancelled")
			return err
		}

		errText := result.Result
		if errText == "" {
			errText = "step failed without detail"
		}
		strategy := e.router.Decide(errText, attempt, e.healCounts[step.ID])
		logger.Warn("step failed",
			"attempt", attempt,
			"action", string(strategy.Action),
			"reason", strategy.Reason,
			"error", errText)
		if e.formatter != nil {
			e.formatter.PrintRecovery(step.ID, strategy.Action, strategy.Reason)
		}

		switch strategy.Action {
		case ActionRetry, ActionWaitAndRetry:
			limit := strategy.MaxRetries
			if limit <= 0 || e.stepRetryLimit < limit {
				limit = e.stepRetryLimit
			}
			if attempt >= limit {
				// Exhausted in-place retries; surface as a hard failure
				// rather than silently continuing.
				kind := KindTransient
				if strategy.Action == ActionWaitAndRetry {
					kind = KindInfrastructure
				}
				e.recordFailure(step, kind, fmt.Sprintf("%s (gave up after %d attempts)", errText, attempt))
				return fmt.Errorf("step %s failed after %d attempts: %s", step.ID, attempt, errText)
			}
			delay := strategy.Backoff
			if strategy.Action == ActionWaitAndRetry {
				delay = retry.Backoff(strategy.Backoff, attempt)
			}
			if err := e.sleep(ctx, delay); err != nil {
				e.recordFailure(step, KindCancelled, "run cancelled during backoff")
				return err
			}

		case ActionRestart:
			e.recordFailure(step, KindFatal, errText)
			if e.supervisor == nil {
				return fmt.Errorf("step %s hit a fatal failure and no checkpoint supervisor is configured: %s", step.ID, errText)
			}
			reason := fmt.Sprintf("step %s: %s", step.ID, errText)
			if err := e.supervisor.SaveAndMarkRestart(ctx, e.id, e.Snapshot(), reason); err != nil {
				return fmt.Errorf("failed to checkpoint for restart: %w", err)
			}
			e.restartFired = true
			return ErrRestartRequested

		case ActionAskUser:
			e.recordFailure(step, KindMissingInput, errText)
			return fmt.Errorf("step %s requires user input: %s", step.ID, errText)

		case ActionHeal:
			e.healCounts[step.ID]++
			healed, terminal, healErr := e.heal(ctx, step, errText)
			if terminal != nil {
				e.recordResult(terminal)
				e.failedStepID = terminal.StepID
				e.failedKind = terminal.ErrorKind
				return fmt.Errorf("step %s: %s", step.ID, terminal.Result)
			}
			if healErr != nil {
				logger.Warn("healing error", "error", healErr)
			}
			if healed {
				continue // retry the step once more
			}
			// Healing failed; ask the planner for an alternative sub-plan.
			if err := e.replanStep(ctx, step, errText); err != nil {
				return err
			}

		case ActionReplan:
			if err := e.replanStep(ctx, step, errText); err != nil {
				return err
			}
		}
	}
}

// dispatchAndVerify performs one dispatch attempt, then verification when
// the step requires it. It always returns a non-nil result; a verifier
// rejection converts a success into a failure with the verifier's stated
// issues appended.
func (e *Execution) dispatchAndVerify(ctx context.Context, step *plan.Step, attempt int) *plan.StepResult {
	dispatchCtx, cancel := context.WithTimeout(ctx, e.dispatchTimeout)
	defer cancel()

	result, err := e.dispatcher.Execute(dispatchCtx, step, attempt)
	if err != nil {
		return &plan.StepResult{StepID: step.ID, Success: false, Result: err.Error()}
	}
	if result == nil {
		return &plan.StepResult{StepID: step.ID, Success: false, Result: "dispatcher returned no result"}
	}
	result.StepID = step.ID

	if result.Success && step.RequiresVerification && e.verifier != nil {
		e.setStatus(StatusVerifying)
		defer e.setStatus(StatusExecuting)

		verifyCtx, cancelVerify := context.WithTimeout(ctx, e.dispatchTimeout)
		defer cancelVerify()

		verification, err := e.verifier.Verify(verifyCtx, step, result)
		if err != nil {
			result.Success = false
			result.Result = fmt.Sprintf("%s (verification error: %s)", result.Result, err.Error())
		} else if !verification.Verified {
			result.Success = false
			result.Result = fmt.Sprintf("%s (verification failed: %s)",
				result.Result, strings.Join(verification.Issues, "; "))
		}
	}
	return result
}

func (e *Execution) heal(ctx context.Context, step *plan.Step, errText string) (bool, *plan.StepResult, error) {
	if e.healer == nil {
		return false, nil, nil
	}
	tail := e.results.Results()
	if len(tail) > 10 {
		tail = tail[len(tail)-10:]
	}
	return e.healer.Heal(ctx, HealRequest{
		Step:      step,
		ErrorText: errText,
		Depth:     e.goals.Depth(),
		LogTail:   tail,
		Plan:      e.plan,
	})
}

// replanStep asks the planner for an alternative step list and executes it
// as a recovery sub-plan under the failed step's ID. A proposal whose hash
// was already attempted for this step is refused outright: a planner that
// keeps proposing the same failed fix must not drive an infinite loop.
func (e *Execution) replanStep(ctx context.Context, step *plan.Step, errText string) error {
	if e.planner == nil {
		e.recordFailure(step, KindLogic, errText)
		return fmt.Errorf("step %s failed and no planner is available for replanning: %s", step.ID, errText)
	}

	history := e.failureHistory(step.ID)
	alternative, err := e.planner.ProposeAlternative(ctx, step.ID, errText, history)
	if err != nil {
		e.recordFailure(step, KindLogic, fmt.Sprintf("%s (replanning failed: %s)", errText, err.Error()))
		return fmt.Errorf("replanning for step %s failed: %w", step.ID, err)
	}
	if len(alternative) == 0 {
		e.recordFailure(step, KindLogic, fmt.Sprintf("%s (planner had no alternative)", errText))
		return fmt.Errorf("planner proposed no alternative for step %s", step.ID)
	}

	hash, err := plan.HashSteps(alternative)
	if err != nil {
		return fmt.Errorf("failed to hash proposed sub-plan: %w", err)
	}
	if e.triedPlans[step.ID][hash] {
		e.recordFailure(step, KindRecursionExhausted, fmt.Sprintf("%s (planner repeated a failed sub-plan)", errText))
		return fmt.Errorf("step %s: %w", step.ID, ErrDuplicateSubPlan)
	}
	if e.triedPlans[step.ID] == nil {
		e.triedPlans[step.ID] = make(map[string]bool)
	}
	e.triedPlans[step.ID][hash] = true

	if err := e.goals.Push(fmt.Sprintf("recover step %s", step.ID), len(alternative)); err != nil {
		e.recordFailure(step, KindRecursionExhausted, fmt.Sprintf("%s (recursion depth exhausted)", errText))
		return fmt.Errorf("step %s: %w", step.ID, err)
	}

	// Damp retry storms: each additional recursion depth waits
	// exponentially longer before executing.
	if recursionDepth := e.goals.Depth() - 1; recursionDepth >= 1 {
		if err := e.sleep(ctx, retry.Backoff(e.recursionBackoffBase, recursionDepth)); err != nil {
			e.goals.Pop()
			e.recordFailure(step, KindCancelled, "run cancelled before recovery sub-plan")
			return err
		}
	}

	e.logger.Info("executing recovery sub-plan",
		"step_id", step.ID,
		"sub_steps", len(alternative),
		"depth", e.goals.Depth())

	err = e.executeSteps(ctx, alternative, step.ID)
	e.goals.Pop()
	return err
}

// failureHistory collects prior failure texts for the step's family, in
// hierarchical ID order, for the planner's benefit.
func (e *Execution) failureHistory(stepID string) []string {
	var history []string
	for _, r := range e.results.Family(plan.RootID(stepID)) {
		if !r.Success {
			history = append(history, fmt.Sprintf("%s: %s", r.StepID, r.Result))
		}
	}
	return history
}

func (e *Execution) recordResult(result *plan.StepResult) {
	e.results.Append(result)
	if e.formatter != nil {
		e.formatter.PrintStepResult(result)
	}
}

func (e *Execution) recordFailure(step *plan.Step, kind, text string) {
	e.failedStepID = step.ID
	e.failedKind = kind
	e.recordResult(&plan.StepResult{
		StepID:    step.ID,
		Success:   false,
		Result:    text,
		ErrorKind: kind,
	})
}
