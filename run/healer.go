package run

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deepnoodle-ai/phoenix"
	"github.com/deepnoodle-ai/phoenix/plan"
	"github.com/deepnoodle-ai/phoenix/slogger"
)

// DefaultRejectionLimit is how many audit rejections a step may accumulate
// before healing escalates to the user instead of looping.
const DefaultRejectionLimit = 3

// healDecision is the policy outcome of the decide phase.
type healDecision string

const (
	healProceed healDecision = "PROCEED"
	healAbort   healDecision = "ABORT"
)

// SelfHealer runs the diagnose, audit, apply pipeline for logic-class
// failures. Each external call is independently failable; a RecoveryAttempt
// is recorded for every invocation regardless of outcome.
type SelfHealer struct {
	diagnostician  phoenix.Diagnostician
	auditor        phoenix.Auditor
	dispatcher     phoenix.Dispatcher
	logger         slogger.Logger
	rejectionLimit int
	rejections     map[string]int
	recoveries     *RecoveryLog

	// PostFix, when set, refreshes derived artifacts after a fix applies
	// cleanly. Failures here are logged, never fatal.
	PostFix func(ctx context.Context, stepID, fixDescription string) error
}

// SelfHealerOptions configures a SelfHealer.
type SelfHealerOptions struct {
	Diagnostician  phoenix.Diagnostician
	Auditor        phoenix.Auditor
	Dispatcher     phoenix.Dispatcher
	Logger         slogger.Logger
	RecoveryLog    *RecoveryLog
	RejectionLimit int
}

// NewSelfHealer creates a self-healer.
func NewSelfHealer(opts SelfHealerOptions) (*SelfHealer, error) {
	if opts.Diagnostician == nil {
		return nil, fmt.Errorf("diagnostician is required")
	}
	if opts.Auditor == nil {
		return nil, fmt.Errorf("auditor is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if opts.Logger == nil {
		opts.Logger = slogger.DefaultLogger
	}
	if opts.RecoveryLog == nil {
		opts.RecoveryLog = NewRecoveryLog()
	}
	if opts.RejectionLimit <= 0 {
		opts.RejectionLimit = DefaultRejectionLimit
	}
	return &SelfHealer{
		diagnostician:  opts.Diagnostician,
		auditor:        opts.Auditor,
		dispatcher:     opts.Dispatcher,
		logger:         opts.Logger.With("component", "healer"),
		rejectionLimit: opts.RejectionLimit,
		rejections:     make(map[string]int),
		recoveries:     opts.RecoveryLog,
	}, nil
}

// HealRequest carries everything the pipeline needs about one failure.
type HealRequest struct {
	Step      *plan.Step
	ErrorText string
	Depth     int
	LogTail   []*plan.StepResult
	Plan      *plan.Plan
}

// Heal drives one failure through the pipeline. It returns whether the fix
// applied cleanly, plus an optional terminal result: when non-nil, the
// caller must stop retrying the step and record that result as final. The
// terminal path fires when the auditor has rejected fixes for this step
// rejectionLimit times, at which point looping further would be pointless
// and the failure is surfaced to the user instead.
func (h *SelfHealer) Heal(ctx context.Context, req HealRequest) (bool, *plan.StepResult, error) {
	start := time.Now()
	logger := h.logger.With("step_id", req.Step.ID)

	success := false
	defer func() {
		h.recoveries.Append(&RecoveryAttempt{
			StepID:      req.Step.ID,
			Depth:       req.Depth,
			Method:      "self_heal",
			Success:     success,
			ErrorBefore: req.ErrorText,
			DurationMs:  time.Since(start).Milliseconds(),
		})
	}()

	// Build context: recent log tail, prior recovery attempts for this
	// step's family, and the full plan.
	logContext := h.buildContext(req)
	history := h.attemptHistory(req.Step.ID)

	// Diagnose
	fix, err := h.diagnostician.Analyze(ctx, req.ErrorText, logContext, history)
	if err != nil {
		logger.Warn("diagnosis failed", "error", err)
		return false, nil, fmt.Errorf("diagnosis failed: %w", err)
	}
	if strings.TrimSpace(fix) == "" {
		logger.Warn("diagnostician returned no fix")
		return false, nil, nil
	}

	// Audit the proposed fix before applying it
	decision, err := h.auditor.Audit(ctx, req.ErrorText, fix)
	if err != nil {
		logger.Warn("audit call failed", "error", err)
		return false, nil, fmt.Errorf("audit failed: %w", err)
	}
	if decision.Verdict != phoenix.VerdictApprove {
		h.rejections[req.Step.ID]++
		count := h.rejections[req.Step.ID]
		logger.Info("fix rejected by auditor",
			"rejections", count,
			"reasoning", decision.Reasoning)
		if count >= h.rejectionLimit {
			terminal := &plan.StepResult{
				StepID:    req.Step.ID,
				Success:   false,
				ErrorKind: KindMissingInput,
				Result: fmt.Sprintf("self-healing abandoned after %d rejected fixes, user input required: %s",
					count, decision.Reasoning),
			}
			return false, terminal, nil
		}
		return false, nil, nil
	}

	// Decide
	if h.decide(req, fix, decision) != healProceed {
		logger.Info("healing aborted by policy")
		return false, nil, nil
	}

	// Apply the approved fix through the tool dispatcher
	fixStep := &plan.Step{
		ID:      req.Step.ID + ".fix",
		Action:  fix,
		ToolRef: req.Step.ToolRef,
	}
	result, err := h.dispatcher.Execute(ctx, fixStep, 1)
	if err != nil {
		logger.Warn("fix application failed", "error", err)
		return false, nil, nil
	}
	if result == nil || !result.Success {
		logger.Warn("fix did not apply cleanly")
		return false, nil, nil
	}

	// Post-fix update of derived artifacts, when configured
	if h.PostFix != nil {
		if err := h.PostFix(ctx, req.Step.ID, fix); err != nil {
			logger.Warn("post-fix update failed", "error", err)
		}
	}

	success = true
	logger.Info("fix applied", "duration_ms", time.Since(start).Milliseconds())
	return true, nil, nil
}

// decide is the policy gate between an approved diagnosis and applying it.
func (h *SelfHealer) decide(req HealRequest, fix string, decision *phoenix.AuditDecision) healDecision {
	if fix == "" || decision.Verdict != phoenix.VerdictApprove {
		return healAbort
	}
	return healProceed
}

func (h *SelfHealer) buildContext(req HealRequest) string {
	var b strings.Builder
	b.WriteString("Recent results:\n")
	for _, r := range req.LogTail {
		status := "ok"
		if !r.Success {
			status = "failed: " + r.ErrorKind
		}
		fmt.Fprintf(&b, "- step %s (%s) %s\n", r.StepID, status, truncate(r.Result, 200))
	}
	if req.Plan != nil {
		b.WriteString("Plan:\n")
		for _, s := range req.Plan.Steps {
			fmt.Fprintf(&b, "- %s\n", truncate(s.Action, 120))
		}
	}
	return b.String()
}

func (h *SelfHealer) attemptHistory(stepID string) []string {
	attempts := h.recoveries.Family(stepID)
	history := make([]string, 0, len(attempts))
	for _, a := range attempts {
		outcome := "failed"
		if a.Success {
			outcome = "succeeded"
		}
		history = append(history, fmt.Sprintf("%s %s: %s", a.Method, outcome, a.ErrorBefore))
	}
	return history
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
