package run

import (
	"sync"

	"github.com/deepnoodle-ai/phoenix/plan"
)

// RecoveryAttempt is the audit record of one self-healing invocation. One
// is appended per invocation regardless of outcome, independent of the
// step result log.
type RecoveryAttempt struct {
	StepID      string `json:"step_id"`
	Depth       int    `json:"depth"`
	Method      string `json:"method"`
	Success     bool   `json:"success"`
	ErrorBefore string `json:"error_before"`
	DurationMs  int64  `json:"duration_ms"`
}

// RecoveryLog is the append-only log of recovery attempts for one run.
type RecoveryLog struct {
	mutex    sync.RWMutex
	attempts []*RecoveryAttempt
}

// NewRecoveryLog creates an empty recovery log.
func NewRecoveryLog() *RecoveryLog {
	return &RecoveryLog{}
}

// Append adds an attempt to the log.
func (l *RecoveryLog) Append(attempt *RecoveryAttempt) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.attempts = append(l.attempts, attempt)
}

// Attempts returns a copy of all logged attempts in append order.
func (l *RecoveryLog) Attempts() []*RecoveryAttempt {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	out := make([]*RecoveryAttempt, len(l.attempts))
	copy(out, l.attempts)
	return out
}

// Family returns the attempts belonging to the step family that shares the
// given step's root ID. Hierarchical IDs tie recovery sub-steps back to
// the original step they were healing.
func (l *RecoveryLog) Family(stepID string) []*RecoveryAttempt {
	root := plan.RootID(stepID)
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	var out []*RecoveryAttempt
	for _, attempt := range l.attempts {
		if plan.RootID(attempt.StepID) == root {
			out = append(out, attempt)
		}
	}
	return out
}

// Len returns the number of logged attempts.
func (l *RecoveryLog) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.attempts)
}
