package run

import (
	"context"
	"errors"
	"testing"

	"github.com/deepnoodle-ai/phoenix"
	"github.com/deepnoodle-ai/phoenix/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHealer(t *testing.T, opts SelfHealerOptions) *SelfHealer {
	t.Helper()
	if opts.Diagnostician == nil {
		opts.Diagnostician = &ScriptedDiagnostician{Fix: "recreate the missing index"}
	}
	if opts.Auditor == nil {
		opts.Auditor = &ScriptedAuditor{}
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = NewScriptedDispatcher(nil)
	}
	healer, err := NewSelfHealer(opts)
	require.NoError(t, err)
	return healer
}

func TestHealApprovedFix(t *testing.T) {
	recoveries := NewRecoveryLog()
	healer := newTestHealer(t, SelfHealerOptions{RecoveryLog: recoveries})

	healed, terminal, err := healer.Heal(context.Background(), HealRequest{
		Step:      &plan.Step{ID: "2", Action: "load index"},
		ErrorText: "index not found",
		Depth:     1,
	})
	require.NoError(t, err)
	assert.Nil(t, terminal)
	assert.True(t, healed)

	attempts := recoveries.Attempts()
	require.Len(t, attempts, 1)
	assert.Equal(t, "2", attempts[0].StepID)
	assert.Equal(t, "self_heal", attempts[0].Method)
	assert.True(t, attempts[0].Success)
	assert.Equal(t, "index not found", attempts[0].ErrorBefore)
}

func TestHealRejectionEscalation(t *testing.T) {
	recoveries := NewRecoveryLog()
	healer := newTestHealer(t, SelfHealerOptions{
		Auditor: &ScriptedAuditor{Verdicts: []phoenix.AuditVerdict{
			phoenix.VerdictReject, phoenix.VerdictReject, phoenix.VerdictReject,
		}},
		RecoveryLog: recoveries,
	})

	req := HealRequest{
		Step:      &plan.Step{ID: "5", Action: "transform data"},
		ErrorText: "schema mismatch",
		Depth:     1,
	}

	// First two rejections: healing fails but is not terminal.
	for i := 0; i < 2; i++ {
		healed, terminal, err := healer.Heal(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, healed)
		assert.Nil(t, terminal)
	}

	// Third rejection hits the limit and surfaces to the user.
	healed, terminal, err := healer.Heal(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, healed)
	require.NotNil(t, terminal)
	assert.Equal(t, "5", terminal.StepID)
	assert.False(t, terminal.Success)
	assert.Equal(t, KindMissingInput, terminal.ErrorKind)
	assert.Contains(t, terminal.Result, "user input required")

	// Every invocation is recorded, rejected or not.
	assert.Equal(t, 3, recoveries.Len())
	for _, attempt := range recoveries.Attempts() {
		assert.False(t, attempt.Success)
	}
}

func TestHealRejectionsTrackedPerStep(t *testing.T) {
	healer := newTestHealer(t, SelfHealerOptions{
		Auditor: &ScriptedAuditor{Verdicts: []phoenix.AuditVerdict{
			phoenix.VerdictReject, phoenix.VerdictReject,
			phoenix.VerdictReject, phoenix.VerdictReject,
		}},
	})

	stepA := HealRequest{Step: &plan.Step{ID: "1", Action: "a"}, ErrorText: "x"}
	stepB := HealRequest{Step: &plan.Step{ID: "2", Action: "b"}, ErrorText: "y"}

	// Two rejections for each step: neither reaches the per-step limit.
	for _, req := range []HealRequest{stepA, stepB, stepA, stepB} {
		_, terminal, err := healer.Heal(context.Background(), req)
		require.NoError(t, err)
		assert.Nil(t, terminal)
	}
}

func TestHealDiagnosisFailure(t *testing.T) {
	recoveries := NewRecoveryLog()
	healer := newTestHealer(t, SelfHealerOptions{
		Diagnostician: &ScriptedDiagnostician{Err: errors.New("model unavailable")},
		RecoveryLog:   recoveries,
	})

	healed, terminal, err := healer.Heal(context.Background(), HealRequest{
		Step:      &plan.Step{ID: "1", Action: "a"},
		ErrorText: "boom",
	})
	assert.Error(t, err)
	assert.False(t, healed)
	assert.Nil(t, terminal)
	assert.Equal(t, 1, recoveries.Len())
}

func TestHealFixFailsToApply(t *testing.T) {
	dispatcher := NewScriptedDispatcher(map[string]*StepScript{
		"recreate the missing index": {AlwaysFail: true, FailText: "still broken"},
	})
	healer := newTestHealer(t, SelfHealerOptions{Dispatcher: dispatcher})

	healed, terminal, err := healer.Heal(context.Background(), HealRequest{
		Step:      &plan.Step{ID: "1", Action: "load index"},
		ErrorText: "index not found",
	})
	require.NoError(t, err)
	assert.False(t, healed)
	assert.Nil(t, terminal)
	assert.Equal(t, 1, dispatcher.Calls("recreate the missing index"))
}

func TestHealPostFixHook(t *testing.T) {
	healer := newTestHealer(t, SelfHealerOptions{})
	var hookStepID, hookFix string
	healer.PostFix = func(ctx context.Context, stepID, fix string) error {
		hookStepID = stepID
		hookFix = fix
		return nil
	}

	healed, _, err := healer.Heal(context.Background(), HealRequest{
		Step:      &plan.Step{ID: "7", Action: "a"},
		ErrorText: "boom",
	})
	require.NoError(t, err)
	assert.True(t, healed)
	assert.Equal(t, "7", hookStepID)
	assert.Equal(t, "recreate the missing index", hookFix)
}
