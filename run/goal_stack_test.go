package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoalStackPushPop(t *testing.T) {
	stack := NewGoalStack(5)
	assert.Equal(t, 0, stack.Depth())
	assert.Nil(t, stack.Active())

	require.NoError(t, stack.Push("write the report", 4))
	assert.Equal(t, 1, stack.Depth())
	assert.Equal(t, "write the report", stack.Active().GoalText)
	assert.Equal(t, 4, stack.Active().TotalSteps)

	assert.Equal(t, "write the report", stack.Pop())
	assert.Equal(t, 0, stack.Depth())
	assert.Nil(t, stack.Active())
	assert.Equal(t, "", stack.Pop())
}

func TestGoalStackRestoresCounters(t *testing.T) {
	stack := NewGoalStack(5)
	require.NoError(t, stack.Push("parent goal", 5))
	stack.AdvanceStep()
	stack.AdvanceStep()

	require.NoError(t, stack.Push("recover step 3", 2))
	assert.Equal(t, 2, stack.Depth())
	assert.Equal(t, "recover step 3", stack.Active().GoalText)
	assert.Equal(t, 0, stack.Active().CurrentStepIndex)
	stack.AdvanceStep()

	stack.Pop()
	require.NotNil(t, stack.Active())
	assert.Equal(t, "parent goal", stack.Active().GoalText)
	assert.Equal(t, 5, stack.Active().TotalSteps)
	assert.Equal(t, 2, stack.Active().CurrentStepIndex)
}

func TestGoalStackDepthBound(t *testing.T) {
	stack := NewGoalStack(2)
	require.NoError(t, stack.Push("a", 1))
	require.NoError(t, stack.Push("b", 1))

	before := stack.State()
	err := stack.Push("c", 1)
	assert.ErrorIs(t, err, ErrDepthExceeded)

	// A rejected push must leave the stack untouched.
	assert.Equal(t, before, stack.State())
	assert.Equal(t, 2, stack.Depth())
	assert.Equal(t, "b", stack.Active().GoalText)
}

func TestGoalStackClampsMaxDepth(t *testing.T) {
	assert.Equal(t, DefaultMaxDepth, NewGoalStack(0).maxDepth)
	assert.Equal(t, 1, NewGoalStack(-3).maxDepth)
	assert.Equal(t, 10, NewGoalStack(50).maxDepth)
}

func TestGoalStackStateRoundTrip(t *testing.T) {
	stack := NewGoalStack(4)
	require.NoError(t, stack.Push("parent", 3))
	stack.AdvanceStep()
	require.NoError(t, stack.Push("child", 2))

	state := stack.State()

	restored := NewGoalStack(0)
	restored.RestoreState(state)
	assert.Equal(t, 2, restored.Depth())
	assert.Equal(t, "child", restored.Active().GoalText)

	restored.Pop()
	assert.Equal(t, "parent", restored.Active().GoalText)
	assert.Equal(t, 1, restored.Active().CurrentStepIndex)

	// The restored stack honors the original depth bound of 4.
	require.NoError(t, restored.Push("c2", 1))
	require.NoError(t, restored.Push("c3", 1))
	require.NoError(t, restored.Push("c4", 1))
	assert.ErrorIs(t, restored.Push("c5", 1), ErrDepthExceeded)
}
