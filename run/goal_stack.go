package run

import "errors"

// ErrDepthExceeded is returned by GoalStack.Push when accepting the goal
// would exceed the configured recursion depth bound.
var ErrDepthExceeded = errors.New("goal stack depth exceeded")

const (
	// DefaultMaxDepth bounds recursive recovery when no depth is configured.
	DefaultMaxDepth = 5
	minMaxDepth     = 1
	maxMaxDepth     = 10
)

// GoalFrame tracks one active goal and its step progress.
type GoalFrame struct {
	GoalText         string `json:"goal_text"`
	TotalSteps       int    `json:"total_steps"`
	CurrentStepIndex int    `json:"current_step_index"`
}

// GoalStack is a depth-bounded stack of active goals and sub-goals.
// Pushing a goal suspends the currently active one together with its step
// counters; popping restores exactly the counters captured at the matching
// push. The stack is the only place recursion depth is computed from; the
// executor never tracks depth on its own, so the two cannot drift.
//
// A GoalStack is owned by a single run's coordinator and is not safe for
// concurrent use.
type GoalStack struct {
	maxDepth  int
	active    *GoalFrame
	suspended []GoalFrame
}

// NewGoalStack creates a goal stack with the given depth bound. The bound
// is clamped to the 1–10 range; zero selects the default of 5.
func NewGoalStack(maxDepth int) *GoalStack {
	if maxDepth == 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxDepth < minMaxDepth {
		maxDepth = minMaxDepth
	}
	if maxDepth > maxMaxDepth {
		maxDepth = maxMaxDepth
	}
	return &GoalStack{maxDepth: maxDepth}
}

// Push makes goal the active goal, suspending the current one. The depth
// check happens before any mutation: a rejected push leaves the stack
// exactly as it was.
func (s *GoalStack) Push(goal string, totalSteps int) error {
	proposedDepth := len(s.suspended)
	if s.active != nil {
		proposedDepth++
	}
	if proposedDepth >= s.maxDepth {
		return ErrDepthExceeded
	}
	if s.active != nil {
		s.suspended = append(s.suspended, *s.active)
	}
	s.active = &GoalFrame{GoalText: goal, TotalSteps: totalSteps}
	return nil
}

// Pop removes the active goal and restores its parent, including the
// parent's (totalSteps, currentStepIndex) captured at the matching Push.
// It returns the text of the goal that was popped.
func (s *GoalStack) Pop() string {
	if s.active == nil {
		return ""
	}
	goalText := s.active.GoalText
	if n := len(s.suspended); n > 0 {
		frame := s.suspended[n-1]
		s.suspended = s.suspended[:n-1]
		s.active = &frame
	} else {
		s.active = nil
	}
	return goalText
}

// AdvanceStep increments the active goal's step index.
func (s *GoalStack) AdvanceStep() {
	if s.active != nil {
		s.active.CurrentStepIndex++
	}
}

// Depth returns the number of goals currently on the stack, counting the
// active one.
func (s *GoalStack) Depth() int {
	depth := len(s.suspended)
	if s.active != nil {
		depth++
	}
	return depth
}

// Active returns a copy of the active goal frame, or nil when idle.
func (s *GoalStack) Active() *GoalFrame {
	if s.active == nil {
		return nil
	}
	frame := *s.active
	return &frame
}

// StackState is the serializable form of a GoalStack, captured into run
// snapshots.
type StackState struct {
	MaxDepth  int         `json:"max_depth"`
	Active    *GoalFrame  `json:"active,omitempty"`
	Suspended []GoalFrame `json:"suspended,omitempty"`
}

// State captures the stack for serialization.
func (s *GoalStack) State() StackState {
	state := StackState{MaxDepth: s.maxDepth}
	if s.active != nil {
		frame := *s.active
		state.Active = &frame
	}
	state.Suspended = append([]GoalFrame(nil), s.suspended...)
	return state
}

// RestoreState replaces the stack contents with a previously captured
// state.
func (s *GoalStack) RestoreState(state StackState) {
	restored := NewGoalStack(state.MaxDepth)
	if state.Active != nil {
		frame := *state.Active
		restored.active = &frame
	}
	restored.suspended = append([]GoalFrame(nil), state.Suspended...)
	*s = *restored
}
