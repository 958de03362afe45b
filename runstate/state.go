// Package runstate defines the lifecycle state machines for queued work and
// tool calls.
//
// Work state machine:
//
//	queued -> executing              (worker dequeues and acquires a slot)
//	executing -> completed           (target returned a result)
//	executing -> failed              (target returned an error or panicked)
//	executing -> timeout             (deadline elapsed before the target returned)
//	failed -> queued                 (retry scheduled, budget permitting)
//	queued -> failed                 (manager stopped before the work ran)
//
// completed and timeout are always final. failed is final once no retry is
// scheduled.
package runstate

import (
	"database/sql/driver"
	"fmt"
)

// WorkState is the lifecycle state of one unit of queued work.
type WorkState string

const (
	// WorkQueued indicates the work is waiting in the admission queue.
	WorkQueued WorkState = "queued"

	// WorkExecuting indicates the target is running under its deadline.
	WorkExecuting WorkState = "executing"

	// WorkCompleted indicates the target returned a result.
	WorkCompleted WorkState = "completed"

	// WorkFailed indicates the target returned an error.
	// It may be followed by a retry.
	WorkFailed WorkState = "failed"

	// WorkTimeout indicates the deadline elapsed. Timeouts are never retried.
	WorkTimeout WorkState = "timeout"
)

// AllWorkStates returns every work state.
func AllWorkStates() []WorkState {
	return []WorkState{
		WorkQueued,
		WorkExecuting,
		WorkCompleted,
		WorkFailed,
		WorkTimeout,
	}
}

// IsValid returns true if the state is a known WorkState.
func (s WorkState) IsValid() bool {
	switch s {
	case WorkQueued, WorkExecuting, WorkCompleted, WorkFailed, WorkTimeout:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for states that resolve the caller's wait.
// failed is terminal unless a retry moves it back to queued.
func (s WorkState) IsTerminal() bool {
	switch s {
	case WorkCompleted, WorkFailed, WorkTimeout:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if moving from s to target is allowed.
func (s WorkState) CanTransitionTo(target WorkState) bool {
	switch s {
	case WorkQueued:
		return target == WorkExecuting || target == WorkFailed
	case WorkExecuting:
		return target == WorkCompleted || target == WorkFailed || target == WorkTimeout
	case WorkFailed:
		return target == WorkQueued
	default:
		return false
	}
}

// String returns the string representation of the state.
func (s WorkState) String() string {
	return string(s)
}

// Value implements driver.Valuer for database serialization.
func (s WorkState) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements sql.Scanner for database deserialization.
func (s *WorkState) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("runstate: cannot scan type %T into WorkState", src)
	}
	state := WorkState(raw)
	if !state.IsValid() {
		return fmt.Errorf("runstate: invalid work state %q", raw)
	}
	*s = state
	return nil
}

// Transition is a work state change that can be validated.
type Transition struct {
	From WorkState
	To   WorkState
}

// Validate returns an error if the transition is invalid.
func (t Transition) Validate() error {
	if !t.From.IsValid() {
		return fmt.Errorf("runstate: invalid source state %q", t.From)
	}
	if !t.To.IsValid() {
		return fmt.Errorf("runstate: invalid target state %q", t.To)
	}
	if !t.From.CanTransitionTo(t.To) {
		return fmt.Errorf("runstate: invalid transition from %q to %q", t.From, t.To)
	}
	return nil
}

// ValidTransitions returns every allowed work transition.
func ValidTransitions() []Transition {
	return []Transition{
		{From: WorkQueued, To: WorkExecuting},
		{From: WorkQueued, To: WorkFailed},
		{From: WorkExecuting, To: WorkCompleted},
		{From: WorkExecuting, To: WorkFailed},
		{From: WorkExecuting, To: WorkTimeout},
		{From: WorkFailed, To: WorkQueued},
	}
}
