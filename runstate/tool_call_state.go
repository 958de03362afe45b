package runstate

import (
	"database/sql/driver"
	"fmt"
)

// ToolCallState is the lifecycle state of a tracked tool invocation.
//
//	queued -> executing      (a concurrency slot freed up)
//	queued -> cancelled      (cancelled before it started)
//	executing -> success
//	executing -> error
//	executing -> cancelled   (its context was cancelled)
type ToolCallState string

const (
	// ToolCallQueued indicates the call is waiting in the FIFO overflow queue.
	ToolCallQueued ToolCallState = "queued"

	// ToolCallExecuting indicates the tool is running.
	ToolCallExecuting ToolCallState = "executing"

	// ToolCallSuccess indicates the tool returned output.
	ToolCallSuccess ToolCallState = "success"

	// ToolCallError indicates the tool failed or timed out.
	ToolCallError ToolCallState = "error"

	// ToolCallCancelled indicates the call was cancelled by the caller.
	ToolCallCancelled ToolCallState = "cancelled"
)

// IsValid returns true if the state is a known ToolCallState.
func (s ToolCallState) IsValid() bool {
	switch s {
	case ToolCallQueued, ToolCallExecuting, ToolCallSuccess, ToolCallError, ToolCallCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the call has finished.
func (s ToolCallState) IsTerminal() bool {
	switch s {
	case ToolCallSuccess, ToolCallError, ToolCallCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if moving from s to target is allowed.
func (s ToolCallState) CanTransitionTo(target ToolCallState) bool {
	switch s {
	case ToolCallQueued:
		return target == ToolCallExecuting || target == ToolCallCancelled
	case ToolCallExecuting:
		return target.IsTerminal()
	default:
		return false
	}
}

// String returns the string representation of the state.
func (s ToolCallState) String() string {
	return string(s)
}

// Value implements driver.Valuer for database serialization.
func (s ToolCallState) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements sql.Scanner for database deserialization.
func (s *ToolCallState) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("runstate: cannot scan type %T into ToolCallState", src)
	}
	state := ToolCallState(raw)
	if !state.IsValid() {
		return fmt.Errorf("runstate: invalid tool call state %q", raw)
	}
	*s = state
	return nil
}
