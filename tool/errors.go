package tool

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors
var (
	// ErrInvalidTool is returned when registering a nil or malformed tool.
	ErrInvalidTool = errors.New("invalid tool")

	// ErrDuplicateTool is returned when a tool name is already registered.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrToolNotFound is returned when scheduling an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidArguments is matched by every *ValidationError.
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrToolExecution is matched by every *ExecutionError.
	ErrToolExecution = errors.New("tool execution failed")

	// ErrCallNotFound is returned by Cancel for unknown or finished calls.
	ErrCallNotFound = errors.New("tool call not found")

	// ErrCallCancelled is the error of a call that ended cancelled.
	ErrCallCancelled = errors.New("tool call cancelled")

	// ErrTrackerStopped is returned when scheduling on a stopped tracker.
	ErrTrackerStopped = errors.New("tool tracker stopped")

	// ErrInvalidConfig is returned when the tracker configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError reports arguments that do not match a tool's schema.
type ValidationError struct {
	Tool string

	// Field is the dotted path of the offending value, empty for the
	// document itself.
	Field string

	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("tool %s: invalid arguments: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("tool %s: invalid argument %q: %s", e.Tool, e.Field, e.Reason)
}

// Unwrap returns ErrInvalidArguments.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidArguments
}

// ExecutionError wraps a failure raised while a tool ran.
type ExecutionError struct {
	CallID string
	Tool   string

	// Timeout is set when the call exceeded its deadline.
	Timeout time.Duration

	Err error
}

func (e *ExecutionError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("tool %s (call %s) timed out after %s", e.Tool, e.CallID, e.Timeout)
	}
	return fmt.Sprintf("tool %s (call %s) failed: %v", e.Tool, e.CallID, e.Err)
}

// Unwrap returns ErrToolExecution and the underlying error.
func (e *ExecutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrToolExecution}
	}
	return []error{ErrToolExecution, e.Err}
}

// IsTimeout reports whether the call exceeded its deadline.
func (e *ExecutionError) IsTimeout() bool {
	return e.Timeout > 0 || errors.Is(e.Err, context.DeadlineExceeded)
}

// PanicError carries a value recovered from a panicking tool.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("tool panicked: %v", e.Value)
}
