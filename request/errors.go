package request

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by the request manager.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAdmissionRejected is matched by every synchronous submission rejection.
	ErrAdmissionRejected = errors.New("admission rejected")

	// ErrQueueFull is returned when the admission queue is at its maximum depth.
	ErrQueueFull = errors.New("queue full")

	// ErrRateLimited is returned when the rate limiter has no capacity.
	ErrRateLimited = errors.New("rate limited")

	// ErrExecutionFailed is matched by work that failed after its retries.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrExecutionTimeout is matched by work whose deadline elapsed.
	ErrExecutionTimeout = errors.New("execution timed out")

	// ErrWaitTimeout is returned when the caller's own wait elapses first.
	ErrWaitTimeout = errors.New("wait timed out")

	// ErrManagerStopped is returned for work submitted to, or still queued in,
	// a stopped manager.
	ErrManagerStopped = errors.New("request manager stopped")

	// ErrAlreadyStarted is returned when Start() is called twice.
	ErrAlreadyStarted = errors.New("request manager already started")

	// ErrNotStarted is returned when Stop() is called before Start().
	ErrNotStarted = errors.New("request manager not started")

	// ErrInvalidTask is returned when a task has no function.
	ErrInvalidTask = errors.New("invalid task")

	// ErrInvalidPriority is returned for priorities outside low..urgent.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrUnknownHandle is returned when awaiting a nil handle.
	ErrUnknownHandle = errors.New("unknown handle")
)

// AdmissionError reports a submission rejected before it entered the queue.
type AdmissionError struct {
	// Reason is ErrQueueFull or ErrRateLimited.
	Reason error

	QueueSize    int
	MaxQueueSize int

	// RetryAfter is the limiter's wait time when rate limited.
	RetryAfter time.Duration
}

func (e *AdmissionError) Error() string {
	if errors.Is(e.Reason, ErrRateLimited) {
		return fmt.Sprintf("admission rejected: rate limited, retry after %s", e.RetryAfter)
	}
	return fmt.Sprintf("admission rejected: queue full (%d/%d)", e.QueueSize, e.MaxQueueSize)
}

// Unwrap exposes both ErrAdmissionRejected and the specific reason.
func (e *AdmissionError) Unwrap() []error {
	return []error{ErrAdmissionRejected, e.Reason}
}

// ExecutionError reports work whose target failed on its final attempt.
type ExecutionError struct {
	ID       string
	Name     string
	Attempts int
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed: %s (%s) after %d attempt(s): %v", e.Name, e.ID, e.Attempts, e.Err)
}

// Unwrap exposes ErrExecutionFailed and the target's error.
func (e *ExecutionError) Unwrap() []error {
	return []error{ErrExecutionFailed, e.Err}
}

// TimeoutError reports work abandoned at its deadline.
type TimeoutError struct {
	ID      string
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timed out: %s (%s) after %s", e.Name, e.ID, e.Timeout)
}

// Unwrap exposes ErrExecutionTimeout and context.DeadlineExceeded.
func (e *TimeoutError) Unwrap() []error {
	return []error{ErrExecutionTimeout, context.DeadlineExceeded}
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}
