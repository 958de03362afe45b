package request

import (
	"maps"
	"sync"
	"time"

	"github.com/youssefsiam38/agentcore/queue"
	"github.com/youssefsiam38/agentcore/runstate"
)

// Priority orders submitted work.
type Priority = queue.Priority

// Priorities, lowest to highest.
const (
	PriorityLow    = queue.PriorityLow
	PriorityNormal = queue.PriorityNormal
	PriorityHigh   = queue.PriorityHigh
	PriorityUrgent = queue.PriorityUrgent
)

// Attempt is the immutable record of one execution of a unit of work.
type Attempt struct {
	CorrelationID string
	Number        int
	State         runstate.WorkState
	StartedAt     time.Time
	CompletedAt   time.Time
	Err           error
}

// Duration returns how long the attempt ran.
func (a Attempt) Duration() time.Duration {
	return a.CompletedAt.Sub(a.StartedAt)
}

// Record is a point-in-time snapshot of a unit of work.
type Record struct {
	ID          string
	Name        string
	Kind        Kind
	Priority    Priority
	State       runstate.WorkState
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Timeout     time.Duration
	RetryCount  int
	Result      any
	Err         error
	Metadata    map[string]any
	Attempts    []Attempt
}

// Duration returns the execution time of the latest attempt, or zero if it
// has not finished.
func (r Record) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// QueueWait returns the time between creation and the first start.
func (r Record) QueueWait() time.Duration {
	if len(r.Attempts) > 0 {
		return r.Attempts[0].StartedAt.Sub(r.CreatedAt)
	}
	if r.StartedAt.IsZero() {
		return 0
	}
	return r.StartedAt.Sub(r.CreatedAt)
}

// Handle identifies submitted work and signals its completion.
type Handle struct {
	ID string
	w  *work
}

// Done returns a channel closed once the work reaches a final state.
func (h *Handle) Done() <-chan struct{} {
	return h.w.done
}

// Record returns a snapshot of the work.
func (h *Handle) Record() Record {
	return h.w.snapshot()
}

// work is the manager's mutable view of one submission. All transitions go
// through its methods so they can be checked against the state machine.
type work struct {
	id        string
	task      Task
	priority  Priority
	timeout   time.Duration
	metadata  map[string]any
	createdAt time.Time

	mu          sync.Mutex
	state       runstate.WorkState
	startedAt   time.Time
	completedAt time.Time
	retryCount  int
	result      any
	err         error
	attempts    []Attempt

	done     chan struct{}
	doneOnce sync.Once
}

func (w *work) snapshot() Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Record{
		ID:          w.id,
		Name:        w.task.name,
		Kind:        w.task.kind,
		Priority:    w.priority,
		State:       w.state,
		CreatedAt:   w.createdAt,
		StartedAt:   w.startedAt,
		CompletedAt: w.completedAt,
		Timeout:     w.timeout,
		RetryCount:  w.retryCount,
		Result:      w.result,
		Err:         w.err,
		Metadata:    maps.Clone(w.metadata),
		Attempts:    append([]Attempt(nil), w.attempts...),
	}
}

// begin moves queued work to executing.
func (w *work) begin(at time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.CanTransitionTo(runstate.WorkExecuting) {
		return false
	}
	w.state = runstate.WorkExecuting
	w.startedAt = at
	w.completedAt = time.Time{}
	return true
}

// end records the outcome of the running attempt. The work is not yet
// final; finish closes it.
func (w *work) end(state runstate.WorkState, result any, err error, at time.Time) (retryCount int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.CanTransitionTo(state) {
		return w.retryCount
	}
	w.state = state
	w.completedAt = at
	if state == runstate.WorkCompleted {
		w.result = result
		w.err = nil
	} else {
		w.err = err
	}
	w.attempts = append(w.attempts, Attempt{
		CorrelationID: w.id,
		Number:        len(w.attempts) + 1,
		State:         state,
		StartedAt:     w.startedAt,
		CompletedAt:   at,
		Err:           err,
	})
	return w.retryCount
}

// requeue moves failed work back to queued for another attempt.
func (w *work) requeue() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.CanTransitionTo(runstate.WorkQueued) {
		return false
	}
	w.state = runstate.WorkQueued
	w.retryCount++
	w.err = nil
	return true
}

// fail sets the final error. Queued work that never ran again moves to
// failed as well.
func (w *work) fail(err error, at time.Time) {
	w.mu.Lock()
	if w.state == runstate.WorkQueued {
		w.state = runstate.WorkFailed
		w.completedAt = at
	}
	w.err = err
	w.mu.Unlock()
}

// finish releases everyone waiting on done.
func (w *work) finish() {
	w.doneOnce.Do(func() { close(w.done) })
}

func (w *work) outcome() (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == runstate.WorkCompleted {
		return w.result, nil
	}
	return nil, w.err
}
