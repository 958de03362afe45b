package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/agentcore/internal/logging"
	"github.com/youssefsiam38/agentcore/metrics"
	"github.com/youssefsiam38/agentcore/runstate"
)

// Logger is the logging interface used by the tracker.
type Logger = logging.Logger

// Default tracker configuration values.
const (
	DefaultMaxConcurrent = 3
	DefaultCallTimeout   = 30 * time.Second
)

// TrackerConfig holds configuration for a Tracker.
type TrackerConfig struct {
	// MaxConcurrent is the number of calls allowed to execute at once.
	// Further calls wait in FIFO order.
	// Default: 3
	MaxConcurrent int

	// CallTimeout bounds each call's execution.
	// Default: 30s
	CallTimeout time.Duration

	// DisableValidation skips schema checks in Schedule.
	DisableValidation bool

	// Logger for call lifecycle events.
	// Default: no-op
	Logger Logger

	// Metrics receives tool counters and timings.
	// Default: no-op
	Metrics metrics.Sink

	// OnFinish, when set, receives every call's final result before
	// waiters are released.
	OnFinish func(Result)
}

// DefaultTrackerConfig returns the default tracker configuration.
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		MaxConcurrent: DefaultMaxConcurrent,
		CallTimeout:   DefaultCallTimeout,
	}
}

// ApplyDefaults fills zero values with defaults.
func (c *TrackerConfig) ApplyDefaults() {
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	c.Logger = logging.OrNop(c.Logger)
	c.Metrics = metrics.OrNop(c.Metrics)
}

// Validate checks the configuration for errors.
func (c *TrackerConfig) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("%w: MaxConcurrent must be at least 1, got %d", ErrInvalidConfig, c.MaxConcurrent)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("%w: CallTimeout must be non-negative, got %s", ErrInvalidConfig, c.CallTimeout)
	}
	return nil
}

// Result is the record of a tool call.
type Result struct {
	ID        string
	Tool      string
	Arguments json.RawMessage
	State     runstate.ToolCallState

	ScheduledAt time.Time
	StartedAt   time.Time
	EndedAt     time.Time

	Output string
	Err    error
}

// Duration returns how long the call executed. Zero for calls that never
// started.
func (r Result) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Call is a scheduled tool invocation.
type Call struct {
	id     string
	tool   Tool
	args   json.RawMessage
	parent context.Context

	mu     sync.Mutex
	result Result
	cancel context.CancelFunc

	done chan struct{}
	once sync.Once
}

// ID returns the call id.
func (c *Call) ID() string { return c.id }

// Done is closed once the call reaches a terminal state.
func (c *Call) Done() <-chan struct{} { return c.done }

// Wait blocks until the call finishes or ctx is done. The returned error
// is the call's own error: a *ExecutionError or ErrCallCancelled.
func (c *Call) Wait(ctx context.Context) (Result, error) {
	select {
	case <-c.done:
		r := c.snapshot()
		return r, r.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (c *Call) snapshot() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.result
	r.Arguments = slices.Clone(r.Arguments)
	return r
}

func (c *Call) transition(to runstate.ToolCallState) bool {
	if !c.result.State.CanTransitionTo(to) {
		return false
	}
	c.result.State = to
	return true
}

// Tracker runs tool calls with bounded concurrency. Calls beyond
// MaxConcurrent wait in FIFO order and are promoted as running calls end.
type Tracker struct {
	registry  *Registry
	validator *Validator
	config    *TrackerConfig
	logger    Logger
	metrics   metrics.Sink

	mu      sync.Mutex
	active  map[string]*Call
	queued  []*Call
	stopped bool
	wg      sync.WaitGroup

	scheduled  atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	cancelled  atomic.Int64
	peakActive atomic.Int64
}

// NewTracker creates a tracker over registry. A nil config uses
// DefaultTrackerConfig().
func NewTracker(registry *Registry, config *TrackerConfig) (*Tracker, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidConfig)
	}

	cfg := DefaultTrackerConfig()
	if config != nil {
		c := *config
		cfg = &c
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Tracker{
		registry:  registry,
		validator: NewValidator(),
		config:    cfg,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		active:    make(map[string]*Call),
	}, nil
}

// Schedule validates args and starts or queues a call to the named tool.
// Values on ctx stay visible to the tool; its cancellation does not, use
// Cancel for that.
func (t *Tracker) Schedule(ctx context.Context, name string, args json.RawMessage) (*Call, error) {
	tool, ok := t.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if !t.config.DisableValidation {
		if err := t.validator.Validate(name, tool.InputSchema(), args); err != nil {
			t.metrics.IncCounter("tool.invalid_arguments", 1)
			return nil, err
		}
	}

	c := &Call{
		id:     uuid.New().String(),
		tool:   tool,
		args:   slices.Clone(args),
		parent: context.WithoutCancel(ctx),
		done:   make(chan struct{}),
	}
	c.result = Result{
		ID:          c.id,
		Tool:        name,
		Arguments:   c.args,
		State:       runstate.ToolCallQueued,
		ScheduledAt: time.Now(),
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil, ErrTrackerStopped
	}
	t.scheduled.Add(1)
	if len(t.active) < t.config.MaxConcurrent {
		t.startLocked(c)
	} else {
		t.queued = append(t.queued, c)
		t.logger.Debug("tool call queued", "call_id", c.id, "tool", name, "position", len(t.queued))
	}
	t.gaugesLocked()
	t.mu.Unlock()

	t.metrics.IncCounter("tool.scheduled", 1)
	return c, nil
}

// startLocked moves c to the active set and runs it. Caller holds t.mu.
func (t *Tracker) startLocked(c *Call) {
	ctx, cancel := context.WithTimeout(
		withCallInfo(c.parent, CallInfo{CallID: c.id, Tool: c.result.Tool}),
		t.config.CallTimeout,
	)

	c.mu.Lock()
	c.transition(runstate.ToolCallExecuting)
	c.result.StartedAt = time.Now()
	c.cancel = cancel
	c.mu.Unlock()

	t.active[c.id] = c
	storeMax(&t.peakActive, int64(len(t.active)))

	t.wg.Add(1)
	go t.run(ctx, cancel, c)
}

type outcome struct {
	output string
	err    error
}

func (t *Tracker) run(ctx context.Context, cancel context.CancelFunc, c *Call) {
	defer t.wg.Done()
	defer cancel()

	out := make(chan outcome, 1)
	go func() {
		output, err := execSafely(ctx, c.tool, c.args)
		out <- outcome{output, err}
	}()

	// A tool that returned cleanly wins over a context that ended after it.
	var o outcome
	var ctxErr error
	select {
	case o = <-out:
		if o.err != nil {
			ctxErr = ctx.Err()
		}
	case <-ctx.Done():
		ctxErr = ctx.Err()
	}

	state := runstate.ToolCallSuccess
	var err error
	switch {
	case errors.Is(ctxErr, context.Canceled):
		state = runstate.ToolCallCancelled
		err = fmt.Errorf("%w: %w", ErrCallCancelled, context.Canceled)
	case errors.Is(ctxErr, context.DeadlineExceeded):
		state = runstate.ToolCallError
		err = &ExecutionError{CallID: c.id, Tool: c.result.Tool, Timeout: t.config.CallTimeout, Err: context.DeadlineExceeded}
	case o.err != nil:
		state = runstate.ToolCallError
		err = &ExecutionError{CallID: c.id, Tool: c.result.Tool, Err: o.err}
	}

	t.finish(c, state, o.output, err)
}

func execSafely(ctx context.Context, tool Tool, args json.RawMessage) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return tool.Execute(ctx, args)
}

// finish records the terminal state, releases the slot and promotes the
// next queued call.
func (t *Tracker) finish(c *Call, state runstate.ToolCallState, output string, err error) {
	c.mu.Lock()
	if !c.transition(state) {
		c.mu.Unlock()
		return
	}
	c.result.EndedAt = time.Now()
	if state == runstate.ToolCallSuccess {
		c.result.Output = output
	}
	c.result.Err = err
	r := c.result
	c.mu.Unlock()

	t.mu.Lock()
	delete(t.active, c.id)
	for !t.stopped && len(t.active) < t.config.MaxConcurrent && len(t.queued) > 0 {
		next := t.queued[0]
		t.queued[0] = nil
		t.queued = t.queued[1:]
		t.startLocked(next)
	}
	t.gaugesLocked()
	t.mu.Unlock()

	t.record(r)
	c.once.Do(func() { close(c.done) })
}

func (t *Tracker) record(r Result) {
	switch r.State {
	case runstate.ToolCallSuccess:
		t.succeeded.Add(1)
		t.metrics.IncCounter("tool.succeeded", 1)
	case runstate.ToolCallError:
		t.failed.Add(1)
		t.metrics.IncCounter("tool.failed", 1)
	case runstate.ToolCallCancelled:
		t.cancelled.Add(1)
		t.metrics.IncCounter("tool.cancelled", 1)
	}
	if d := r.Duration(); d > 0 {
		t.metrics.Observe("tool.duration", d)
	}

	args := []any{"call_id", r.ID, "tool", r.Tool, "state", string(r.State), "duration", r.Duration()}
	if r.Err != nil && r.State == runstate.ToolCallError {
		t.logger.Warn("tool call failed", append(args, "error", r.Err)...)
	} else {
		t.logger.Debug("tool call finished", args...)
	}

	if t.config.OnFinish != nil {
		t.config.OnFinish(r)
	}
}

func (t *Tracker) gaugesLocked() {
	t.metrics.SetGauge("tool.active", float64(len(t.active)))
	t.metrics.SetGauge("tool.queued", float64(len(t.queued)))
}

// Cancel cancels a queued or executing call. A queued call ends without
// running; an executing call has its context cancelled.
func (t *Tracker) Cancel(id string) error {
	t.mu.Lock()
	if c, ok := t.active[id]; ok {
		t.mu.Unlock()
		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		cancel()
		return nil
	}
	for i, c := range t.queued {
		if c.id == id {
			t.queued = slices.Delete(t.queued, i, i+1)
			t.gaugesLocked()
			t.mu.Unlock()
			t.cancelQueued(c)
			return nil
		}
	}
	t.mu.Unlock()
	return fmt.Errorf("%w: %s", ErrCallNotFound, id)
}

func (t *Tracker) cancelQueued(c *Call) {
	c.mu.Lock()
	if !c.transition(runstate.ToolCallCancelled) {
		c.mu.Unlock()
		return
	}
	c.result.EndedAt = time.Now()
	c.result.Err = fmt.Errorf("%w: %w", ErrCallCancelled, context.Canceled)
	r := c.result
	c.mu.Unlock()

	t.record(r)
	c.once.Do(func() { close(c.done) })
}

// Stop cancels every queued and executing call and waits for the
// executing ones to resolve. Later Schedule calls fail with
// ErrTrackerStopped.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.stopped = true
	queued := t.queued
	t.queued = nil
	active := make([]*Call, 0, len(t.active))
	for _, c := range t.active {
		active = append(active, c)
	}
	t.gaugesLocked()
	t.mu.Unlock()

	for _, c := range queued {
		t.cancelQueued(c)
	}
	for _, c := range active {
		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		cancel()
	}
	t.wg.Wait()

	t.logger.Info("tool tracker stopped", "cancelled_queued", len(queued), "cancelled_active", len(active))
}

// Restart lets a stopped tracker accept calls again. It is a no-op on a
// tracker that was never stopped.
func (t *Tracker) Restart() {
	t.mu.Lock()
	t.stopped = false
	t.mu.Unlock()
}

// Status returns the record of an executing or queued call. Finished calls
// are not retained; use Call.Wait for their result.
func (t *Tracker) Status(id string) (Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.active[id]; ok {
		return c.snapshot(), true
	}
	for _, c := range t.queued {
		if c.id == id {
			return c.snapshot(), true
		}
	}
	return Result{}, false
}

// Active returns the executing calls, oldest start first.
func (t *Tracker) Active() []Result {
	t.mu.Lock()
	out := make([]Result, 0, len(t.active))
	for _, c := range t.active {
		out = append(out, c.snapshot())
	}
	t.mu.Unlock()

	slices.SortFunc(out, func(a, b Result) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}

// Queued returns the waiting calls in the order they will start.
func (t *Tracker) Queued() []Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Result, len(t.queued))
	for i, c := range t.queued {
		out[i] = c.snapshot()
	}
	return out
}

// TrackerStats summarises tracker activity.
type TrackerStats struct {
	Scheduled  int64
	Succeeded  int64
	Failed     int64
	Cancelled  int64
	Active     int
	Queued     int
	PeakActive int64
}

// Stats returns lifetime counters and current occupancy.
func (t *Tracker) Stats() TrackerStats {
	t.mu.Lock()
	active, queued := len(t.active), len(t.queued)
	t.mu.Unlock()

	return TrackerStats{
		Scheduled:  t.scheduled.Load(),
		Succeeded:  t.succeeded.Load(),
		Failed:     t.failed.Load(),
		Cancelled:  t.cancelled.Load(),
		Active:     active,
		Queued:     queued,
		PeakActive: t.peakActive.Load(),
	}
}

func storeMax(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n <= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}
