// Package request executes submitted work under bounded concurrency, a
// sliding-window admission rate, per-item deadlines and linear-backoff
// retries.
//
// Work flows through a single worker loop:
//
//	Submit -> admission checks -> priority queue -> slot -> execute -> record
//
// Queue depth and the rate limiter are checked together at submission time;
// a rejected submission returns an *AdmissionError and never enters the
// queue. Each admitted unit gets a one-shot completion channel that Await
// blocks on.
package request

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/youssefsiam38/agentcore/maintenance"
	"github.com/youssefsiam38/agentcore/metrics"
	"github.com/youssefsiam38/agentcore/queue"
	"github.com/youssefsiam38/agentcore/ratelimit"
	"github.com/youssefsiam38/agentcore/runstate"
)

// errDeadline marks an attempt abandoned at its per-item deadline.
var errDeadline = errors.New("deadline elapsed")

// Option configures a single submission.
type Option func(*submitOptions)

type submitOptions struct {
	priority    Priority
	timeout     time.Duration
	waitTimeout time.Duration
	metadata    map[string]any
}

// WithPriority sets the queue priority. Default: PriorityNormal.
func WithPriority(p Priority) Option {
	return func(o *submitOptions) { o.priority = p }
}

// WithTimeout sets the per-attempt deadline. Default: Config.DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *submitOptions) { o.timeout = d }
}

// WithWaitTimeout bounds how long Request waits for the result. It is
// independent of the work's own timeout. Default: wait on ctx only.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *submitOptions) { o.waitTimeout = d }
}

// WithMetadata attaches free-form metadata to the work record.
func WithMetadata(md map[string]any) Option {
	return func(o *submitOptions) { o.metadata = maps.Clone(md) }
}

// Manager runs submitted tasks.
type Manager struct {
	config  *Config
	logger  Logger
	metrics metrics.Sink

	queue   *queue.Queue[*work]
	limiter *ratelimit.Limiter
	sem     *semaphore.Weighted
	pool    *blockingPool
	monitor *maintenance.Monitor

	// admitMu serialises the depth check, the limiter and the enqueue.
	admitMu sync.Mutex

	mu        sync.Mutex
	active    map[string]*work
	pending   map[string]*time.Timer
	waiting   map[string]*work
	completed []*work

	started  atomic.Bool
	stopping atomic.Bool
	cancel   context.CancelFunc
	loopDone chan struct{}
	execWG   *sync.WaitGroup

	stats managerStats
}

// New creates a manager. A nil config uses DefaultConfig().
func New(config *Config) (*Manager, error) {
	cfg := DefaultConfig()
	if config != nil {
		c := *config
		cfg = &c
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	limit := cfg.MaxRequestsPerWindow
	if cfg.DisableRateLimit {
		limit = 0
	}

	m := &Manager{
		config:    cfg,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		queue:     queue.New[*work](),
		limiter:   ratelimit.New(limit, cfg.RateWindow),
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		active:    make(map[string]*work),
		pending:   make(map[string]*time.Timer),
		waiting:   make(map[string]*work),
		completed: make([]*work, 0, min(cfg.CompletedHistorySize, 64)),
	}
	m.stats.lastSample = time.Now()
	m.monitor = maintenance.NewMonitor(m.collectStats, &maintenance.MonitorConfig{
		Interval:    cfg.MonitorInterval,
		SkipInitial: true,
	})
	return m, nil
}

// Config returns a copy of the manager configuration.
func (m *Manager) Config() Config {
	return *m.config
}

// Start launches the worker loop and the statistics monitor.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	m.stopping.Store(false)

	ctx, m.cancel = context.WithCancel(ctx)
	m.pool = newBlockingPool(m.config.BlockingWorkers)
	m.execWG = &sync.WaitGroup{}
	m.loopDone = make(chan struct{})
	go m.loop(ctx, m.loopDone, m.pool, m.execWG)

	if err := m.monitor.Start(ctx); err != nil {
		m.logger.Warn("request monitor did not start", "error", err)
	}

	m.logger.Info("request manager started",
		"max_concurrent", m.config.MaxConcurrent,
		"max_queue_size", m.config.MaxQueueSize,
		"rate_limit", m.config.MaxRequestsPerWindow,
		"rate_window", m.config.RateWindow,
	)
	return nil
}

// Stop halts the worker loop, abandons in-flight work, and fails every
// queued item and pending retry with ErrManagerStopped. If ctx ends before
// in-flight executions return, Stop still releases the manager and returns
// ctx's error; those executions fail with ErrManagerStopped when they do.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.started.Load() {
		return ErrNotStarted
	}
	// Under mu so a failure handler either sees stopping or has its retry
	// registered before the sweep below.
	m.mu.Lock()
	m.stopping.Store(true)
	m.mu.Unlock()
	m.cancel()

	var err error
	select {
	case <-m.loopDone:
	case <-ctx.Done():
		err = ctx.Err()
	}
	abandoned := m.abandonStranded()

	if err == nil {
		wg := m.execWG
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	abandoned += m.abandonStranded()

	_ = m.monitor.Stop(ctx)
	m.pool.close()
	m.started.Store(false)

	if err != nil {
		m.logger.Warn("request manager stopped with executions outstanding", "abandoned", abandoned, "error", err)
		return fmt.Errorf("request manager stop: %w", err)
	}
	m.logger.Info("request manager stopped", "abandoned", abandoned)
	return nil
}

// abandonStranded fails everything queued or backing off, since none of it
// will run again.
func (m *Manager) abandonStranded() int {
	m.mu.Lock()
	stranded := make([]*work, 0, len(m.pending))
	for id, timer := range m.pending {
		timer.Stop()
		stranded = append(stranded, m.waiting[id])
		delete(m.pending, id)
		delete(m.waiting, id)
	}
	m.mu.Unlock()
	stranded = append(stranded, m.queue.Drain()...)

	now := time.Now()
	for _, w := range stranded {
		m.abandon(w, now)
	}
	return len(stranded)
}

func (m *Manager) abandon(w *work, at time.Time) {
	w.fail(&ExecutionError{ID: w.id, Name: w.task.name, Attempts: len(w.snapshot().Attempts), Err: ErrManagerStopped}, at)
	m.stats.failed.Add(1)
	m.metrics.IncCounter("request.failed", 1)
	m.settle(w)
}

// IsRunning reports whether the worker loop is running.
func (m *Manager) IsRunning() bool {
	return m.started.Load()
}

// Submit admits a task. It fails immediately with an *AdmissionError if the
// queue is at its maximum depth or the rate limiter has no capacity.
// Work submitted before Start waits in the queue.
func (m *Manager) Submit(task Task, opts ...Option) (*Handle, error) {
	if !task.valid() {
		return nil, fmt.Errorf("%w: %q has no function", ErrInvalidTask, task.name)
	}
	if m.stopping.Load() {
		return nil, ErrManagerStopped
	}

	so := m.options(opts)
	if !so.priority.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, int(so.priority))
	}

	w := &work{
		id:        uuid.New().String(),
		task:      task,
		priority:  so.priority,
		timeout:   so.timeout,
		metadata:  so.metadata,
		createdAt: time.Now(),
		state:     runstate.WorkQueued,
		done:      make(chan struct{}),
	}

	m.admitMu.Lock()
	if size := m.queue.Len(); size >= m.config.MaxQueueSize {
		m.admitMu.Unlock()
		m.stats.rejectedQueue.Add(1)
		m.metrics.IncCounter("request.rejected_queue_full", 1)
		m.logger.Warn("request rejected", "reason", "queue_full", "name", task.name, "queue_size", size)
		return nil, &AdmissionError{Reason: ErrQueueFull, QueueSize: size, MaxQueueSize: m.config.MaxQueueSize}
	}
	if !m.limiter.Allow() {
		wait := m.limiter.WaitTime()
		m.admitMu.Unlock()
		m.stats.rejectedRate.Add(1)
		m.metrics.IncCounter("request.rejected_rate_limited", 1)
		m.logger.Warn("request rejected", "reason", "rate_limited", "name", task.name, "retry_after", wait)
		return nil, &AdmissionError{Reason: ErrRateLimited, RetryAfter: wait}
	}
	m.queue.Put(w, w.priority)
	queued := m.queue.Len()
	m.admitMu.Unlock()

	m.stats.submitted.Add(1)
	m.stats.observeQueued(queued)
	m.metrics.IncCounter("request.submitted", 1)
	m.logger.Debug("request queued", "id", w.id, "name", task.name, "priority", w.priority.String())

	return &Handle{ID: w.id, w: w}, nil
}

// Await blocks until the work behind h is final, waitTimeout elapses, or
// ctx is done. A waitTimeout <= 0 waits on ctx alone.
//
// A completed unit returns its result. A failed unit returns an
// *ExecutionError, and a timed-out unit a *TimeoutError. ErrWaitTimeout is
// returned when the caller's wait runs out first; the work keeps running.
func (m *Manager) Await(ctx context.Context, h *Handle, waitTimeout time.Duration) (any, error) {
	if h == nil || h.w == nil {
		return nil, ErrUnknownHandle
	}

	var expired <-chan time.Time
	if waitTimeout > 0 {
		timer := time.NewTimer(waitTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-h.w.done:
		return h.w.outcome()
	case <-expired:
		return nil, fmt.Errorf("%w: %s after %s", ErrWaitTimeout, h.ID, waitTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Request submits task and waits for its result.
func (m *Manager) Request(ctx context.Context, task Task, opts ...Option) (any, error) {
	h, err := m.Submit(task, opts...)
	if err != nil {
		return nil, err
	}
	return m.Await(ctx, h, m.options(opts).waitTimeout)
}

// Do runs fn through the manager and returns its typed result.
func Do[T any](ctx context.Context, m *Manager, name string, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var zero T
	v, err := m.Request(ctx, Async(name, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}), opts...)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("request: %s returned %T, want %T", name, v, zero)
	}
	return t, nil
}

// Status returns a snapshot of the work with the given id, looking at
// executing, queued, backing-off and recently finished work in turn.
func (m *Manager) Status(id string) (Record, bool) {
	m.mu.Lock()
	if w, ok := m.active[id]; ok {
		m.mu.Unlock()
		return w.snapshot(), true
	}
	if w, ok := m.waiting[id]; ok {
		m.mu.Unlock()
		return w.snapshot(), true
	}
	var found *work
	for i := len(m.completed) - 1; i >= 0; i-- {
		if m.completed[i].id == id {
			found = m.completed[i]
			break
		}
	}
	m.mu.Unlock()
	if found != nil {
		return found.snapshot(), true
	}

	if w, ok := m.queue.Find(func(w *work) bool { return w.id == id }); ok {
		return w.snapshot(), true
	}
	return Record{}, false
}

// Completed returns snapshots of the finished-work buffer, oldest first.
func (m *Manager) Completed() []Record {
	m.mu.Lock()
	ws := append([]*work(nil), m.completed...)
	m.mu.Unlock()

	out := make([]Record, len(ws))
	for i, w := range ws {
		out[i] = w.snapshot()
	}
	return out
}

func (m *Manager) options(opts []Option) submitOptions {
	so := submitOptions{
		priority: PriorityNormal,
		timeout:  m.config.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&so)
	}
	if so.timeout <= 0 {
		so.timeout = m.config.DefaultTimeout
	}
	return so
}

// loop is the single worker. It takes a concurrency slot before dequeuing
// so the item chosen is the highest priority present when the slot frees.
func (m *Manager) loop(ctx context.Context, done chan struct{}, pool *blockingPool, wg *sync.WaitGroup) {
	defer close(done)

	for {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			return
		}

		w, ok := m.queue.Get(ctx, m.config.DequeueTimeout)
		if !ok {
			m.sem.Release(1)
			if ctx.Err() != nil {
				return
			}
			continue
		}

		wg.Add(1)
		go m.execute(ctx, pool, wg, w)
	}
}

func (m *Manager) execute(ctx context.Context, pool *blockingPool, wg *sync.WaitGroup, w *work) {
	defer wg.Done()

	if !w.begin(time.Now()) {
		m.sem.Release(1)
		return
	}
	m.mu.Lock()
	m.active[w.id] = w
	active := len(m.active)
	m.mu.Unlock()
	m.stats.observeActive(active)
	m.metrics.SetGauge("request.active", float64(active))

	start := time.Now()
	result, err := m.invoke(ctx, pool, w)
	end := time.Now()

	m.mu.Lock()
	delete(m.active, w.id)
	m.mu.Unlock()
	m.sem.Release(1)
	m.metrics.Observe("request.duration", end.Sub(start))

	switch {
	case err == nil:
		w.end(runstate.WorkCompleted, result, nil, end)
		m.stats.completed.Add(1)
		m.stats.execNanos.Add(int64(end.Sub(start)))
		m.metrics.IncCounter("request.completed", 1)
		m.logger.Debug("request completed", "id", w.id, "name", w.task.name, "duration", end.Sub(start))
		m.settle(w)

	case errors.Is(err, errDeadline):
		w.end(runstate.WorkTimeout, nil, &TimeoutError{ID: w.id, Name: w.task.name, Timeout: w.timeout}, end)
		m.stats.timedOut.Add(1)
		m.metrics.IncCounter("request.timed_out", 1)
		m.logger.Warn("request timed out", "id", w.id, "name", w.task.name, "timeout", w.timeout)
		m.settle(w)

	default:
		m.handleFailure(w, err, end)
	}
}

// invoke races the task against its deadline.
func (m *Manager) invoke(ctx context.Context, pool *blockingPool, w *work) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	out := make(chan outcome, 1)

	switch w.task.kind {
	case KindAsync:
		go func() {
			v, err := runSafely(func() (any, error) { return w.task.async(callCtx) })
			out <- outcome{v, err}
		}()
	case KindBlocking:
		// If no pool worker frees up in time the select below reports the
		// deadline.
		pool.submit(callCtx, func() {
			v, err := runSafely(w.task.blocking)
			out <- outcome{v, err}
		})
	}

	select {
	case o := <-out:
		if o.err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrManagerStopped, o.err)
		}
		return o.value, o.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ErrManagerStopped
		}
		return nil, errDeadline
	}
}

func runSafely(fn func() (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}

func (m *Manager) handleFailure(w *work, cause error, at time.Time) {
	retryCount := w.end(runstate.WorkFailed, nil, cause, at)

	if m.config.DisableAutoRetry || retryCount >= m.config.MaxRetryAttempts ||
		errors.Is(cause, ErrManagerStopped) ||
		(m.config.Retryable != nil && !m.config.Retryable(cause)) {
		m.failFinal(w, retryCount+1, cause, at)
		return
	}

	delay := m.config.RetryDelay * time.Duration(retryCount+1)
	m.mu.Lock()
	if m.stopping.Load() {
		m.mu.Unlock()
		m.failFinal(w, retryCount+1, fmt.Errorf("%w: %w", ErrManagerStopped, cause), at)
		return
	}
	m.waiting[w.id] = w
	m.pending[w.id] = time.AfterFunc(delay, func() { m.requeue(w) })
	m.mu.Unlock()

	m.stats.retried.Add(1)
	m.metrics.IncCounter("request.retried", 1)
	m.logger.Warn("request failed, retrying",
		"id", w.id,
		"name", w.task.name,
		"attempt", retryCount+1,
		"delay", delay,
		"error", cause,
	)
}

func (m *Manager) failFinal(w *work, attempts int, cause error, at time.Time) {
	w.fail(&ExecutionError{ID: w.id, Name: w.task.name, Attempts: attempts, Err: cause}, at)
	m.stats.failed.Add(1)
	m.metrics.IncCounter("request.failed", 1)
	m.logger.Error("request failed", "id", w.id, "name", w.task.name, "attempts", attempts, "error", cause)
	m.settle(w)
}

// requeue puts retried work back at its original priority. It holds mu
// while enqueuing so Stop either cancels it or finds it in the queue.
func (m *Manager) requeue(w *work) {
	m.mu.Lock()
	if _, ok := m.pending[w.id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.pending, w.id)
	delete(m.waiting, w.id)

	if m.stopping.Load() {
		m.mu.Unlock()
		m.abandon(w, time.Now())
		return
	}
	if w.requeue() {
		m.queue.Put(w, w.priority)
	}
	m.mu.Unlock()
}

// settle releases waiters and moves w into the completed buffer.
func (m *Manager) settle(w *work) {
	w.finish()

	m.mu.Lock()
	m.completed = append(m.completed, w)
	if over := len(m.completed) - m.config.CompletedHistorySize; over > 0 {
		m.completed = m.completed[over:]
	}
	m.mu.Unlock()
}

// QueueInfo describes the manager's current capacity.
type QueueInfo struct {
	Queued         int
	MaxQueueSize   int
	Active         int
	MaxConcurrent  int
	PendingRetries int
	RateLimit      int
	RateWindow     time.Duration
	RateRemaining  int
	RateWaitTime   time.Duration
	Running        bool
}

// QueueInfo returns the current queue and capacity figures.
func (m *Manager) QueueInfo() QueueInfo {
	m.mu.Lock()
	active := len(m.active)
	pending := len(m.pending)
	m.mu.Unlock()

	limit, window := m.limiter.Limit()
	return QueueInfo{
		Queued:         m.queue.Len(),
		MaxQueueSize:   m.config.MaxQueueSize,
		Active:         active,
		MaxConcurrent:  m.config.MaxConcurrent,
		PendingRetries: pending,
		RateLimit:      limit,
		RateWindow:     window,
		RateRemaining:  m.limiter.Remaining(),
		RateWaitTime:   m.limiter.WaitTime(),
		Running:        m.started.Load(),
	}
}

// collectStats is the periodic pass. It copies what it needs under the lock
// and does the arithmetic outside it.
func (m *Manager) collectStats(ctx context.Context) {
	m.mu.Lock()
	active := len(m.active)
	pending := len(m.pending)
	if cap(m.completed) > 2*m.config.CompletedHistorySize {
		m.completed = append(make([]*work, 0, len(m.completed)), m.completed...)
	}
	m.mu.Unlock()
	queued := m.queue.Len()

	m.stats.observeActive(active)
	m.stats.observeQueued(queued)
	throughput := m.stats.sampleThroughput(time.Now())

	m.metrics.SetGauge("request.active", float64(active))
	m.metrics.SetGauge("request.queued", float64(queued))
	m.metrics.SetGauge("request.pending_retries", float64(pending))
	m.metrics.SetGauge("request.peak_active", float64(m.stats.peakActive.Load()))
	m.metrics.SetGauge("request.peak_queued", float64(m.stats.peakQueued.Load()))
	m.metrics.SetGauge("request.throughput_per_minute", throughput)

	m.logger.Debug("request manager stats",
		"active", active,
		"queued", queued,
		"pending_retries", pending,
		"throughput_per_minute", throughput,
	)
}

// RefreshStats runs the statistics pass immediately.
func (m *Manager) RefreshStats(ctx context.Context) {
	m.monitor.RunOnce(ctx)
}

// Stats is a summary of manager activity.
type Stats struct {
	Submitted           int64
	RejectedQueueFull   int64
	RejectedRateLimited int64
	Completed           int64
	Failed              int64
	TimedOut            int64
	Retried             int64
	PeakActive          int64
	PeakQueued          int64
	AverageExecution    time.Duration
	ThroughputPerMinute float64
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	completed := m.stats.completed.Load()
	var avg time.Duration
	if completed > 0 {
		avg = time.Duration(m.stats.execNanos.Load() / completed)
	}
	return Stats{
		Submitted:           m.stats.submitted.Load(),
		RejectedQueueFull:   m.stats.rejectedQueue.Load(),
		RejectedRateLimited: m.stats.rejectedRate.Load(),
		Completed:           completed,
		Failed:              m.stats.failed.Load(),
		TimedOut:            m.stats.timedOut.Load(),
		Retried:             m.stats.retried.Load(),
		PeakActive:          m.stats.peakActive.Load(),
		PeakQueued:          m.stats.peakQueued.Load(),
		AverageExecution:    avg,
		ThroughputPerMinute: math.Float64frombits(m.stats.throughput.Load()),
	}
}

type managerStats struct {
	submitted     atomic.Int64
	rejectedQueue atomic.Int64
	rejectedRate  atomic.Int64
	completed     atomic.Int64
	failed        atomic.Int64
	timedOut      atomic.Int64
	retried       atomic.Int64
	execNanos     atomic.Int64
	peakActive    atomic.Int64
	peakQueued    atomic.Int64
	throughput    atomic.Uint64

	// sampleMu guards the throughput sampling state.
	sampleMu     sync.Mutex
	lastSample   time.Time
	lastFinished int64
}

func (s *managerStats) observeActive(n int) { storeMax(&s.peakActive, int64(n)) }
func (s *managerStats) observeQueued(n int) { storeMax(&s.peakQueued, int64(n)) }

func storeMax(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n <= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}

// sampleThroughput returns finished work per minute since the last sample.
func (s *managerStats) sampleThroughput(now time.Time) float64 {
	s.sampleMu.Lock()
	defer s.sampleMu.Unlock()

	finished := s.completed.Load() + s.failed.Load() + s.timedOut.Load()
	elapsed := now.Sub(s.lastSample)
	var rate float64
	if elapsed > 0 {
		rate = float64(finished-s.lastFinished) / elapsed.Minutes()
	}
	s.lastSample = now
	s.lastFinished = finished
	s.throughput.Store(math.Float64bits(rate))
	return rate
}
