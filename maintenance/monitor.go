// Package maintenance provides background services for agentcore components.
//
// This package includes:
//   - Monitor: runs a periodic pass (statistics, pruning) on a fixed interval
package maintenance

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultMonitorInterval is how often a monitor runs its pass by default.
const DefaultMonitorInterval = 60 * time.Second

// TickFunc is one monitor pass. It must return promptly.
type TickFunc func(ctx context.Context)

// MonitorConfig holds configuration for a monitor.
type MonitorConfig struct {
	// Interval is how often to run the pass.
	// Default: 60 seconds
	Interval time.Duration

	// SkipInitial disables the pass normally run right after Start.
	SkipInitial bool
}

// DefaultMonitorConfig returns the default monitor configuration.
func DefaultMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		Interval: DefaultMonitorInterval,
	}
}

// Monitor calls a TickFunc periodically until stopped.
type Monitor struct {
	tick   TickFunc
	config *MonitorConfig

	started atomic.Bool
	ticks   atomic.Int64
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewMonitor creates a monitor for tick.
func NewMonitor(tick TickFunc, config *MonitorConfig) *Monitor {
	if config == nil {
		config = DefaultMonitorConfig()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultMonitorInterval
	}

	return &Monitor{
		tick:   tick,
		config: config,
	}
}

// Start begins running passes.
// It returns immediately and runs the loop in a goroutine.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx)

	return nil
}

// Stop stops the loop and waits for the current pass to return, or for ctx
// to be done. The monitor can be started again either way.
func (m *Monitor) Stop(ctx context.Context) error {
	if !m.started.Load() {
		return ErrNotStarted
	}

	m.cancel()
	defer m.started.Store(false)
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs a single pass synchronously.
func (m *Monitor) RunOnce(ctx context.Context) {
	m.ticks.Add(1)
	m.tick(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	if !m.config.SkipInitial {
		m.RunOnce(ctx)
	}

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// IsRunning returns true if the monitor loop is running.
func (m *Monitor) IsRunning() bool {
	return m.started.Load()
}

// Ticks returns the number of passes run so far.
func (m *Monitor) Ticks() int64 {
	return m.ticks.Load()
}
