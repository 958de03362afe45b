package request

import (
	"fmt"
	"time"

	"github.com/youssefsiam38/agentcore/internal/logging"
	"github.com/youssefsiam38/agentcore/metrics"
)

// Logger is the logging interface used by the manager.
type Logger = logging.Logger

// Default configuration values
const (
	DefaultMaxConcurrent        = 5
	DefaultMaxQueueSize         = 100
	DefaultMaxRequestsPerWindow = 60
	DefaultRateWindow           = time.Minute
	DefaultTimeout              = 30 * time.Second
	DefaultMaxRetryAttempts     = 3
	DefaultRetryDelay           = time.Second
	DefaultDequeueTimeout       = time.Second
	DefaultMonitorInterval      = 60 * time.Second
	DefaultCompletedHistorySize = 1000
)

// Config holds configuration for the request manager.
type Config struct {
	// MaxConcurrent is the number of work items allowed to execute at once.
	// Default: 5
	MaxConcurrent int

	// MaxQueueSize is the admission queue depth checked at submission time.
	// Default: 100
	MaxQueueSize int

	// MaxRequestsPerWindow is how many submissions the rate limiter admits
	// within RateWindow.
	// Default: 60
	MaxRequestsPerWindow int

	// RateWindow is the sliding window of the rate limiter.
	// Default: 1 minute
	RateWindow time.Duration

	// DisableRateLimit turns the rate limiter off.
	DisableRateLimit bool

	// DefaultTimeout applies to work submitted without WithTimeout.
	// Default: 30 seconds
	DefaultTimeout time.Duration

	// MaxRetryAttempts is the retry budget for failed work. Timeouts are
	// never retried.
	// Default: 3
	MaxRetryAttempts int

	// RetryDelay is the base backoff; attempt n waits RetryDelay * n.
	// Default: 1 second
	RetryDelay time.Duration

	// DisableAutoRetry surfaces the first failure without retrying.
	DisableAutoRetry bool

	// Retryable, when set, decides whether a failure may be retried.
	// Failures it rejects are surfaced after the first attempt.
	Retryable func(err error) bool

	// DequeueTimeout bounds each wait on the admission queue so the worker
	// loop can observe shutdown.
	// Default: 1 second
	DequeueTimeout time.Duration

	// MonitorInterval is how often aggregate statistics are recomputed.
	// Default: 60 seconds
	MonitorInterval time.Duration

	// CompletedHistorySize caps the buffer of finished records kept for
	// status lookups.
	// Default: 1000
	CompletedHistorySize int

	// BlockingWorkers is the size of the pool that runs Blocking tasks.
	// Default: MaxConcurrent
	BlockingWorkers int

	// Logger for manager events.
	// Default: no-op
	Logger Logger

	// Metrics receives manager counters and gauges.
	// Default: no-op
	Metrics metrics.Sink
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent:        DefaultMaxConcurrent,
		MaxQueueSize:         DefaultMaxQueueSize,
		MaxRequestsPerWindow: DefaultMaxRequestsPerWindow,
		RateWindow:           DefaultRateWindow,
		DefaultTimeout:       DefaultTimeout,
		MaxRetryAttempts:     DefaultMaxRetryAttempts,
		RetryDelay:           DefaultRetryDelay,
		DequeueTimeout:       DefaultDequeueTimeout,
		MonitorInterval:      DefaultMonitorInterval,
		CompletedHistorySize: DefaultCompletedHistorySize,
		BlockingWorkers:      DefaultMaxConcurrent,
	}
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.MaxRequestsPerWindow == 0 {
		c.MaxRequestsPerWindow = DefaultMaxRequestsPerWindow
	}
	if c.RateWindow == 0 {
		c.RateWindow = DefaultRateWindow
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = DefaultTimeout
	}
	if c.MaxRetryAttempts == 0 {
		c.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.DequeueTimeout == 0 {
		c.DequeueTimeout = DefaultDequeueTimeout
	}
	if c.MonitorInterval == 0 {
		c.MonitorInterval = DefaultMonitorInterval
	}
	if c.CompletedHistorySize == 0 {
		c.CompletedHistorySize = DefaultCompletedHistorySize
	}
	if c.BlockingWorkers == 0 {
		c.BlockingWorkers = c.MaxConcurrent
	}
	c.Logger = logging.OrNop(c.Logger)
	c.Metrics = metrics.OrNop(c.Metrics)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("%w: MaxConcurrent must be at least 1, got %d", ErrInvalidConfig, c.MaxConcurrent)
	}
	if c.MaxQueueSize < 1 {
		return fmt.Errorf("%w: MaxQueueSize must be at least 1, got %d", ErrInvalidConfig, c.MaxQueueSize)
	}
	if !c.DisableRateLimit && c.MaxRequestsPerWindow < 1 {
		return fmt.Errorf("%w: MaxRequestsPerWindow must be at least 1, got %d", ErrInvalidConfig, c.MaxRequestsPerWindow)
	}
	if c.RateWindow < 0 {
		return fmt.Errorf("%w: RateWindow must not be negative", ErrInvalidConfig)
	}
	if c.DefaultTimeout < 0 {
		return fmt.Errorf("%w: DefaultTimeout must not be negative", ErrInvalidConfig)
	}
	if c.MaxRetryAttempts < 0 {
		return fmt.Errorf("%w: MaxRetryAttempts must not be negative, got %d", ErrInvalidConfig, c.MaxRetryAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: RetryDelay must not be negative", ErrInvalidConfig)
	}
	if c.CompletedHistorySize < 0 {
		return fmt.Errorf("%w: CompletedHistorySize must not be negative", ErrInvalidConfig)
	}
	if c.BlockingWorkers < 0 {
		return fmt.Errorf("%w: BlockingWorkers must not be negative", ErrInvalidConfig)
	}
	return nil
}
