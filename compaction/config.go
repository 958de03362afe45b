package compaction

import (
	"fmt"
	"time"

	"github.com/youssefsiam38/agentcore/internal/logging"
	"github.com/youssefsiam38/agentcore/metrics"
	"github.com/youssefsiam38/agentcore/queue"
)

// Logger is the logging interface used by the compressor.
type Logger = logging.Logger

// Default configuration values.
const (
	DefaultTokenLimit      = 32000
	DefaultThresholdRatio  = 0.8
	DefaultMinMessages     = 4
	DefaultPreserveRatio   = 0.3
	DefaultMinRatio        = 0.05
	DefaultMaxRatio        = 0.9
	DefaultSummaryTimeout  = 120 * time.Second
	DefaultSummaryPriority = queue.PriorityHigh

	// MinPreserved is the smallest tail kept verbatim.
	MinPreserved = 2
)

// Config holds compressor configuration.
type Config struct {
	// TokenLimit is the context budget, in estimated tokens.
	// Default: 32000
	TokenLimit int

	// ThresholdRatio is the share of TokenLimit that triggers compression.
	// Default: 0.8
	ThresholdRatio float64

	// MinMessages is the shortest history eligible for automatic compression.
	// Default: 4
	MinMessages int

	// PreserveRatio is the share of the most recent messages kept verbatim.
	// At least MinPreserved messages are always kept.
	// Default: 0.3
	PreserveRatio float64

	// MinRatio and MaxRatio bound the accepted compressed/original token
	// ratio. Results outside the band are rejected.
	// Default: 0.05 and 0.9
	MinRatio float64
	MaxRatio float64

	// SummaryTimeout bounds the summarization request.
	// Default: 120s
	SummaryTimeout time.Duration

	// SummaryPriority is the admission priority of the summarization request.
	// Default: queue.PriorityHigh
	SummaryPriority queue.Priority

	// SummaryMaxChars truncates the summary text. Zero means unbounded.
	SummaryMaxChars int

	// SummarizeSystem folds system messages into the summary instead of
	// carrying them over unchanged.
	SummarizeSystem bool

	// DisableAuto turns off threshold-based triggering; only forced
	// compression runs.
	DisableAuto bool

	// Logger for compression events.
	// Default: no-op
	Logger Logger

	// Metrics receives compaction counters and timings.
	// Default: no-op
	Metrics metrics.Sink
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		TokenLimit:      DefaultTokenLimit,
		ThresholdRatio:  DefaultThresholdRatio,
		MinMessages:     DefaultMinMessages,
		PreserveRatio:   DefaultPreserveRatio,
		MinRatio:        DefaultMinRatio,
		MaxRatio:        DefaultMaxRatio,
		SummaryTimeout:  DefaultSummaryTimeout,
		SummaryPriority: DefaultSummaryPriority,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.TokenLimit == 0 {
		c.TokenLimit = DefaultTokenLimit
	}
	if c.ThresholdRatio == 0 {
		c.ThresholdRatio = DefaultThresholdRatio
	}
	if c.MinMessages == 0 {
		c.MinMessages = DefaultMinMessages
	}
	if c.PreserveRatio == 0 {
		c.PreserveRatio = DefaultPreserveRatio
	}
	if c.MinRatio == 0 {
		c.MinRatio = DefaultMinRatio
	}
	if c.MaxRatio == 0 {
		c.MaxRatio = DefaultMaxRatio
	}
	if c.SummaryTimeout == 0 {
		c.SummaryTimeout = DefaultSummaryTimeout
	}
	if c.SummaryPriority == 0 {
		c.SummaryPriority = DefaultSummaryPriority
	}
	c.Logger = logging.OrNop(c.Logger)
	c.Metrics = metrics.OrNop(c.Metrics)
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.TokenLimit <= 0 {
		return fmt.Errorf("%w: token_limit must be positive, got %d", ErrInvalidConfig, c.TokenLimit)
	}

	if c.ThresholdRatio <= 0 || c.ThresholdRatio > 1.0 {
		return fmt.Errorf("%w: threshold_ratio must be between 0 and 1, got %f", ErrInvalidConfig, c.ThresholdRatio)
	}

	if c.MinMessages < 1 {
		return fmt.Errorf("%w: min_messages must be at least 1, got %d", ErrInvalidConfig, c.MinMessages)
	}

	if c.PreserveRatio <= 0 || c.PreserveRatio >= 1.0 {
		return fmt.Errorf("%w: preserve_ratio must be between 0 and 1, got %f", ErrInvalidConfig, c.PreserveRatio)
	}

	if c.MinRatio < 0 || c.MaxRatio <= 0 {
		return fmt.Errorf("%w: ratio bounds must be positive, got [%f, %f]", ErrInvalidConfig, c.MinRatio, c.MaxRatio)
	}

	if c.MinRatio >= c.MaxRatio {
		return fmt.Errorf("%w: min_ratio (%f) must be less than max_ratio (%f)",
			ErrInvalidConfig, c.MinRatio, c.MaxRatio)
	}

	if c.SummaryTimeout < 0 {
		return fmt.Errorf("%w: summary_timeout must be non-negative, got %s", ErrInvalidConfig, c.SummaryTimeout)
	}

	if !c.SummaryPriority.IsValid() {
		return fmt.Errorf("%w: unknown summary_priority %d", ErrInvalidConfig, c.SummaryPriority)
	}

	if c.SummaryMaxChars < 0 {
		return fmt.Errorf("%w: summary_max_chars must be non-negative, got %d", ErrInvalidConfig, c.SummaryMaxChars)
	}

	return nil
}

// TriggerThreshold returns the estimated token count past which
// compression triggers.
func (c *Config) TriggerThreshold() int {
	return int(float64(c.TokenLimit) * c.ThresholdRatio)
}
