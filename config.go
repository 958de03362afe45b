package agentcore

import (
	"fmt"
	"time"

	"github.com/youssefsiam38/agentcore/compaction"
	"github.com/youssefsiam38/agentcore/history"
	"github.com/youssefsiam38/agentcore/internal/logging"
	"github.com/youssefsiam38/agentcore/metrics"
	"github.com/youssefsiam38/agentcore/queue"
	"github.com/youssefsiam38/agentcore/request"
	"github.com/youssefsiam38/agentcore/storage"
	"github.com/youssefsiam38/agentcore/streaming"
	"github.com/youssefsiam38/agentcore/tool"
	"github.com/youssefsiam38/agentcore/types"
)

// Logger is the structured logging interface accepted by the client.
// *slog.Logger satisfies it.
type Logger = logging.Logger

// Config holds configuration for the Client.
type Config struct {
	// Model answers every chat turn and compression request (required).
	Model types.ModelFunc

	// Stream answers ChatStream turns. When nil, ChatStream calls Model and
	// replays the reply as events.
	Stream streaming.StreamFunc

	// ModelName is recorded in history metadata when the response does not
	// name its model.
	ModelName string

	// SystemPrompt is prepended to the context when it has no system
	// message.
	SystemPrompt string

	// SessionID identifies this conversation in the archive.
	// Default: a random UUID
	SessionID string

	// RecentWindow is how many curated messages are sent when compression
	// does not apply or fails.
	// Default: 20
	RecentWindow int

	// ChatTimeout bounds each model call.
	// Default: 60 seconds
	ChatTimeout time.Duration

	// ChatPriority is the queue priority of chat turns.
	// Default: queue.PriorityNormal
	ChatPriority queue.Priority

	// Component configurations. Nil selects each package's defaults. The
	// client's Logger and Metrics are used where a component sets none.
	Request    *request.Config
	History    *history.Config
	Compaction *compaction.Config
	Tools      *tool.TrackerConfig

	// Archive, when set, receives the entries that compression removes.
	Archive storage.Archiver

	// Logger for client events.
	// Default: no-op
	Logger Logger

	// Metrics is shared by every component.
	// Default: no-op
	Metrics metrics.Sink
}

// DefaultConfig returns the default client configuration. Model must still
// be set.
func DefaultConfig() *Config {
	return &Config{
		RecentWindow: DefaultRecentWindow,
		ChatTimeout:  DefaultChatTimeout,
		ChatPriority: queue.PriorityNormal,
	}
}

// ApplyDefaults fills zero values with defaults. Component configs are
// copied so the caller's values are never mutated.
func (c *Config) ApplyDefaults() {
	if c.RecentWindow == 0 {
		c.RecentWindow = DefaultRecentWindow
	}
	if c.ChatTimeout == 0 {
		c.ChatTimeout = DefaultChatTimeout
	}
	if c.ChatPriority == 0 {
		c.ChatPriority = queue.PriorityNormal
	}
	c.Logger = logging.OrNop(c.Logger)
	c.Metrics = metrics.OrNop(c.Metrics)

	c.Request = copyOrDefault(c.Request, request.DefaultConfig)
	c.History = copyOrDefault(c.History, history.DefaultConfig)
	c.Compaction = copyOrDefault(c.Compaction, compaction.DefaultConfig)
	c.Tools = copyOrDefault(c.Tools, tool.DefaultTrackerConfig)

	if c.Request.Logger == nil {
		c.Request.Logger = c.Logger
	}
	if c.Request.Metrics == nil {
		c.Request.Metrics = c.Metrics
	}
	if c.History.Logger == nil {
		c.History.Logger = c.Logger
	}
	if c.History.Metrics == nil {
		c.History.Metrics = c.Metrics
	}
	if c.Compaction.Logger == nil {
		c.Compaction.Logger = c.Logger
	}
	if c.Compaction.Metrics == nil {
		c.Compaction.Metrics = c.Metrics
	}
	if c.Tools.Logger == nil {
		c.Tools.Logger = c.Logger
	}
	if c.Tools.Metrics == nil {
		c.Tools.Metrics = c.Metrics
	}
}

func copyOrDefault[T any](p *T, def func() *T) *T {
	if p == nil {
		return def()
	}
	cp := *p
	return &cp
}

// Validate checks the configuration for errors. Component configs are
// validated by their constructors.
func (c *Config) Validate() error {
	if c.Model == nil {
		return ErrModelRequired
	}
	if c.RecentWindow < 1 {
		return fmt.Errorf("%w: RecentWindow must be at least 1, got %d", ErrInvalidConfig, c.RecentWindow)
	}
	if c.ChatTimeout < 0 {
		return fmt.Errorf("%w: ChatTimeout must be non-negative, got %s", ErrInvalidConfig, c.ChatTimeout)
	}
	if !c.ChatPriority.IsValid() {
		return fmt.Errorf("%w: invalid ChatPriority %d", ErrInvalidConfig, int(c.ChatPriority))
	}
	return nil
}
