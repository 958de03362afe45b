package agentcore

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/youssefsiam38/agentcore/hooks"
	"github.com/youssefsiam38/agentcore/queue"
	"github.com/youssefsiam38/agentcore/storage"
	"github.com/youssefsiam38/agentcore/tool"
	"github.com/youssefsiam38/agentcore/types"
)

// Option is a functional option for configuring a Client
type Option func(*Client) error

// WithTools registers tools with the client
func WithTools(tools ...tool.Tool) Option {
	return func(c *Client) error {
		if err := c.tools.RegisterAll(tools...); err != nil {
			return NewClientError("WithTools", err)
		}
		return nil
	}
}

// WithArchive sets the archiver that receives compressed-away entries
func WithArchive(a storage.Archiver) Option {
	return func(c *Client) error {
		c.archive = a
		return nil
	}
}

// WithHooks lets the caller register hooks before the client is used
func WithHooks(register func(r *hooks.Registry)) Option {
	return func(c *Client) error {
		register(c.hooks)
		return nil
	}
}

// WithLoggingHooks attaches the built-in logging hooks using the client logger
func WithLoggingHooks(verbose bool) Option {
	return func(c *Client) error {
		hooks.NewLoggingHooks(c.logger, verbose).Register(c.hooks)
		return nil
	}
}

// WithMetricsHooks attaches the built-in metrics hooks using the client sink
func WithMetricsHooks() Option {
	return func(c *Client) error {
		hooks.NewMetricsHooks(c.metrics).Register(c.hooks)
		return nil
	}
}

// ChatOption tunes a single Chat call
type ChatOption func(*chatOptions)

type chatOptions struct {
	priority     queue.Priority
	timeout      time.Duration
	history      bool
	metadata     map[string]any
	systemPrompt *string
	format       *types.ResponseFormat
	schema       *tool.ToolSchema
}

// WithPriority sets the queue priority of this turn
func WithPriority(p queue.Priority) ChatOption {
	return func(o *chatOptions) { o.priority = p }
}

// WithTimeout bounds this turn's model call
func WithTimeout(d time.Duration) ChatOption {
	return func(o *chatOptions) { o.timeout = d }
}

// WithoutHistory sends only the system prompt and the prompt, and records
// nothing
func WithoutHistory() ChatOption {
	return func(o *chatOptions) { o.history = false }
}

// WithMetadata attaches metadata to the request record and to the recorded
// messages
func WithMetadata(md map[string]any) ChatOption {
	return func(o *chatOptions) { o.metadata = maps.Clone(md) }
}

// WithSystemPrompt overrides the configured system prompt for this turn
func WithSystemPrompt(prompt string) ChatOption {
	return func(o *chatOptions) { o.systemPrompt = &prompt }
}

// WithStructuredOutput asks the model for a JSON object matching schema
// instead of free text. The object is validated, returned in
// Response.Structured, and recorded as the assistant message.
func WithStructuredOutput(name string, schema tool.ToolSchema) ChatOption {
	return func(o *chatOptions) {
		raw, _ := json.Marshal(schema)
		o.format = &types.ResponseFormat{Name: name, Schema: raw}
		o.schema = &schema
	}
}
