// Package anthropic adapts the Anthropic Messages API to types.ModelFunc.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/youssefsiam38/agentcore/internal/logging"
	"github.com/youssefsiam38/agentcore/tool"
	"github.com/youssefsiam38/agentcore/types"
)

// Logger is the structured logger used by the provider.
type Logger = logging.Logger

const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 4096
)

// ErrInvalidConfig is returned when provider configuration is invalid.
var ErrInvalidConfig = errors.New("invalid provider configuration")

// MessageCreator is the part of the SDK client the provider calls.
// *anthropic.MessageService satisfies it.
type MessageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Config holds provider settings.
type Config struct {
	// Model is the Anthropic model id.
	// Default: claude-sonnet-4-5
	Model string

	// MaxTokens caps each response.
	// Default: 4096
	MaxTokens int64

	// Temperature, when set, overrides the API default.
	Temperature *float64

	// Tools, when set, are advertised on every request.
	Tools *tool.Registry

	// Logger for request events.
	// Default: no-op
	Logger Logger
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	c.Logger = logging.OrNop(c.Logger)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.MaxTokens < 1 {
		return fmt.Errorf("%w: MaxTokens must be at least 1, got %d", ErrInvalidConfig, c.MaxTokens)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 1) {
		return fmt.Errorf("%w: Temperature must be within [0, 1], got %v", ErrInvalidConfig, *c.Temperature)
	}
	return nil
}

// Provider sends conversations to the Messages API.
type Provider struct {
	messages MessageCreator
	config   Config
	logger   Logger
}

// New creates a provider over an SDK message service.
func New(messages MessageCreator, cfg *Config) (*Provider, error) {
	if messages == nil {
		return nil, fmt.Errorf("%w: message client is required", ErrInvalidConfig)
	}
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Provider{messages: messages, config: c, logger: c.Logger}, nil
}

// NewFromAPIKey creates an SDK client for apiKey and wraps it. An empty
// key falls back to the SDK's ANTHROPIC_API_KEY lookup.
func NewFromAPIKey(apiKey string, cfg *Config) (*Provider, error) {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return New(&client.Messages, cfg)
}

// Model returns the provider as a model function.
func (p *Provider) Model() types.ModelFunc {
	return p.Generate
}

// Name returns the configured model id.
func (p *Provider) Name() string { return p.config.Model }

// Generate sends messages and converts the reply. A response format
// carried by ctx is requested as a forced tool call and its input is
// returned as the structured result.
func (p *Provider) Generate(ctx context.Context, messages []types.Message) (*types.Response, error) {
	format := types.ResponseFormatFrom(ctx)
	params, err := p.requestParams(messages, format)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("sending messages request", "model", p.config.Model, "messages", len(params.Messages))

	msg, err := p.messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("messages request failed: %w", err)
	}
	resp := ConvertResponse(msg)
	extractStructured(resp, format)
	return resp, nil
}

func (p *Provider) requestParams(messages []types.Message, format *types.ResponseFormat) (anthropic.MessageNewParams, error) {
	params := p.BuildParams(messages)
	if format == nil {
		return params, nil
	}
	if err := ApplyResponseFormat(&params, format); err != nil {
		return anthropic.MessageNewParams{}, err
	}
	return params, nil
}

// StructuredToolName is the tool name used for a response format without
// a name.
const StructuredToolName = "structured_output"

// ApplyResponseFormat advertises format as a tool and forces the model to
// call it, so the reply is a JSON object matching the schema.
func ApplyResponseFormat(params *anthropic.MessageNewParams, format *types.ResponseFormat) error {
	var schema struct {
		Properties any      `json:"properties"`
		Required   []string `json:"required"`
	}
	if len(format.Schema) > 0 {
		if err := json.Unmarshal(format.Schema, &schema); err != nil {
			return fmt.Errorf("%w: response format schema: %w", ErrInvalidConfig, err)
		}
	}

	name := structuredName(format)
	param := anthropic.ToolParam{
		Name: name,
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: schema.Properties,
			Required:   schema.Required,
		},
	}
	if format.Description != "" {
		param.Description = anthropic.String(format.Description)
	}
	params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &param})
	params.ToolChoice = anthropic.ToolChoiceParamOfTool(name)
	return nil
}

func structuredName(format *types.ResponseFormat) string {
	if format.Name != "" {
		return format.Name
	}
	return StructuredToolName
}

// extractStructured copies the input of the forced tool call into
// resp.Structured.
func extractStructured(resp *types.Response, format *types.ResponseFormat) {
	if format == nil {
		return
	}
	name := structuredName(format)
	for _, use := range resp.Message.ToolUses() {
		if use.ToolName == name {
			resp.Structured = append(json.RawMessage(nil), use.ToolInputRaw...)
			return
		}
	}
}

// BuildParams converts a conversation into request parameters. System
// messages become the system prompt; tool results are sent as user turns.
// Consecutive messages with the same API role are merged.
func (p *Provider) BuildParams(messages []types.Message) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: p.config.MaxTokens,
	}

	var system []string
	for _, msg := range messages {
		if msg.Role == types.RoleSystem {
			if text := msg.Text(); text != "" {
				system = append(system, text)
			}
			continue
		}

		role := anthropic.MessageParamRoleUser
		if msg.Role == types.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		blocks := convertBlocks(msg.Content)
		if len(blocks) == 0 {
			continue
		}

		if n := len(params.Messages); n > 0 && params.Messages[n-1].Role == role {
			params.Messages[n-1].Content = append(params.Messages[n-1].Content, blocks...)
			continue
		}
		params.Messages = append(params.Messages, anthropic.MessageParam{Role: role, Content: blocks})
	}

	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	if p.config.Temperature != nil {
		params.Temperature = anthropic.Float(*p.config.Temperature)
	}
	if p.config.Tools != nil && p.config.Tools.Count() > 0 {
		params.Tools = p.config.Tools.ToAnthropicToolUnions()
	}
	return params
}

func convertBlocks(content []types.ContentBlock) []anthropic.ContentBlockParamUnion {
	out := make([]anthropic.ContentBlockParamUnion, 0, len(content))
	for _, block := range content {
		switch block.Type {
		case types.ContentTypeText:
			if block.Text == "" {
				continue
			}
			out = append(out, anthropic.NewTextBlock(block.Text))

		case types.ContentTypeToolUse:
			var input any
			if len(block.ToolInputRaw) > 0 {
				_ = json.Unmarshal(block.ToolInputRaw, &input)
			}
			// The API requires an object, not null.
			if input == nil {
				input = map[string]any{}
			}
			out = append(out, anthropic.NewToolUseBlock(block.ToolUseID, input, block.ToolName))

		case types.ContentTypeToolResult:
			out = append(out, anthropic.NewToolResultBlock(block.ToolResultID, block.ToolContent, block.IsError))
		}
	}
	return out
}

// ConvertResponse converts an API message into a response.
func ConvertResponse(msg *anthropic.Message) *types.Response {
	out := types.Message{Role: types.RoleAssistant}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content = append(out.Content, types.ContentBlock{Type: types.ContentTypeText, Text: b.Text})
		case anthropic.ToolUseBlock:
			out.Content = append(out.Content, types.ContentBlock{
				Type:         types.ContentTypeToolUse,
				ToolUseID:    b.ID,
				ToolName:     b.Name,
				ToolInputRaw: append(json.RawMessage(nil), b.Input...),
			})
		}
	}

	usage := &types.Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	out.Usage = usage
	if msg.ID != "" {
		out.Metadata = map[string]any{"anthropic_message_id": msg.ID}
	}

	return &types.Response{
		Message:    out,
		StopReason: string(msg.StopReason),
		Usage:      usage,
		Model:      string(msg.Model),
	}
}

// IsRetryable reports whether err is worth retrying: rate limits, server
// errors, and anything that is not an API error at all.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return true
	}
	return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
}
