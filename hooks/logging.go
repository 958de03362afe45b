package hooks

import (
	"context"

	"github.com/youssefsiam38/agentcore/compaction"
	"github.com/youssefsiam38/agentcore/internal/logging"
	"github.com/youssefsiam38/agentcore/metrics"
	"github.com/youssefsiam38/agentcore/runstate"
	"github.com/youssefsiam38/agentcore/tool"
	"github.com/youssefsiam38/agentcore/types"
)

// Logger is the structured logger used by the logging hooks.
type Logger = logging.Logger

// LoggingHooks provides built-in logging hooks for observability. Verbose
// mode logs every message role and tool payload at debug level.
type LoggingHooks struct {
	logger  Logger
	verbose bool
}

// NewLoggingHooks creates logging hooks with the provided logger
func NewLoggingHooks(logger Logger, verbose bool) *LoggingHooks {
	return &LoggingHooks{logger: logging.OrNop(logger), verbose: verbose}
}

// Register attaches every logging hook to r.
func (h *LoggingHooks) Register(r *Registry) {
	r.OnBeforeRequest(h.BeforeRequest)
	r.OnAfterResponse(h.AfterResponse)
	r.OnBeforeCompaction(h.BeforeCompaction)
	r.OnAfterCompaction(h.AfterCompaction)
	r.OnToolCall(h.ToolCall)
}

// BeforeRequest logs before sending messages to the model
func (h *LoggingHooks) BeforeRequest(_ context.Context, messages []types.Message) error {
	h.logger.Info("sending request", "messages", len(messages))
	if h.verbose {
		for i, msg := range messages {
			h.logger.Debug("request message", "index", i, "role", string(msg.Role), "chars", len(msg.Text()))
		}
	}
	return nil
}

// AfterResponse logs after receiving a response
func (h *LoggingHooks) AfterResponse(_ context.Context, response *types.Response) error {
	args := []any{"stop_reason", response.StopReason, "model", response.Model}
	if response.Usage != nil {
		args = append(args,
			"input_tokens", response.Usage.InputTokens,
			"output_tokens", response.Usage.OutputTokens,
		)
	}
	h.logger.Info("received response", args...)
	return nil
}

// BeforeCompaction logs before history compression
func (h *LoggingHooks) BeforeCompaction(_ context.Context, messages []types.Message) error {
	h.logger.Info("starting compression", "messages", len(messages))
	return nil
}

// AfterCompaction logs the compression outcome
func (h *LoggingHooks) AfterCompaction(_ context.Context, outcome *compaction.Outcome) error {
	args := []any{
		"status", string(outcome.Status),
		"messages_before", outcome.OriginalMessages,
		"messages_after", outcome.CompressedMessages,
		"tokens_before", outcome.OriginalTokens,
		"tokens_after", outcome.CompressedTokens,
		"ratio", outcome.Ratio,
		"duration", outcome.Duration,
	}
	if outcome.Status.IsFailure() {
		h.logger.Warn("compression failed", append(args, "error", outcome.Err)...)
		return nil
	}
	h.logger.Info("compression complete", args...)
	return nil
}

// ToolCall logs tool execution
func (h *LoggingHooks) ToolCall(_ context.Context, result tool.Result) error {
	args := []any{"tool", result.Tool, "call_id", result.ID, "state", string(result.State), "duration", result.Duration()}
	if h.verbose {
		args = append(args, "input", string(result.Arguments), "output", preview(result.Output, 100))
	}
	if result.State == runstate.ToolCallError {
		h.logger.Warn("tool call failed", append(args, "error", result.Err)...)
		return nil
	}
	h.logger.Info("tool call finished", args...)
	return nil
}

func preview(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}

// MetricsHooks records per-turn token and tool metrics into a sink.
type MetricsHooks struct {
	sink metrics.Sink
}

// NewMetricsHooks creates metrics collection hooks
func NewMetricsHooks(sink metrics.Sink) *MetricsHooks {
	return &MetricsHooks{sink: metrics.OrNop(sink)}
}

// Register attaches the metrics hooks to r.
func (h *MetricsHooks) Register(r *Registry) {
	r.OnAfterResponse(h.AfterResponse)
	r.OnAfterCompaction(h.AfterCompaction)
	r.OnToolCall(h.ToolCall)
}

// AfterResponse records response token usage
func (h *MetricsHooks) AfterResponse(_ context.Context, response *types.Response) error {
	if response.Usage != nil {
		h.sink.IncCounter("agent.tokens.input", int64(response.Usage.InputTokens))
		h.sink.IncCounter("agent.tokens.output", int64(response.Usage.OutputTokens))
	}
	return nil
}

// ToolCall records tool outcomes by tool name
func (h *MetricsHooks) ToolCall(_ context.Context, result tool.Result) error {
	h.sink.IncCounter("agent.tool."+result.Tool+"."+string(result.State), 1)
	return nil
}

// AfterCompaction records token savings of successful compressions
func (h *MetricsHooks) AfterCompaction(_ context.Context, outcome *compaction.Outcome) error {
	if !outcome.Succeeded() {
		return nil
	}
	h.sink.IncCounter("agent.compaction.tokens_saved", int64(outcome.OriginalTokens-outcome.CompressedTokens))
	h.sink.SetGauge("agent.compaction.ratio", outcome.Ratio)
	return nil
}
