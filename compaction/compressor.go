package compaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/youssefsiam38/agentcore/metrics"
	"github.com/youssefsiam38/agentcore/request"
	"github.com/youssefsiam38/agentcore/types"
)

// Ratio rejection causes, wrapped under ErrCompressionRejected.
var (
	ErrRatioTooLow  = errors.New("compression ratio below minimum")
	ErrRatioTooHigh = errors.New("compression ratio above maximum")
)

// Requester runs a task through admission control and waits for it.
// *request.Manager implements it.
type Requester interface {
	Request(ctx context.Context, task request.Task, opts ...request.Option) (any, error)
}

// Compressor replaces the older part of a conversation with a model
// generated summary.
type Compressor struct {
	requester Requester
	model     types.ModelFunc
	config    *Config
	logger    Logger
	metrics   metrics.Sink
}

// New creates a Compressor. Summarization calls go through requester and
// invoke model. If config is nil, default configuration is used.
func New(requester Requester, model types.ModelFunc, config *Config) (*Compressor, error) {
	if requester == nil {
		return nil, fmt.Errorf("%w: requester is required", ErrInvalidConfig)
	}
	if model == nil {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}

	cfg := DefaultConfig()
	if config != nil {
		c := *config
		cfg = &c
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Compressor{
		requester: requester,
		model:     model,
		config:    cfg,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}, nil
}

// Config returns a copy of the compressor configuration.
func (c *Compressor) Config() Config {
	return *c.config
}

// ShouldCompress reports whether messages are due for compression.
func (c *Compressor) ShouldCompress(messages []types.Message, force bool) bool {
	if force {
		return true
	}
	if c.config.DisableAuto || len(messages) < c.config.MinMessages {
		return false
	}
	return EstimateTokens(messages) > c.config.TriggerThreshold()
}

// Compress summarizes the older part of messages. It never returns nil and
// never mutates messages; failures are reported through the outcome.
func (c *Compressor) Compress(ctx context.Context, messages []types.Message, force bool) *Outcome {
	start := time.Now()
	out := &Outcome{
		Status:           StatusNoop,
		OriginalMessages: len(messages),
	}
	defer func() { out.Duration = time.Since(start) }()

	if !c.ShouldCompress(messages, force) {
		return out
	}

	preserve := int(float64(len(messages)) * c.config.PreserveRatio)
	if preserve < MinPreserved {
		preserve = MinPreserved
	}
	if preserve >= len(messages) {
		c.logger.Debug("compaction skipped, nothing older than the preserved tail",
			"messages", len(messages),
			"preserve", preserve,
		)
		return out
	}
	head, tail := messages[:len(messages)-preserve], messages[len(messages)-preserve:]

	var systems, older []types.Message
	if c.config.SummarizeSystem {
		older = head
	} else {
		for _, m := range head {
			if m.Role == types.RoleSystem {
				systems = append(systems, m)
			} else {
				older = append(older, m)
			}
		}
	}
	if len(older) == 0 {
		return out
	}

	out.OriginalTokens = EstimateTokens(messages)
	c.metrics.IncCounter("compaction.attempts", 1)
	c.logger.Info("compaction started",
		"messages", len(messages),
		"summarized", len(older),
		"preserved", len(tail),
		"tokens", out.OriginalTokens,
		"forced", force,
	)

	summary, err := c.summarize(ctx, older)
	if err != nil {
		c.fail(out, classify(err), err)
		return out
	}

	replacement := make([]types.Message, 0, len(systems)+1+len(tail))
	replacement = append(replacement, types.CloneMessages(systems)...)
	replacement = append(replacement, SummaryMessage(summary))
	replacement = append(replacement, types.CloneMessages(tail)...)

	out.Summary = summary
	out.Messages = replacement
	out.CompressedMessages = len(replacement)
	out.CompressedTokens = EstimateTokens(replacement)
	if out.OriginalTokens > 0 {
		out.Ratio = float64(out.CompressedTokens) / float64(out.OriginalTokens)
	}

	switch {
	case out.Ratio < c.config.MinRatio:
		c.fail(out, StatusFailedRatioTooLow,
			fmt.Errorf("%w: %.3f < %.3f", ErrRatioTooLow, out.Ratio, c.config.MinRatio))
		return out
	case out.Ratio > c.config.MaxRatio:
		c.fail(out, StatusFailedRatioTooHigh,
			fmt.Errorf("%w: %.3f > %.3f", ErrRatioTooHigh, out.Ratio, c.config.MaxRatio))
		return out
	}

	out.Status = StatusCompressed
	c.metrics.IncCounter("compaction.compressed", 1)
	c.metrics.SetGauge("compaction.last_ratio", out.Ratio)
	c.metrics.Observe("compaction.duration", time.Since(start))
	c.logger.Info("compaction completed",
		"messages_before", out.OriginalMessages,
		"messages_after", out.CompressedMessages,
		"tokens_before", out.OriginalTokens,
		"tokens_after", out.CompressedTokens,
		"ratio", out.Ratio,
	)
	return out
}

// SummaryMessage builds the system message that stands in for the
// summarized part of a conversation.
func SummaryMessage(summary string) types.Message {
	m := types.NewTextMessage(types.RoleSystem, SummaryPrefix+summary)
	m.IsSummary = true
	return m
}

func (c *Compressor) summarize(ctx context.Context, older []types.Message) (string, error) {
	prompt := []types.Message{
		types.NewTextMessage(types.RoleSystem, SummarizationSystemPrompt),
		types.NewTextMessage(types.RoleUser, BuildSummarizationUserPrompt(FormatTranscript(older))),
	}

	task := request.Async("compaction.summarize", func(ctx context.Context) (any, error) {
		return c.model(ctx, prompt)
	})
	v, err := c.requester.Request(ctx, task,
		request.WithPriority(c.config.SummaryPriority),
		request.WithTimeout(c.config.SummaryTimeout),
	)
	if err != nil {
		return "", err
	}

	resp, ok := v.(*types.Response)
	if !ok || resp == nil {
		return "", fmt.Errorf("%w: summarizer returned %T", ErrEmptySummary, v)
	}
	summary := strings.TrimSpace(resp.Text())
	if summary == "" {
		return "", ErrEmptySummary
	}
	if limit := c.config.SummaryMaxChars; limit > 0 {
		if r := []rune(summary); len(r) > limit {
			summary = string(r[:limit])
		}
	}
	return summary, nil
}

// fail records a failure status on out. Ratio rejections keep Messages.
func (c *Compressor) fail(out *Outcome, status Status, cause error) {
	out.Status = status

	kind, op := ErrCompressionModel, "Summarize"
	switch status {
	case StatusFailedTimeout:
		kind = ErrCompressionTimeout
	case StatusFailedRatioTooLow, StatusFailedRatioTooHigh:
		kind, op = ErrCompressionRejected, "CheckRatio"
	}
	out.Err = NewCompactionError(op, kind, cause).
		WithContext("original_tokens", out.OriginalTokens).
		WithContext("ratio", out.Ratio)

	if !status.IsRejection() {
		out.Messages = nil
	}

	c.metrics.IncCounter("compaction."+string(status), 1)
	c.logger.Warn("compaction failed",
		"status", string(status),
		"ratio", out.Ratio,
		"error", cause,
	)
}

func classify(err error) Status {
	if errors.Is(err, request.ErrExecutionTimeout) ||
		errors.Is(err, request.ErrWaitTimeout) ||
		errors.Is(err, context.DeadlineExceeded) {
		return StatusFailedTimeout
	}
	return StatusFailedModelError
}
