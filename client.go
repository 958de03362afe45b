package agentcore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/agentcore/compaction"
	"github.com/youssefsiam38/agentcore/history"
	"github.com/youssefsiam38/agentcore/hooks"
	"github.com/youssefsiam38/agentcore/metrics"
	"github.com/youssefsiam38/agentcore/request"
	"github.com/youssefsiam38/agentcore/storage"
	"github.com/youssefsiam38/agentcore/streaming"
	"github.com/youssefsiam38/agentcore/tool"
	"github.com/youssefsiam38/agentcore/types"
)

// Client orchestrates a single conversation: it queues model calls through
// the request manager, keeps the history, compresses it when it grows past
// the token threshold, and tracks tool calls.
type Client struct {
	config    Config
	sessionID string
	logger    Logger
	metrics   metrics.Sink

	manager    *request.Manager
	history    *history.Store
	compressor *compaction.Compressor
	tools      *tool.Registry
	tracker    *tool.Tracker
	hooks      *hooks.Registry
	archive    storage.Archiver

	// turn serializes history-backed chat turns.
	turn sync.Mutex

	mu             sync.Mutex
	lastCompaction *compaction.Outcome

	started atomic.Bool
}

// New creates a client.
//
// Example:
//
//	provider, _ := anthropic.NewFromAPIKey(os.Getenv("ANTHROPIC_API_KEY"), nil)
//	client, err := agentcore.New(&agentcore.Config{
//	    Model:        provider.Model(),
//	    SystemPrompt: "You are a helpful assistant",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Stop(ctx)
//
//	resp, err := client.Chat(ctx, "Hello!")
func New(config *Config, opts ...Option) (*Client, error) {
	if config == nil {
		return nil, ErrModelRequired
	}
	cfg := *config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.New().String()
	}

	c := &Client{
		config:    cfg,
		sessionID: cfg.SessionID,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tools:     tool.NewRegistry(),
		hooks:     hooks.NewRegistry(),
		archive:   cfg.Archive,
	}

	var err error
	if c.manager, err = request.New(cfg.Request); err != nil {
		return nil, NewClientError("New", err).WithContext("component", "request")
	}
	if c.history, err = history.New(cfg.History); err != nil {
		return nil, NewClientError("New", err).WithContext("component", "history")
	}
	if c.compressor, err = compaction.New(c.manager, cfg.Model, cfg.Compaction); err != nil {
		return nil, NewClientError("New", err).WithContext("component", "compaction")
	}

	trackerCfg := *cfg.Tools
	userFinish := trackerCfg.OnFinish
	trackerCfg.OnFinish = func(r tool.Result) {
		if err := c.hooks.TriggerToolCall(context.Background(), r); err != nil {
			c.logger.Warn("tool call hook failed", "call_id", r.ID, "tool", r.Tool, "error", err)
		}
		if userFinish != nil {
			userFinish(r)
		}
	}
	if c.tracker, err = tool.NewTracker(c.tools, &trackerCfg); err != nil {
		return nil, NewClientError("New", err).WithContext("component", "tool")
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Start begins processing queued requests.
func (c *Client) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrClientAlreadyStarted
	}
	c.tracker.Restart()
	if err := c.manager.Start(ctx); err != nil {
		c.started.Store(false)
		return fmt.Errorf("failed to start request manager: %w", err)
	}
	c.logger.Info("client started", "session_id", c.sessionID, "tools", c.tools.Count())
	return nil
}

// Stop cancels tool calls, fails queued requests, and waits for in-flight
// work to settle or ctx to end.
func (c *Client) Stop(ctx context.Context) error {
	if !c.started.Load() {
		return ErrClientNotStarted
	}
	c.tracker.Stop()
	err := c.manager.Stop(ctx)
	c.started.Store(false)
	c.logger.Info("client stopped", "session_id", c.sessionID)
	return err
}

// IsRunning reports whether the client has been started.
func (c *Client) IsRunning() bool { return c.started.Load() }

// SessionID returns the conversation id used for archiving.
func (c *Client) SessionID() string { return c.sessionID }

// Hooks returns the hook registry.
func (c *Client) Hooks() *hooks.Registry { return c.hooks }

// Tools returns the tool registry.
func (c *Client) Tools() *tool.Registry { return c.tools }

// Manager returns the request manager.
func (c *Client) Manager() *request.Manager { return c.manager }

// HistoryStore returns the underlying history store.
func (c *Client) HistoryStore() *history.Store { return c.history }

// Chat runs one conversation turn. The context sent to the model is the
// curated history, compressed when it has grown past the threshold or
// trimmed to the recent window otherwise, followed by prompt.
func (c *Client) Chat(ctx context.Context, prompt string, opts ...ChatOption) (*types.Response, error) {
	return c.runTurn(ctx, "Chat", "standard", prompt, opts, c.config.Model)
}

// ChatStream runs a turn like Chat and reports the model's output to
// handler as it arrives. A retried call streams again from the start.
// Handler is never called after ChatStream returns, even when the model
// call outlives its deadline.
func (c *Client) ChatStream(ctx context.Context, prompt string, handler streaming.Handler, opts ...ChatOption) (*types.Response, error) {
	sink := &eventSink{handler: handler}
	defer sink.close()

	return c.runTurn(ctx, "ChatStream", "stream", prompt, opts, func(ctx context.Context, msgs []types.Message) (*types.Response, error) {
		if c.config.Stream != nil {
			return c.config.Stream(ctx, msgs, sink.emit)
		}
		resp, err := c.config.Model(ctx, msgs)
		if err == nil {
			streaming.Replay(resp, sink.emit)
		}
		return resp, err
	})
}

// eventSink forwards events to a handler until closed.
type eventSink struct {
	mu      sync.Mutex
	handler streaming.Handler
	closed  bool
}

func (s *eventSink) emit(e streaming.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.handler == nil {
		return
	}
	s.handler(e)
}

func (s *eventSink) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (c *Client) runTurn(ctx context.Context, op, kind, prompt string, opts []ChatOption, call types.ModelFunc) (*types.Response, error) {
	o := chatOptions{
		priority: c.config.ChatPriority,
		timeout:  c.config.ChatTimeout,
		history:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, NewClientError(op, ErrEmptyPrompt)
	}

	if o.history {
		c.turn.Lock()
		defer c.turn.Unlock()
	}

	var msgs []types.Message
	if o.history {
		msgs = c.buildContext(ctx)
	}
	systemPrompt := c.config.SystemPrompt
	if o.systemPrompt != nil {
		systemPrompt = *o.systemPrompt
	}
	if systemPrompt != "" && !hasSystemPrompt(msgs) {
		msgs = append([]types.Message{types.NewTextMessage(types.RoleSystem, systemPrompt)}, msgs...)
	}
	userMsg := types.NewTextMessage(types.RoleUser, prompt)
	msgs = append(msgs, userMsg)

	if err := c.hooks.TriggerBeforeRequest(ctx, types.CloneMessages(msgs)); err != nil {
		return nil, NewClientError(op, err).WithContext("hook", "before_request")
	}

	reqMeta := maps.Clone(o.metadata)
	if reqMeta == nil {
		reqMeta = make(map[string]any, 1)
	}
	reqMeta["type"] = kind

	start := time.Now()
	resp, err := request.Do(ctx, c.manager, strings.ToLower(op), func(ctx context.Context) (*types.Response, error) {
		if o.format != nil {
			ctx = types.WithResponseFormat(ctx, o.format)
		}
		return call(ctx, types.CloneMessages(msgs))
	},
		request.WithPriority(o.priority),
		request.WithTimeout(o.timeout),
		request.WithMetadata(reqMeta),
	)
	if err == nil && resp == nil {
		err = ErrEmptyResponse
	}
	if err == nil && o.format != nil {
		err = checkStructured(resp, o)
	}
	elapsed := time.Since(start)

	if err != nil {
		c.metrics.IncCounter("client.chat_failed", 1)
		c.logger.Warn("chat turn failed", "session_id", c.sessionID, "type", kind, "elapsed", elapsed, "error", err)
		if o.history {
			c.recordFailure(userMsg, start, o.metadata, err)
		}
		return nil, NewClientError(op, err)
	}

	c.metrics.IncCounter("client.chat_completed", 1)
	c.metrics.Observe("client.chat_duration", elapsed)
	if err := c.hooks.TriggerAfterResponse(ctx, resp); err != nil {
		c.logger.Warn("after response hook failed", "error", err)
	}

	if o.history {
		c.recordTurn(userMsg, resp, start, elapsed, o)
	}
	return resp, nil
}

// checkStructured fills resp.Structured for a turn that asked for a
// response format. Models without a tool mode answer with the JSON as text.
func checkStructured(resp *types.Response, o chatOptions) error {
	raw := resp.Structured
	if len(raw) == 0 {
		raw = json.RawMessage(strings.TrimSpace(resp.Text()))
	}
	if !json.Valid(raw) {
		return fmt.Errorf("%w: reply is not JSON", ErrStructuredOutput)
	}
	if o.schema != nil {
		if err := tool.NewValidator().Validate(formatName(o.format), *o.schema, raw); err != nil {
			return fmt.Errorf("%w: %w", ErrStructuredOutput, err)
		}
	}
	resp.Structured = raw
	return nil
}

func formatName(f *types.ResponseFormat) string {
	if f.Name != "" {
		return f.Name
	}
	return "json_schema"
}

// Ask runs a turn without history and returns the answer text.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Chat(ctx, prompt, WithoutHistory())
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// buildContext picks the messages sent ahead of the new prompt.
func (c *Client) buildContext(ctx context.Context) []types.Message {
	curated := c.history.Read(history.ViewCurated, 0)
	if c.compressor.ShouldCompress(curated, false) {
		if out := c.compress(ctx, curated, false); out.Succeeded() {
			return out.Messages
		}
	}
	if len(curated) > c.config.RecentWindow {
		curated = curated[len(curated)-c.config.RecentWindow:]
	}
	return curated
}

// compress runs the compressor and, on success, archives the removed
// entries and swaps the history for the compressed messages.
func (c *Client) compress(ctx context.Context, msgs []types.Message, force bool) *compaction.Outcome {
	if err := c.hooks.TriggerBeforeCompaction(ctx, types.CloneMessages(msgs)); err != nil {
		c.logger.Info("compression skipped by hook", "error", err)
		return &compaction.Outcome{Status: compaction.StatusNoop, Err: err}
	}

	out := c.compressor.Compress(ctx, msgs, force)
	if out.Succeeded() {
		removed := c.history.Replace(out.Messages, c.compressor.Config().SummarizeSystem)
		if c.archive != nil && len(removed) > 0 {
			if err := c.archive.Archive(ctx, c.sessionID, removed); err != nil {
				c.metrics.IncCounter("client.archive_failed", 1)
				c.logger.Warn("archiving compressed entries failed", "count", len(removed), "error", err)
			}
		}
	}

	c.mu.Lock()
	c.lastCompaction = out
	c.mu.Unlock()

	if err := c.hooks.TriggerAfterCompaction(ctx, out); err != nil {
		c.logger.Warn("after compaction hook failed", "error", err)
	}
	return out
}

// Compress compresses the curated history now. With force, the token
// threshold is ignored.
func (c *Client) Compress(ctx context.Context, force bool) *compaction.Outcome {
	c.turn.Lock()
	defer c.turn.Unlock()
	return c.compress(ctx, c.history.Read(history.ViewCurated, 0), force)
}

func (c *Client) recordTurn(userMsg types.Message, resp *types.Response, start time.Time, elapsed time.Duration, o chatOptions) {
	userID := c.history.Append(userMsg, &history.Metadata{
		Timestamp:  start,
		TokenCount: compaction.EstimateTokens([]types.Message{userMsg}),
		Extra:      o.metadata,
	}, "")

	model := resp.Model
	if model == "" {
		model = c.config.ModelName
	}

	reply := resp.Message
	extra := maps.Clone(o.metadata)
	switch {
	case o.format != nil:
		reply = structuredMessage(resp)
		extra = withExtra(extra, "structured_output", true)
		extra["original_format"] = formatName(o.format)
	case reply.HasToolUse():
		extra = withExtra(extra, "has_tool_calls", true)
	}

	tokens := compaction.EstimateTokens([]types.Message{reply})
	if resp.Usage != nil && resp.Usage.OutputTokens > 0 {
		tokens = resp.Usage.OutputTokens
	}
	c.history.Append(reply, &history.Metadata{
		ModelName:      model,
		ProcessingTime: elapsed,
		TokenCount:     tokens,
		Extra:          extra,
	}, userID)
}

// structuredMessage renders a structured reply as a text message, so the
// forced tool call does not reach history without a result.
func structuredMessage(resp *types.Response) types.Message {
	body := string(resp.Structured)
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Structured, "", "  "); err == nil {
		body = pretty.String()
	}
	msg := types.NewTextMessage(types.RoleAssistant, structuredPrefix+"\n"+body)
	msg.Usage = resp.Message.Usage
	return msg
}

func withExtra(extra map[string]any, key string, value any) map[string]any {
	if extra == nil {
		extra = make(map[string]any, 2)
	}
	extra[key] = value
	return extra
}

func (c *Client) recordFailure(userMsg types.Message, start time.Time, md map[string]any, cause error) {
	userID := c.history.Append(userMsg, &history.Metadata{Timestamp: start, Extra: md}, "")
	c.history.Append(types.NewTextMessage(types.RoleAssistant, failedTurnText), &history.Metadata{
		ModelName:        c.config.ModelName,
		ValidationStatus: history.StatusInvalid,
		ErrorInfo:        map[string]any{"error": cause.Error()},
		Extra:            md,
	}, userID)
}

// hasSystemPrompt reports whether msgs carry a system message other than a
// compression summary.
func hasSystemPrompt(msgs []types.Message) bool {
	for _, m := range msgs {
		if m.Role == types.RoleSystem && !m.IsSummary {
			return true
		}
	}
	return false
}

// RegisterTool adds a tool to the registry.
func (c *Client) RegisterTool(t tool.Tool) error {
	if err := c.tools.Register(t); err != nil {
		return NewClientError("RegisterTool", err)
	}
	return nil
}

// ScheduleTool validates args and schedules a tool call. OnToolCall hooks
// fire when it finishes.
func (c *Client) ScheduleTool(ctx context.Context, name string, args json.RawMessage) (*tool.Call, error) {
	call, err := c.tracker.Schedule(ctx, name, args)
	if err != nil {
		return nil, NewClientError("ScheduleTool", err).WithContext("tool", name)
	}
	return call, nil
}

// RunTool schedules a tool call and waits for its result.
func (c *Client) RunTool(ctx context.Context, name string, args json.RawMessage) (tool.Result, error) {
	call, err := c.ScheduleTool(ctx, name, args)
	if err != nil {
		return tool.Result{}, err
	}
	return call.Wait(ctx)
}

// CancelTool cancels a queued or executing tool call.
func (c *Client) CancelTool(id string) error {
	return c.tracker.Cancel(id)
}

// ToolStatus returns the status of an active or queued tool call.
func (c *Client) ToolStatus(id string) (tool.Result, bool) {
	return c.tracker.Status(id)
}

// History returns entries of view, most recent limit only when limit > 0.
func (c *Client) History(view history.View, limit int) []history.Entry {
	return c.history.Entries(view, limit)
}

// Export renders view in format.
func (c *Client) Export(view history.View, format history.Format) ([]byte, error) {
	return c.history.Export(view, format)
}

// ClearHistory empties the history and returns how many entries went.
func (c *Client) ClearHistory(keepSystem bool) int {
	c.turn.Lock()
	defer c.turn.Unlock()
	return c.history.Clear(keepSystem)
}

// Archived returns this session's archived entries, most recent limit only
// when limit > 0.
func (c *Client) Archived(ctx context.Context, limit int) ([]storage.Record, error) {
	if c.archive == nil {
		return nil, NewClientError("Archived", ErrNoArchive)
	}
	recs, err := c.archive.Archived(ctx, c.sessionID, limit)
	if err != nil {
		return nil, NewClientError("Archived", err)
	}
	return recs, nil
}

// LookupArchived returns the archived entries of this session with the
// given entry ids.
func (c *Client) LookupArchived(ctx context.Context, entryIDs ...string) ([]storage.Record, error) {
	if c.archive == nil {
		return nil, NewClientError("LookupArchived", ErrNoArchive)
	}
	recs, err := c.archive.Lookup(ctx, c.sessionID, entryIDs)
	if err != nil {
		return nil, NewClientError("LookupArchived", err)
	}
	return recs, nil
}

// PurgeArchive deletes this session's archived entries and returns how
// many went.
func (c *Client) PurgeArchive(ctx context.Context) (int64, error) {
	if c.archive == nil {
		return 0, NewClientError("PurgeArchive", ErrNoArchive)
	}
	n, err := c.archive.Purge(ctx, c.sessionID)
	if err != nil {
		return 0, NewClientError("PurgeArchive", err)
	}
	c.logger.Info("archive purged", "session_id", c.sessionID, "count", n)
	return n, nil
}

// SystemStatus is a point-in-time view of the whole client.
type SystemStatus struct {
	SessionID      string
	Running        bool
	Queue          request.QueueInfo
	Requests       request.Stats
	History        history.Stats
	Tools          tool.TrackerStats
	ActiveTools    []tool.Result
	QueuedTools    []tool.Result
	LastCompaction *compaction.Outcome
	ContextTokens  int
	TokenThreshold int
}

// Status aggregates the state of every component.
func (c *Client) Status() SystemStatus {
	c.mu.Lock()
	last := c.lastCompaction
	c.mu.Unlock()
	cc := c.compressor.Config()

	return SystemStatus{
		SessionID:      c.sessionID,
		Running:        c.started.Load(),
		Queue:          c.manager.QueueInfo(),
		Requests:       c.manager.Stats(),
		History:        c.history.Stats(),
		Tools:          c.tracker.Stats(),
		ActiveTools:    c.tracker.Active(),
		QueuedTools:    c.tracker.Queued(),
		LastCompaction: last,
		ContextTokens:  compaction.EstimateTokens(c.history.Read(history.ViewCurated, 0)),
		TokenThreshold: cc.TriggerThreshold(),
	}
}
