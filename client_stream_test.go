package agentcore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/youssefsiam38/agentcore/history"
	"github.com/youssefsiam38/agentcore/internal/testutil"
	"github.com/youssefsiam38/agentcore/request"
	"github.com/youssefsiam38/agentcore/streaming"
	"github.com/youssefsiam38/agentcore/tool"
	"github.com/youssefsiam38/agentcore/types"
)

// textStream streams text in chunks, one delta per chunk.
func textStream(chunks ...string) streaming.StreamFunc {
	return func(_ context.Context, _ []types.Message, handler streaming.Handler) (*types.Response, error) {
		acc := streaming.NewAccumulator()
		emit := func(e streaming.Event) {
			acc.Add(e)
			handler(e)
		}
		emit(&streaming.MessageStartEvent{MessageID: "msg_1", Model: "stream-model", InputTokens: 3})
		emit(&streaming.ContentBlockStartEvent{Index: 0, BlockType: "text"})
		for _, c := range chunks {
			emit(&streaming.TextDeltaEvent{Index: 0, Delta: c})
		}
		emit(&streaming.ContentBlockStopEvent{Index: 0})
		emit(&streaming.MessageDeltaEvent{StopReason: "end_turn", OutputTokens: len(chunks)})
		emit(&streaming.MessageStopEvent{})
		return acc.Response(), nil
	}
}

func TestChatStream_UsesStreamFunc(t *testing.T) {
	cfg := testConfig(testutil.Reply("unused", nil))
	cfg.Stream = textStream("Hel", "lo ", "there")
	c := newTestClient(t, cfg)

	var got strings.Builder
	resp, err := c.ChatStream(context.Background(), "hi", func(e streaming.Event) {
		if d, ok := e.(*streaming.TextDeltaEvent); ok {
			got.WriteString(d.Delta)
		}
	})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	if got.String() != "Hello there" || resp.Text() != "Hello there" {
		t.Errorf("streamed %q, response %q", got.String(), resp.Text())
	}

	entries := c.History(history.ViewCurated, 0)
	if len(entries) != 2 || entries[1].Message.Text() != "Hello there" {
		t.Fatalf("history = %+v", entries)
	}
	if entries[1].Metadata.ModelName != "stream-model" {
		t.Errorf("ModelName = %q", entries[1].Metadata.ModelName)
	}

	done := c.Manager().Completed()
	if len(done) != 1 || done[0].Metadata["type"] != "stream" {
		t.Errorf("completed records = %+v", done)
	}
}

func TestChatStream_ReplaysModel(t *testing.T) {
	c := newTestClient(t, testConfig(testutil.Reply("whole answer", nil)))

	var kinds []streaming.EventType
	var text string
	resp, err := c.ChatStream(context.Background(), "hi", func(e streaming.Event) {
		kinds = append(kinds, e.Type())
		if d, ok := e.(*streaming.TextDeltaEvent); ok {
			text += d.Delta
		}
	})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	if resp.Text() != "whole answer" || text != "whole answer" {
		t.Errorf("response %q, streamed %q", resp.Text(), text)
	}
	if len(kinds) == 0 || kinds[0] != streaming.EventTypeMessageStart || kinds[len(kinds)-1] != streaming.EventTypeMessageStop {
		t.Errorf("events = %v", kinds)
	}
}

func TestChatStream_NoEventsAfterDeadline(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})

	cfg := testConfig(testutil.Reply("unused", nil))
	cfg.Stream = func(_ context.Context, _ []types.Message, handler streaming.Handler) (*types.Response, error) {
		defer close(finished)
		handler(&streaming.MessageStartEvent{MessageID: "msg_slow"})
		<-release
		handler(&streaming.TextDeltaEvent{Index: 0, Delta: "late"})
		return nil, errors.New("gave up")
	}
	c := newTestClient(t, cfg)

	var mu sync.Mutex
	var seen []streaming.Event
	_, err := c.ChatStream(context.Background(), "hi", func(e streaming.Event) {
		mu.Lock()
		seen = append(seen, e)
		mu.Unlock()
	}, WithTimeout(30*time.Millisecond))
	if !errors.Is(err, request.ErrExecutionTimeout) {
		t.Fatalf("ChatStream() error = %v, want ErrExecutionTimeout", err)
	}

	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("stream never finished")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Errorf("handler saw %d events, want only the one before the deadline", len(seen))
	}

	entries := c.History(history.ViewComprehensive, 0)
	if len(entries) != 2 || entries[1].Metadata.ValidationStatus != history.StatusInvalid {
		t.Errorf("history = %+v, want a failed turn", entries)
	}
}

func TestChatStream_EmptyPrompt(t *testing.T) {
	c := newTestClient(t, testConfig(testutil.Reply("ok", nil)))
	if _, err := c.ChatStream(context.Background(), " ", nil); !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("ChatStream() error = %v, want ErrEmptyPrompt", err)
	}
}

var weatherSchema = tool.Object(map[string]tool.PropertyDef{
	"city":    {Type: "string"},
	"celsius": {Type: "number"},
}, "city")

func TestChat_StructuredOutput(t *testing.T) {
	var format *types.ResponseFormat
	model := func(ctx context.Context, msgs []types.Message) (*types.Response, error) {
		format = types.ResponseFormatFrom(ctx)
		return testutil.Reply(` {"city":"Paris","celsius":21} `, nil)(ctx, msgs)
	}
	c := newTestClient(t, testConfig(model))

	resp, err := c.Chat(context.Background(), "weather in Paris?", WithStructuredOutput("weather", weatherSchema))
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if format == nil || format.Name != "weather" || !json.Valid(format.Schema) {
		t.Fatalf("model saw format %+v", format)
	}

	var out struct {
		City    string  `json:"city"`
		Celsius float64 `json:"celsius"`
	}
	if err := json.Unmarshal(resp.Structured, &out); err != nil || out.City != "Paris" {
		t.Errorf("Structured = %s, %v", resp.Structured, err)
	}

	entries := c.History(history.ViewCurated, 0)
	if len(entries) != 2 {
		t.Fatalf("history has %d entries, want 2", len(entries))
	}
	reply := entries[1]
	if !strings.HasPrefix(reply.Message.Text(), "[structured output]\n") || !strings.Contains(reply.Message.Text(), `"city": "Paris"`) {
		t.Errorf("recorded text = %q", reply.Message.Text())
	}
	if reply.Metadata.Extra["structured_output"] != true || reply.Metadata.Extra["original_format"] != "weather" {
		t.Errorf("Extra = %v", reply.Metadata.Extra)
	}
}

func TestChat_StructuredOutputFromToolCall(t *testing.T) {
	model := func(context.Context, []types.Message) (*types.Response, error) {
		return &types.Response{
			Message:    types.NewToolUseMessage("tu_1", "weather", json.RawMessage(`{"city":"Oslo"}`)),
			StopReason: "tool_use",
			Structured: json.RawMessage(`{"city":"Oslo"}`),
		}, nil
	}
	c := newTestClient(t, testConfig(model))

	resp, err := c.Chat(context.Background(), "weather in Oslo?", WithStructuredOutput("weather", weatherSchema))
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if string(resp.Structured) != `{"city":"Oslo"}` {
		t.Errorf("Structured = %s", resp.Structured)
	}

	reply := c.History(history.ViewCurated, 0)[1]
	if reply.Message.HasToolUse() {
		t.Error("forced tool call recorded as a tool use")
	}
	if _, tagged := reply.Metadata.Extra["has_tool_calls"]; tagged {
		t.Error("structured reply tagged has_tool_calls")
	}
}

func TestChat_StructuredOutputInvalid(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "it is sunny"},
		{"missing required field", `{"celsius": 3}`},
		{"wrong type", `{"city": 7}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, testConfig(testutil.Reply(tt.reply, nil)))
			_, err := c.Chat(context.Background(), "weather?", WithStructuredOutput("weather", weatherSchema))
			if !errors.Is(err, ErrStructuredOutput) {
				t.Fatalf("Chat() error = %v, want ErrStructuredOutput", err)
			}
			entries := c.History(history.ViewComprehensive, 0)
			if len(entries) != 2 || entries[1].Metadata.ValidationStatus != history.StatusInvalid {
				t.Errorf("history = %+v, want a failed turn", entries)
			}
		})
	}
}

func TestChat_ToolCallsTagged(t *testing.T) {
	model := func(context.Context, []types.Message) (*types.Response, error) {
		return &types.Response{
			Message:    types.NewToolUseMessage("tu_1", "lookup", json.RawMessage(`{"q":"x"}`)),
			StopReason: "tool_use",
		}, nil
	}
	c := newTestClient(t, testConfig(model))

	if _, err := c.Chat(context.Background(), "look it up", WithMetadata(map[string]any{"user": "u1"})); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	entries := c.History(history.ViewComprehensive, 0)
	reply := entries[len(entries)-1]
	if reply.Metadata.Extra["has_tool_calls"] != true || reply.Metadata.Extra["user"] != "u1" {
		t.Errorf("Extra = %v", reply.Metadata.Extra)
	}
	if _, tagged := entries[0].Metadata.Extra["has_tool_calls"]; tagged {
		t.Error("user entry tagged has_tool_calls")
	}
}
