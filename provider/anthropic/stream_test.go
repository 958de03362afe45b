package anthropic

import (
	"context"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/youssefsiam38/agentcore/streaming"
	"github.com/youssefsiam38/agentcore/types"
)

type sliceDecoder struct {
	events []ssestream.Event
	cur    ssestream.Event
	closed bool
}

func (d *sliceDecoder) Next() bool {
	if len(d.events) == 0 {
		return false
	}
	d.cur, d.events = d.events[0], d.events[1:]
	return true
}

func (d *sliceDecoder) Event() ssestream.Event { return d.cur }
func (d *sliceDecoder) Close() error           { d.closed = true; return nil }
func (d *sliceDecoder) Err() error             { return nil }

type fakeStreamer struct {
	fakeMessages
	decoder *sliceDecoder
}

func (f *fakeStreamer) NewStreaming(_ context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) *ssestream.Stream[anthropic.MessageStreamEventUnion] {
	f.got = body
	return ssestream.NewStream[anthropic.MessageStreamEventUnion](f.decoder, nil)
}

func sse(typ, data string) ssestream.Event {
	return ssestream.Event{Type: typ, Data: []byte(data)}
}

func TestStream(t *testing.T) {
	dec := &sliceDecoder{events: []ssestream.Event{
		sse("message_start", `{"type":"message_start","message":{"id":"msg_s","type":"message","role":"assistant","model":"claude-test","content":[],"usage":{"input_tokens":9,"output_tokens":1}}}`),
		sse("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`),
		sse("ping", `{"type":"ping"}`),
		sse("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`),
		sse("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`),
		sse("content_block_stop", `{"type":"content_block_stop","index":0}`),
		sse("content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"tu_1","name":"lookup","input":{}}}`),
		sse("content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"q\":"}}`),
		sse("content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"x\"}"}}`),
		sse("content_block_stop", `{"type":"content_block_stop","index":1}`),
		sse("message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":6}}`),
		sse("message_stop", `{"type":"message_stop"}`),
	}}
	p, _ := New(&fakeStreamer{decoder: dec}, &Config{Model: "claude-test"})

	var text strings.Builder
	var count int
	resp, err := p.Streamer()(context.Background(), []types.Message{types.NewTextMessage(types.RoleUser, "hi")}, func(e streaming.Event) {
		count++
		if d, ok := e.(*streaming.TextDeltaEvent); ok {
			text.WriteString(d.Delta)
		}
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if count != 11 {
		t.Errorf("handler saw %d events, want 11", count)
	}
	if text.String() != "Hello" || resp.Text() != "Hello" {
		t.Errorf("streamed %q, response %q", text.String(), resp.Text())
	}
	if resp.StopReason != "tool_use" || resp.Model != "claude-test" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Usage.InputTokens != 9 || resp.Usage.OutputTokens != 6 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if uses := resp.Message.ToolUses(); len(uses) != 1 || string(uses[0].ToolInputRaw) != `{"q":"x"}` {
		t.Errorf("tool uses = %+v", uses)
	}
	if resp.Message.Metadata["anthropic_message_id"] != "msg_s" {
		t.Errorf("metadata = %v", resp.Message.Metadata)
	}
	if !dec.closed {
		t.Error("stream not closed")
	}
}

func TestStream_Error(t *testing.T) {
	dec := &sliceDecoder{events: []ssestream.Event{
		sse("message_start", `{"type":"message_start","message":{"id":"msg_e","type":"message","role":"assistant","model":"claude-test","content":[],"usage":{"input_tokens":1,"output_tokens":0}}}`),
		sse("error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`),
	}}
	p, _ := New(&fakeStreamer{decoder: dec}, nil)

	_, err := p.Stream(context.Background(), nil, nil)
	if err == nil || !strings.Contains(err.Error(), "Overloaded") {
		t.Errorf("Stream() error = %v, want overloaded", err)
	}
}

func TestStream_ReplaysWithoutStreamer(t *testing.T) {
	fake := &fakeMessages{resp: `{
		"id": "msg_r",
		"type": "message",
		"role": "assistant",
		"model": "claude-test",
		"stop_reason": "end_turn",
		"content": [{"type": "text", "text": "whole"}],
		"usage": {"input_tokens": 2, "output_tokens": 1}
	}`}
	p, _ := New(fake, nil)

	var kinds []streaming.EventType
	resp, err := p.Stream(context.Background(), nil, func(e streaming.Event) {
		kinds = append(kinds, e.Type())
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if resp.Text() != "whole" {
		t.Errorf("Text() = %q", resp.Text())
	}
	if len(kinds) != 6 || kinds[2] != streaming.EventTypeContentBlockDelta {
		t.Errorf("replayed events = %v", kinds)
	}
}
