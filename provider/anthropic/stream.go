package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/youssefsiam38/agentcore/streaming"
	"github.com/youssefsiam38/agentcore/types"
)

// MessageStreamer is the streaming part of the SDK client.
// *anthropic.MessageService satisfies it.
type MessageStreamer interface {
	NewStreaming(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

// Streamer returns the provider as a streaming model function.
func (p *Provider) Streamer() streaming.StreamFunc {
	return p.Stream
}

// Stream sends messages over the streaming API, reports each event to
// handler, and returns the accumulated reply. When the message client
// cannot stream, the reply is fetched whole and replayed.
func (p *Provider) Stream(ctx context.Context, messages []types.Message, handler streaming.Handler) (*types.Response, error) {
	streamer, ok := p.messages.(MessageStreamer)
	if !ok {
		resp, err := p.Generate(ctx, messages)
		if err != nil {
			return nil, err
		}
		streaming.Replay(resp, handler)
		return resp, nil
	}

	format := types.ResponseFormatFrom(ctx)
	params, err := p.requestParams(messages, format)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("opening messages stream", "model", p.config.Model, "messages", len(params.Messages))

	stream := streamer.NewStreaming(ctx, params)
	defer stream.Close()

	acc := streaming.NewAccumulator()
	for stream.Next() {
		for _, event := range ConvertStreamEvent(stream.Current()) {
			acc.Add(event)
			if handler != nil {
				handler(event)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("messages stream failed: %w", err)
	}

	resp := acc.Response()
	if id := acc.MessageID(); id != "" {
		resp.Message.Metadata = map[string]any{"anthropic_message_id": id}
	}
	extractStructured(resp, format)
	return resp, nil
}

// ConvertStreamEvent converts an SDK stream event. Events with no
// counterpart, such as thinking deltas, convert to nothing.
func ConvertStreamEvent(event anthropic.MessageStreamEventUnion) []streaming.Event {
	switch e := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		return []streaming.Event{&streaming.MessageStartEvent{
			MessageID:   e.Message.ID,
			Model:       string(e.Message.Model),
			InputTokens: int(e.Message.Usage.InputTokens),
		}}

	case anthropic.ContentBlockStartEvent:
		index := int(e.Index)
		switch block := e.ContentBlock.AsAny().(type) {
		case anthropic.TextBlock:
			out := []streaming.Event{&streaming.ContentBlockStartEvent{Index: index, BlockType: "text"}}
			if block.Text != "" {
				out = append(out, &streaming.TextDeltaEvent{Index: index, Delta: block.Text})
			}
			return out
		case anthropic.ToolUseBlock:
			return []streaming.Event{&streaming.ToolUseStartEvent{Index: index, ToolID: block.ID, ToolName: block.Name}}
		}

	case anthropic.ContentBlockDeltaEvent:
		index := int(e.Index)
		switch delta := e.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			return []streaming.Event{&streaming.TextDeltaEvent{Index: index, Delta: delta.Text}}
		case anthropic.InputJSONDelta:
			return []streaming.Event{&streaming.ToolInputDeltaEvent{Index: index, Delta: delta.PartialJSON}}
		}

	case anthropic.ContentBlockStopEvent:
		return []streaming.Event{&streaming.ContentBlockStopEvent{Index: int(e.Index)}}

	case anthropic.MessageDeltaEvent:
		return []streaming.Event{&streaming.MessageDeltaEvent{
			StopReason:   string(e.Delta.StopReason),
			StopSequence: e.Delta.StopSequence,
			OutputTokens: int(e.Usage.OutputTokens),
		}}

	case anthropic.MessageStopEvent:
		return []streaming.Event{&streaming.MessageStopEvent{}}
	}
	return nil
}
