package streaming

import (
	"encoding/json"
	"strings"

	"github.com/youssefsiam38/agentcore/types"
)

// Accumulator folds streaming events into a complete response. It is not
// safe for concurrent use.
type Accumulator struct {
	messageID    string
	model        string
	stopReason   string
	stopSequence string
	inputTokens  int
	outputTokens int

	content []*contentBlock

	// blocks that have started but not stopped, by index
	open map[int]*contentBlock
}

type contentBlock struct {
	kind     types.ContentType
	text     strings.Builder
	toolID   string
	toolName string
	input    strings.Builder
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{open: make(map[int]*contentBlock)}
}

// Add applies one event. Deltas for a block that never started are ignored.
func (a *Accumulator) Add(event Event) {
	switch e := event.(type) {
	case *MessageStartEvent:
		a.messageID = e.MessageID
		a.model = e.Model
		a.inputTokens = e.InputTokens

	case *ContentBlockStartEvent:
		a.open[e.Index] = &contentBlock{kind: types.ContentTypeText}

	case *ToolUseStartEvent:
		a.open[e.Index] = &contentBlock{
			kind:     types.ContentTypeToolUse,
			toolID:   e.ToolID,
			toolName: e.ToolName,
		}

	case *TextDeltaEvent:
		if b, ok := a.open[e.Index]; ok {
			b.text.WriteString(e.Delta)
		}

	case *ToolInputDeltaEvent:
		if b, ok := a.open[e.Index]; ok {
			b.input.WriteString(e.Delta)
		}

	case *ContentBlockStopEvent:
		if b, ok := a.open[e.Index]; ok {
			a.content = append(a.content, b)
			delete(a.open, e.Index)
		}

	case *MessageDeltaEvent:
		a.stopReason = e.StopReason
		a.stopSequence = e.StopSequence
		if e.OutputTokens > 0 {
			a.outputTokens = e.OutputTokens
		}
	}
}

// MessageID returns the id reported by the message start event.
func (a *Accumulator) MessageID() string { return a.messageID }

// StopSequence returns the stop sequence that ended the message, if any.
func (a *Accumulator) StopSequence() string { return a.stopSequence }

// Response returns the message accumulated so far. Blocks still open are
// left out.
func (a *Accumulator) Response() *types.Response {
	usage := &types.Usage{InputTokens: a.inputTokens, OutputTokens: a.outputTokens}
	return &types.Response{
		Message: types.Message{
			Role:    types.RoleAssistant,
			Content: a.buildContentBlocks(),
			Usage:   usage,
		},
		StopReason: a.stopReason,
		Usage:      usage,
		Model:      a.model,
	}
}

func (a *Accumulator) buildContentBlocks() []types.ContentBlock {
	blocks := make([]types.ContentBlock, 0, len(a.content))
	for _, b := range a.content {
		switch b.kind {
		case types.ContentTypeText:
			blocks = append(blocks, types.ContentBlock{Type: types.ContentTypeText, Text: b.text.String()})

		case types.ContentTypeToolUse:
			input := b.input.String()
			if input == "" {
				input = "{}"
			}
			blocks = append(blocks, types.ContentBlock{
				Type:         types.ContentTypeToolUse,
				ToolUseID:    b.toolID,
				ToolName:     b.toolName,
				ToolInputRaw: json.RawMessage(input),
			})
		}
	}
	return blocks
}

// Replay emits the event sequence a streaming call would have produced for
// resp, so a non-streaming model can serve a streaming caller.
func Replay(resp *types.Response, handler Handler) {
	if resp == nil || handler == nil {
		return
	}
	start := &MessageStartEvent{Model: resp.Model}
	out := &MessageDeltaEvent{StopReason: resp.StopReason}
	if resp.Usage != nil {
		start.InputTokens = resp.Usage.InputTokens
		out.OutputTokens = resp.Usage.OutputTokens
	}
	if id, ok := resp.Message.Metadata["anthropic_message_id"].(string); ok {
		start.MessageID = id
	}
	handler(start)

	index := 0
	for _, b := range resp.Message.Content {
		switch b.Type {
		case types.ContentTypeText:
			handler(&ContentBlockStartEvent{Index: index, BlockType: string(types.ContentTypeText)})
			if b.Text != "" {
				handler(&TextDeltaEvent{Index: index, Delta: b.Text})
			}
		case types.ContentTypeToolUse:
			handler(&ToolUseStartEvent{Index: index, ToolID: b.ToolUseID, ToolName: b.ToolName})
			if len(b.ToolInputRaw) > 0 {
				handler(&ToolInputDeltaEvent{Index: index, Delta: string(b.ToolInputRaw)})
			}
		default:
			continue
		}
		handler(&ContentBlockStopEvent{Index: index})
		index++
	}

	handler(out)
	handler(&MessageStopEvent{})
}
