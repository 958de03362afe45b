package types

import (
	"encoding/json"
	"maps"
	"strings"
)

// Role represents the message role
type Role string

const (
	// RoleUser represents a user message
	RoleUser Role = "user"

	// RoleAssistant represents a model message
	RoleAssistant Role = "assistant"

	// RoleSystem represents a system message
	RoleSystem Role = "system"

	// RoleTool represents a tool response message
	RoleTool Role = "tool"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	default:
		return false
	}
}

// Label returns the transcript label for the role.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	case RoleTool:
		return "Tool"
	default:
		return string(r)
	}
}

// Message is a single conversation message.
type Message struct {
	Role     Role           `json:"role"`
	Content  []ContentBlock `json:"content"`
	Usage    *Usage         `json:"usage,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// IsSummary marks a synthetic message produced by compaction.
	IsSummary bool `json:"is_summary,omitempty"`
}

// NewTextMessage creates a message with a single text block.
func NewTextMessage(role Role, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentBlock{{Type: ContentTypeText, Text: text}},
	}
}

// NewToolUseMessage creates an assistant message requesting a tool call.
func NewToolUseMessage(id, name string, input json.RawMessage) Message {
	return Message{
		Role: RoleAssistant,
		Content: []ContentBlock{{
			Type:         ContentTypeToolUse,
			ToolUseID:    id,
			ToolName:     name,
			ToolInputRaw: input,
		}},
	}
}

// NewToolResultMessage creates a tool response message.
func NewToolResultMessage(toolUseID, content string, isError bool) Message {
	return Message{
		Role: RoleTool,
		Content: []ContentBlock{{
			Type:         ContentTypeToolResult,
			ToolResultID: toolUseID,
			ToolContent:  content,
			IsError:      isError,
		}},
	}
}

// Text returns the text blocks of the message joined by newlines.
func (m Message) Text() string {
	var parts []string
	for _, b := range m.Content {
		if b.Type == ContentTypeText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// HasToolUse reports whether the message contains a tool use block.
func (m Message) HasToolUse() bool {
	return m.hasBlock(ContentTypeToolUse)
}

// HasToolResult reports whether the message contains a tool result block.
func (m Message) HasToolResult() bool {
	return m.hasBlock(ContentTypeToolResult)
}

func (m Message) hasBlock(t ContentType) bool {
	for _, b := range m.Content {
		if b.Type == t {
			return true
		}
	}
	return false
}

// ToolUses returns the tool use blocks of the message.
func (m Message) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == ContentTypeToolUse {
			out = append(out, b)
		}
	}
	return out
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		out.Content = make([]ContentBlock, len(m.Content))
		for i, b := range m.Content {
			out.Content[i] = b.clone()
		}
	}
	if m.Usage != nil {
		u := *m.Usage
		out.Usage = &u
	}
	out.Metadata = maps.Clone(m.Metadata)
	return out
}

// CloneMessages deep-copies a message slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// ContentType represents the type of content block
type ContentType string

const (
	// ContentTypeText represents text content
	ContentTypeText ContentType = "text"

	// ContentTypeToolUse represents a tool use block
	ContentTypeToolUse ContentType = "tool_use"

	// ContentTypeToolResult represents a tool result block
	ContentTypeToolResult ContentType = "tool_result"
)

// ContentBlock represents a piece of content in a message
type ContentBlock struct {
	Type ContentType `json:"type"`

	// Text content
	Text string `json:"text,omitempty"`

	// Tool use content
	ToolUseID    string          `json:"id,omitempty"`
	ToolName     string          `json:"name,omitempty"`
	ToolInputRaw json.RawMessage `json:"input,omitempty"`

	// Tool result content
	ToolResultID string `json:"tool_use_id,omitempty"`
	ToolContent  string `json:"content,omitempty"`
	IsError      bool   `json:"is_error,omitempty"`
}

func (b ContentBlock) clone() ContentBlock {
	if b.ToolInputRaw != nil {
		b.ToolInputRaw = append(json.RawMessage(nil), b.ToolInputRaw...)
	}
	return b
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u *Usage) Total() int {
	if u == nil {
		return 0
	}
	return u.InputTokens + u.OutputTokens
}
