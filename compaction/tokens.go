package compaction

import (
	"strings"
	"unicode/utf8"

	"github.com/youssefsiam38/agentcore/types"
)

// Token estimation constants.
const (
	// RunesPerToken is the approximate number of characters per token.
	RunesPerToken = 3

	// MessageOverhead is the fixed token cost charged per message.
	MessageOverhead = 10
)

// EstimateTokens approximates the token cost of messages from the length
// of their transcript.
func EstimateTokens(messages []types.Message) int {
	if len(messages) == 0 {
		return 0
	}
	return utf8.RuneCountInString(FormatTranscript(messages))/RunesPerToken +
		MessageOverhead*len(messages)
}

// FormatTranscript renders messages as "Role: text" lines.
func FormatTranscript(messages []types.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Role.Label())
		b.WriteString(": ")
		b.WriteString(messageText(m))
	}
	return b.String()
}

func messageText(m types.Message) string {
	parts := make([]string, 0, len(m.Content))
	for _, blk := range m.Content {
		switch blk.Type {
		case types.ContentTypeText:
			if blk.Text != "" {
				parts = append(parts, blk.Text)
			}
		case types.ContentTypeToolUse:
			parts = append(parts, "[tool_use "+blk.ToolName+"]")
		case types.ContentTypeToolResult:
			parts = append(parts, "[tool_result]")
		}
	}
	return strings.Join(parts, " ")
}
