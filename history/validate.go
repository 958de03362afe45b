package history

import (
	"strings"

	"github.com/youssefsiam38/agentcore/types"
)

type shape struct {
	status       ValidationStatus
	toolCall     bool
	toolResponse bool
}

// inspect classifies a message. Tool use and tool result blocks count as
// content; text must contain something other than whitespace.
func inspect(msg types.Message) shape {
	var s shape
	hasBytes := false
	hasContent := false

	for _, b := range msg.Content {
		switch b.Type {
		case types.ContentTypeToolUse:
			s.toolCall = true
			hasContent = true
			hasBytes = true
		case types.ContentTypeToolResult:
			s.toolResponse = true
			hasContent = true
			hasBytes = true
		case types.ContentTypeText:
			if b.Text != "" {
				hasBytes = true
			}
			if strings.TrimSpace(b.Text) != "" {
				hasContent = true
			}
		}
	}

	switch {
	case hasContent:
		s.status = StatusValid
	case hasBytes:
		s.status = StatusInvalid
	default:
		s.status = StatusEmpty
	}
	return s
}

// Validate reports the validation status a message would be recorded with.
func Validate(msg types.Message) ValidationStatus {
	return inspect(msg).status
}
