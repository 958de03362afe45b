package agentcore

import "time"

// Version is the current agentcore version
const Version = "0.1.0"

const (
	// DefaultRecentWindow is how many curated messages are sent when the
	// history is not compressed.
	DefaultRecentWindow = 20

	// DefaultChatTimeout bounds each model call made by Chat.
	DefaultChatTimeout = 60 * time.Second
)

// Failed turns are recorded with this assistant text, tagged invalid.
const failedTurnText = "[error: request failed]"

// Structured replies are recorded as this prefix followed by the JSON.
const structuredPrefix = "[structured output]"
