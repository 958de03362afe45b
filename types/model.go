// Package types holds the conversation types shared by every agentcore
// package, and the model call contract the core consumes.
package types

import (
	"context"
	"encoding/json"
)

// Response is the result of one model call.
type Response struct {
	Message    Message
	StopReason string
	Usage      *Usage
	Model      string

	// Structured holds the JSON object of a turn that asked for a
	// ResponseFormat.
	Structured json.RawMessage
}

// Text returns the text of the response message.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return r.Message.Text()
}

// ModelFunc is the opaque model call supplied by the application. It may
// return a response, return an error, or block past any deadline; callers
// must not assume it honours ctx.
type ModelFunc func(ctx context.Context, messages []Message) (*Response, error)
