package types

import (
	"context"
	"encoding/json"
)

// ResponseFormat asks the model for a single JSON object matching Schema
// instead of free text.
type ResponseFormat struct {
	// Name identifies the format; providers may expose it as a tool name.
	Name string

	Description string

	// Schema is a JSON Schema object.
	Schema json.RawMessage
}

type responseFormatKey struct{}

// WithResponseFormat returns a context that carries f to the model call.
func WithResponseFormat(ctx context.Context, f *ResponseFormat) context.Context {
	return context.WithValue(ctx, responseFormatKey{}, f)
}

// ResponseFormatFrom returns the format carried by ctx, or nil.
func ResponseFormatFrom(ctx context.Context) *ResponseFormat {
	f, _ := ctx.Value(responseFormatKey{}).(*ResponseFormat)
	return f
}
