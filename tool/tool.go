// Package tool holds the tool contract, a registry that exposes tools to the
// model, an argument validator and a Tracker that runs tool invocations
// with bounded concurrency.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is the interface that all tools must implement
type Tool interface {
	// Name returns the tool name (used in API calls)
	Name() string

	// Description returns a human-readable description of what the tool does
	Description() string

	// InputSchema returns the JSON Schema for the tool's input parameters
	InputSchema() ToolSchema

	// Execute runs the tool with the provided input and returns the result.
	// Implementations should return promptly once ctx is done.
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// Func is the signature of a tool body.
type Func func(ctx context.Context, input json.RawMessage) (string, error)

type funcTool struct {
	name        string
	description string
	schema      ToolSchema
	fn          Func
}

func (t *funcTool) Name() string            { return t.name }
func (t *funcTool) Description() string     { return t.description }
func (t *funcTool) InputSchema() ToolSchema { return t.schema }

func (t *funcTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	return t.fn(ctx, input)
}

// NewFuncTool creates a Tool from a function
func NewFuncTool(name, description string, schema ToolSchema, fn Func) Tool {
	return &funcTool{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}
}

// Decode unmarshals tool input into T, treating empty input as {}.
func Decode[T any](input json.RawMessage) (T, error) {
	var v T
	if len(input) == 0 {
		return v, nil
	}
	err := json.Unmarshal(input, &v)
	return v, err
}
