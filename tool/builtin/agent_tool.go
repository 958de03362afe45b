// Package builtin provides ready-made tools.
package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/youssefsiam38/agentcore/tool"
)

// Asker is the minimal conversational interface needed to delegate work.
// *agentcore.Client satisfies it.
type Asker interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// AgentTool exposes another conversational agent as a tool.
type AgentTool struct {
	agent       Asker
	name        string
	description string
}

// NewAgentTool wraps agent as a tool called name.
func NewAgentTool(agent Asker, name, description string) (*AgentTool, error) {
	if agent == nil {
		return nil, errors.New("agent cannot be nil")
	}
	if name == "" {
		return nil, errors.New("name cannot be empty")
	}
	if description == "" {
		description = fmt.Sprintf("Delegate task to %s agent", name)
	}

	return &AgentTool{
		agent:       agent,
		name:        name,
		description: description,
	}, nil
}

// Name returns the tool name
func (a *AgentTool) Name() string {
	return a.name
}

// Description returns the tool description
func (a *AgentTool) Description() string {
	return a.description
}

// InputSchema returns the JSON schema for the tool's input
func (a *AgentTool) InputSchema() tool.ToolSchema {
	return tool.Object(map[string]tool.PropertyDef{
		"task": {
			Type:        "string",
			Description: "The task or question to delegate to this agent",
			MinLength:   tool.Ptr(1),
		},
		"context": {
			Type:        "string",
			Description: "Additional context for the task (optional)",
		},
	}, "task")
}

// Execute runs the delegated agent with the given task
func (a *AgentTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := tool.Decode[struct {
		Task    string `json:"task"`
		Context string `json:"context"`
	}](input)
	if err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(params.Task) == "" {
		return "", errors.New("task is required")
	}

	prompt := params.Task
	if params.Context != "" {
		prompt = fmt.Sprintf("Context: %s\n\nTask: %s", params.Context, params.Task)
	}

	answer, err := a.agent.Ask(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("delegated agent failed: %w", err)
	}
	return answer, nil
}
