package tool

import "context"

type contextKey string

const (
	callKey      contextKey = "agentcore_tool_call"
	variablesKey contextKey = "agentcore_variables"
)

// CallInfo identifies the invocation a tool is running for.
type CallInfo struct {
	CallID string
	Tool   string
}

func withCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callKey, info)
}

// CallInfoFrom returns the invocation details attached by the Tracker.
func CallInfoFrom(ctx context.Context) (CallInfo, bool) {
	info, ok := ctx.Value(callKey).(CallInfo)
	return info, ok
}

// WithVariables attaches per-request variables to ctx. Contexts passed to
// Tracker.Schedule keep their values for the whole call, so tools can read
// them with GetVariable.
func WithVariables(ctx context.Context, vars map[string]any) context.Context {
	return context.WithValue(ctx, variablesKey, vars)
}

// GetVariables extracts all variables from the context.
// Returns nil if no variables were set.
func GetVariables(ctx context.Context) map[string]any {
	vars, _ := ctx.Value(variablesKey).(map[string]any)
	return vars
}

// GetVariable extracts a single variable from the context by key.
// Returns the zero value and false if the variable is not found or has wrong type.
//
// Example:
//
//	userID, ok := tool.GetVariable[string](ctx, "user_id")
//	if !ok {
//	    return "", errors.New("user_id not provided")
//	}
func GetVariable[T any](ctx context.Context, key string) (T, bool) {
	val, ok := GetVariables(ctx)[key]
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := val.(T)
	return typed, ok
}

// GetVariableOr extracts a variable from the context or returns the default value.
func GetVariableOr[T any](ctx context.Context, key string, defaultValue T) T {
	if val, ok := GetVariable[T](ctx, key); ok {
		return val
	}
	return defaultValue
}
