// Package hooks lets callers observe and veto steps of a chat turn.
package hooks

import (
	"context"
	"sync"

	"github.com/youssefsiam38/agentcore/compaction"
	"github.com/youssefsiam38/agentcore/tool"
	"github.com/youssefsiam38/agentcore/types"
)

// BeforeRequestHook is called with the exact message list about to be sent
// to the model. Returning an error aborts the turn.
type BeforeRequestHook func(ctx context.Context, messages []types.Message) error

// AfterResponseHook is called after the model answered successfully.
type AfterResponseHook func(ctx context.Context, response *types.Response) error

// BeforeCompactionHook is called before the history is compressed.
// Returning an error skips compression for this turn.
type BeforeCompactionHook func(ctx context.Context, messages []types.Message) error

// AfterCompactionHook is called with every compression outcome, failed ones
// included.
type AfterCompactionHook func(ctx context.Context, outcome *compaction.Outcome) error

// ToolCallHook is called when a tracked tool call reaches a terminal state.
type ToolCallHook func(ctx context.Context, result tool.Result) error

// Registry holds all registered hooks
type Registry struct {
	mu               sync.RWMutex
	beforeRequest    []BeforeRequestHook
	afterResponse    []AfterResponseHook
	beforeCompaction []BeforeCompactionHook
	afterCompaction  []AfterCompactionHook
	toolCall         []ToolCallHook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{}
}

// OnBeforeRequest registers a hook to be called before each model request
func (r *Registry) OnBeforeRequest(hook BeforeRequestHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeRequest = append(r.beforeRequest, hook)
}

// OnAfterResponse registers a hook to be called after each model response
func (r *Registry) OnAfterResponse(hook AfterResponseHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterResponse = append(r.afterResponse, hook)
}

// OnBeforeCompaction registers a hook to be called before compaction
func (r *Registry) OnBeforeCompaction(hook BeforeCompactionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeCompaction = append(r.beforeCompaction, hook)
}

// OnAfterCompaction registers a hook to be called after compaction
func (r *Registry) OnAfterCompaction(hook AfterCompactionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterCompaction = append(r.afterCompaction, hook)
}

// OnToolCall registers a hook to be called when a tool call finishes
func (r *Registry) OnToolCall(hook ToolCallHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolCall = append(r.toolCall, hook)
}

// Len returns the total number of registered hooks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.beforeRequest) + len(r.afterResponse) + len(r.beforeCompaction) +
		len(r.afterCompaction) + len(r.toolCall)
}

// TriggerBeforeRequest calls all registered before-request hooks
func (r *Registry) TriggerBeforeRequest(ctx context.Context, messages []types.Message) error {
	return fire(r, &r.beforeRequest, func(h BeforeRequestHook) error { return h(ctx, messages) })
}

// TriggerAfterResponse calls all registered after-response hooks
func (r *Registry) TriggerAfterResponse(ctx context.Context, response *types.Response) error {
	return fire(r, &r.afterResponse, func(h AfterResponseHook) error { return h(ctx, response) })
}

// TriggerBeforeCompaction calls all registered before-compaction hooks
func (r *Registry) TriggerBeforeCompaction(ctx context.Context, messages []types.Message) error {
	return fire(r, &r.beforeCompaction, func(h BeforeCompactionHook) error { return h(ctx, messages) })
}

// TriggerAfterCompaction calls all registered after-compaction hooks
func (r *Registry) TriggerAfterCompaction(ctx context.Context, outcome *compaction.Outcome) error {
	return fire(r, &r.afterCompaction, func(h AfterCompactionHook) error { return h(ctx, outcome) })
}

// TriggerToolCall calls all registered tool-call hooks
func (r *Registry) TriggerToolCall(ctx context.Context, result tool.Result) error {
	return fire(r, &r.toolCall, func(h ToolCallHook) error { return h(ctx, result) })
}

// fire snapshots the hook list under the read lock and calls each hook in
// registration order, stopping at the first error.
func fire[H any](r *Registry, list *[]H, call func(H) error) error {
	r.mu.RLock()
	hooks := make([]H, len(*list))
	copy(hooks, *list)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := call(hook); err != nil {
			return err
		}
	}
	return nil
}
