package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/youssefsiam38/agentcore/compaction"
	"github.com/youssefsiam38/agentcore/internal/testutil"
	"github.com/youssefsiam38/agentcore/metrics"
	"github.com/youssefsiam38/agentcore/runstate"
	"github.com/youssefsiam38/agentcore/tool"
	"github.com/youssefsiam38/agentcore/types"
)

func TestTriggers(t *testing.T) {
	r := NewRegistry()
	var seen []string

	r.OnBeforeRequest(func(_ context.Context, messages []types.Message) error {
		seen = append(seen, "before_request")
		if len(messages) != 1 {
			t.Errorf("before_request got %d messages", len(messages))
		}
		return nil
	})
	r.OnAfterResponse(func(_ context.Context, resp *types.Response) error {
		seen = append(seen, "after_response:"+resp.StopReason)
		return nil
	})
	r.OnBeforeCompaction(func(context.Context, []types.Message) error {
		seen = append(seen, "before_compaction")
		return nil
	})
	r.OnAfterCompaction(func(_ context.Context, o *compaction.Outcome) error {
		seen = append(seen, "after_compaction:"+string(o.Status))
		return nil
	})
	r.OnToolCall(func(_ context.Context, res tool.Result) error {
		seen = append(seen, "tool:"+res.Tool)
		return nil
	})

	ctx := context.Background()
	msgs := []types.Message{types.NewTextMessage(types.RoleUser, "hi")}
	steps := []func() error{
		func() error { return r.TriggerBeforeRequest(ctx, msgs) },
		func() error { return r.TriggerAfterResponse(ctx, &types.Response{StopReason: "end_turn"}) },
		func() error { return r.TriggerBeforeCompaction(ctx, msgs) },
		func() error {
			return r.TriggerAfterCompaction(ctx, &compaction.Outcome{Status: compaction.StatusCompressed})
		},
		func() error { return r.TriggerToolCall(ctx, tool.Result{Tool: "echo"}) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("trigger %d error = %v", i, err)
		}
	}

	want := []string{
		"before_request",
		"after_response:end_turn",
		"before_compaction",
		"after_compaction:compressed",
		"tool:echo",
	}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen[%d] = %q, want %q", i, seen[i], want[i])
		}
	}
	if r.Len() != 5 {
		t.Errorf("Len() = %d, want 5", r.Len())
	}
}

func TestHookStopsOnError(t *testing.T) {
	r := NewRegistry()
	called := []int{}
	expectedErr := errors.New("stop here")

	r.OnBeforeRequest(func(context.Context, []types.Message) error {
		called = append(called, 1)
		return nil
	})
	r.OnBeforeRequest(func(context.Context, []types.Message) error {
		called = append(called, 2)
		return expectedErr
	})
	r.OnBeforeRequest(func(context.Context, []types.Message) error {
		called = append(called, 3)
		return nil
	})

	err := r.TriggerBeforeRequest(context.Background(), nil)
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	if len(called) != 2 {
		t.Errorf("expected 2 hooks to be called before error, got %d", len(called))
	}
}

func TestEmptyRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.TriggerToolCall(context.Background(), tool.Result{}); err != nil {
		t.Errorf("TriggerToolCall() on empty registry = %v", err)
	}
}

func TestLoggingHooks(t *testing.T) {
	log := &testutil.Logger{}
	r := NewRegistry()
	NewLoggingHooks(log, true).Register(r)

	ctx := context.Background()
	_ = r.TriggerBeforeRequest(ctx, []types.Message{types.NewTextMessage(types.RoleUser, "hi")})
	_ = r.TriggerAfterCompaction(ctx, &compaction.Outcome{
		Status: compaction.StatusFailedTimeout,
		Err:    compaction.ErrCompressionTimeout,
	})
	_ = r.TriggerToolCall(ctx, tool.Result{Tool: "echo", State: runstate.ToolCallError, Err: errors.New("boom")})
	_ = r.TriggerToolCall(ctx, tool.Result{Tool: "echo", State: runstate.ToolCallSuccess, Output: "ok"})

	for _, want := range []struct{ level, msg string }{
		{"info", "sending request"},
		{"debug", "request message"},
		{"warn", "compression failed"},
		{"warn", "tool call failed"},
		{"info", "tool call finished"},
	} {
		if !log.Has(want.level, want.msg) {
			t.Errorf("missing %s %q in %+v", want.level, want.msg, log.Lines())
		}
	}
}

func TestMetricsHooks(t *testing.T) {
	reg := metrics.NewRegistry()
	r := NewRegistry()
	NewMetricsHooks(reg).Register(r)

	ctx := context.Background()
	_ = r.TriggerAfterResponse(ctx, &types.Response{Usage: &types.Usage{InputTokens: 12, OutputTokens: 3}})
	_ = r.TriggerToolCall(ctx, tool.Result{Tool: "echo", State: runstate.ToolCallCancelled})
	_ = r.TriggerAfterCompaction(ctx, &compaction.Outcome{
		Status:           compaction.StatusCompressed,
		OriginalTokens:   1000,
		CompressedTokens: 300,
		Ratio:            0.3,
	})
	_ = r.TriggerAfterCompaction(ctx, &compaction.Outcome{Status: compaction.StatusFailedRatioTooLow})

	snap := reg.Snapshot()
	if snap.Counter("agent.tokens.input") != 12 || snap.Counter("agent.tokens.output") != 3 {
		t.Errorf("token counters = %d/%d", snap.Counter("agent.tokens.input"), snap.Counter("agent.tokens.output"))
	}
	if snap.Counter("agent.tool.echo.cancelled") != 1 {
		t.Error("missing cancelled tool counter")
	}
	if snap.Counter("agent.compaction.tokens_saved") != 700 {
		t.Errorf("tokens_saved = %d, want 700", snap.Counter("agent.compaction.tokens_saved"))
	}
	if ratio, ok := snap.Gauge("agent.compaction.ratio"); !ok || ratio != 0.3 {
		t.Errorf("ratio gauge = %v, %v", ratio, ok)
	}
}
