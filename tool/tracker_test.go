package tool

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/youssefsiam38/agentcore/metrics"
	"github.com/youssefsiam38/agentcore/runstate"
)

// gate is a tool that blocks until released or its context ends.
type gate struct {
	name    string
	release chan struct{}
	started chan string
	running atomic.Int32
	peak    atomic.Int32
}

func newGate(name string) *gate {
	return &gate{name: name, release: make(chan struct{}), started: make(chan string, 16)}
}

func (g *gate) Name() string            { return g.name }
func (g *gate) Description() string     { return "blocks until released" }
func (g *gate) InputSchema() ToolSchema { return Object(map[string]PropertyDef{"tag": {Type: "string"}}) }

func (g *gate) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	n := g.running.Add(1)
	defer g.running.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}

	args, _ := Decode[struct {
		Tag string `json:"tag"`
	}](input)
	g.started <- args.Tag

	select {
	case <-g.release:
		return "done " + args.Tag, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func newTestTracker(t *testing.T, cfg *TrackerConfig, tools ...Tool) *Tracker {
	t.Helper()
	r := NewRegistry()
	if err := r.RegisterAll(tools...); err != nil {
		t.Fatalf("RegisterAll() error = %v", err)
	}
	tr, err := NewTracker(r, cfg)
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	t.Cleanup(tr.Stop)
	return tr
}

func tag(s string) json.RawMessage {
	return json.RawMessage(`{"tag":"` + s + `"}`)
}

func waitStarted(t *testing.T, g *gate) string {
	t.Helper()
	select {
	case s := <-g.started:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a call to start")
		return ""
	}
}

func TestTracker_Success(t *testing.T) {
	reg := metrics.NewRegistry()
	tr := newTestTracker(t, &TrackerConfig{Metrics: reg}, echoTool("echo"))

	call, err := tr.Schedule(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	res, err := call.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res.State != runstate.ToolCallSuccess || res.Output != "hi" {
		t.Errorf("result = %s %q, want success hi", res.State, res.Output)
	}
	if res.ID != call.ID() || res.Tool != "echo" {
		t.Errorf("result identity = %s/%s", res.ID, res.Tool)
	}
	if res.StartedAt.IsZero() || res.EndedAt.Before(res.StartedAt) {
		t.Errorf("bad timestamps: started %v ended %v", res.StartedAt, res.EndedAt)
	}

	if _, ok := tr.Status(call.ID()); ok {
		t.Error("finished call still reported by Status")
	}
	if got := reg.Snapshot().Counter("tool.succeeded"); got != 1 {
		t.Errorf("tool.succeeded = %d, want 1", got)
	}
}

func TestTracker_ScheduleErrors(t *testing.T) {
	tr := newTestTracker(t, nil, echoTool("echo"))

	if _, err := tr.Schedule(context.Background(), "missing", nil); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Schedule(missing) error = %v, want ErrToolNotFound", err)
	}

	_, err := tr.Schedule(context.Background(), "echo", json.RawMessage(`{"text": 5}`))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "text" {
		t.Errorf("Schedule(bad args) error = %v, want *ValidationError on text", err)
	}
	if tr.Stats().Scheduled != 0 {
		t.Error("rejected calls counted as scheduled")
	}
}

func TestTracker_ConcurrencyAndFIFO(t *testing.T) {
	g := newGate("gate")
	tr := newTestTracker(t, nil, g)

	var calls []*Call
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		c, err := tr.Schedule(context.Background(), "gate", tag(s))
		if err != nil {
			t.Fatalf("Schedule(%s) error = %v", s, err)
		}
		calls = append(calls, c)
	}

	for range 3 {
		waitStarted(t, g)
	}
	if got := len(tr.Active()); got != 3 {
		t.Errorf("Active() = %d, want 3", got)
	}
	queued := tr.Queued()
	if len(queued) != 2 || queued[0].ID != calls[3].ID() || queued[1].ID != calls[4].ID() {
		t.Fatalf("Queued() = %+v, want calls d, e in order", queued)
	}
	if st, ok := tr.Status(calls[3].ID()); !ok || st.State != runstate.ToolCallQueued {
		t.Errorf("Status(d) = %s %v, want queued", st.State, ok)
	}

	g.release <- struct{}{}
	if got := waitStarted(t, g); got != "d" {
		t.Errorf("first promoted call = %q, want d", got)
	}

	close(g.release)
	for _, c := range calls {
		if res, err := c.Wait(context.Background()); err != nil || res.State != runstate.ToolCallSuccess {
			t.Errorf("call %s: state %s err %v", res.Tool, res.State, err)
		}
	}
	if got := g.peak.Load(); got > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", got)
	}
	if st := tr.Stats(); st.Succeeded != 5 || st.PeakActive != 3 || st.Active != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestTracker_CancelQueued(t *testing.T) {
	g := newGate("gate")
	tr := newTestTracker(t, &TrackerConfig{MaxConcurrent: 1}, g)

	first, _ := tr.Schedule(context.Background(), "gate", tag("first"))
	waitStarted(t, g)
	second, _ := tr.Schedule(context.Background(), "gate", tag("second"))

	if err := tr.Cancel(second.ID()); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	res, err := second.Wait(context.Background())
	if !errors.Is(err, ErrCallCancelled) || res.State != runstate.ToolCallCancelled {
		t.Errorf("queued cancel: state %s err %v, want cancelled", res.State, err)
	}
	if !res.StartedAt.IsZero() {
		t.Error("cancelled queued call has a start time")
	}

	close(g.release)
	if _, err := first.Wait(context.Background()); err != nil {
		t.Errorf("first call error = %v", err)
	}
	select {
	case s := <-g.started:
		t.Errorf("cancelled call %q ran", s)
	default:
	}
}

func TestTracker_CancelExecuting(t *testing.T) {
	g := newGate("gate")
	tr := newTestTracker(t, nil, g)

	call, _ := tr.Schedule(context.Background(), "gate", tag("x"))
	waitStarted(t, g)

	if err := tr.Cancel(call.ID()); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	res, err := call.Wait(context.Background())
	if res.State != runstate.ToolCallCancelled {
		t.Errorf("State = %s, want cancelled", res.State)
	}
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrCallCancelled) {
		t.Errorf("Wait() error = %v, want ErrCallCancelled wrapping context.Canceled", err)
	}

	if err := tr.Cancel(call.ID()); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("Cancel(finished) error = %v, want ErrCallNotFound", err)
	}
}

func TestTracker_CallerContextDoesNotCancel(t *testing.T) {
	g := newGate("gate")
	tr := newTestTracker(t, nil, g)

	ctx, cancel := context.WithCancel(WithVariables(context.Background(), map[string]any{"user": "u1"}))
	call, _ := tr.Schedule(ctx, "gate", tag("x"))
	waitStarted(t, g)
	cancel()

	close(g.release)
	res, err := call.Wait(context.Background())
	if err != nil || res.State != runstate.ToolCallSuccess {
		t.Errorf("state %s err %v, want success", res.State, err)
	}
}

func TestTracker_Timeout(t *testing.T) {
	g := newGate("gate")
	tr := newTestTracker(t, &TrackerConfig{CallTimeout: 30 * time.Millisecond}, g)

	call, _ := tr.Schedule(context.Background(), "gate", tag("slow"))

	res, err := call.Wait(context.Background())
	if res.State != runstate.ToolCallError {
		t.Errorf("State = %s, want error", res.State)
	}
	var exec *ExecutionError
	if !errors.As(err, &exec) || !exec.IsTimeout() {
		t.Errorf("Wait() error = %v, want timeout *ExecutionError", err)
	}
	if !errors.Is(err, ErrToolExecution) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want ErrToolExecution and DeadlineExceeded", err)
	}
}

func TestTracker_ExecutionError(t *testing.T) {
	boom := errors.New("boom")
	failing := NewFuncTool("fail", "always fails", Object(nil), func(context.Context, json.RawMessage) (string, error) {
		return "partial", boom
	})
	panicking := NewFuncTool("panic", "panics", Object(nil), func(context.Context, json.RawMessage) (string, error) {
		panic("bad tool")
	})
	tr := newTestTracker(t, nil, failing, panicking)

	call, _ := tr.Schedule(context.Background(), "fail", nil)
	res, err := call.Wait(context.Background())
	if !errors.Is(err, boom) || !errors.Is(err, ErrToolExecution) {
		t.Errorf("Wait() error = %v, want ErrToolExecution wrapping boom", err)
	}
	if res.Output != "" {
		t.Errorf("failed call output = %q, want empty", res.Output)
	}

	call, _ = tr.Schedule(context.Background(), "panic", nil)
	_, err = call.Wait(context.Background())
	var perr *PanicError
	if !errors.As(err, &perr) || perr.Value != "bad tool" {
		t.Errorf("Wait() error = %v, want *PanicError", err)
	}
}

func TestTracker_ContextValues(t *testing.T) {
	var seen atomic.Value
	ctxreader := NewFuncTool("ctxreader", "reads context", Object(nil), func(ctx context.Context, _ json.RawMessage) (string, error) {
		info, _ := CallInfoFrom(ctx)
		user := GetVariableOr(ctx, "user", "anonymous")
		seen.Store(info.Tool + ":" + user)
		return info.CallID, nil
	})
	tr := newTestTracker(t, nil, ctxreader)

	ctx := WithVariables(context.Background(), map[string]any{"user": "u1"})
	call, _ := tr.Schedule(ctx, "ctxreader", nil)
	res, err := call.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res.Output != call.ID() {
		t.Errorf("CallInfo.CallID = %q, want %q", res.Output, call.ID())
	}
	if got := seen.Load(); got != "ctxreader:u1" {
		t.Errorf("seen = %v, want ctxreader:u1", got)
	}
}

func TestTracker_Stop(t *testing.T) {
	g := newGate("gate")
	tr := newTestTracker(t, &TrackerConfig{MaxConcurrent: 1}, g)

	running, _ := tr.Schedule(context.Background(), "gate", tag("a"))
	waitStarted(t, g)
	waiting, _ := tr.Schedule(context.Background(), "gate", tag("b"))

	tr.Stop()

	for _, c := range []*Call{running, waiting} {
		res, _ := c.Wait(context.Background())
		if res.State != runstate.ToolCallCancelled {
			t.Errorf("call %s state = %s, want cancelled", c.ID(), res.State)
		}
	}
	if _, err := tr.Schedule(context.Background(), "gate", tag("c")); !errors.Is(err, ErrTrackerStopped) {
		t.Errorf("Schedule() after Stop error = %v, want ErrTrackerStopped", err)
	}
}

func TestTracker_WaitContext(t *testing.T) {
	g := newGate("gate")
	tr := newTestTracker(t, nil, g)

	call, _ := tr.Schedule(context.Background(), "gate", tag("x"))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := call.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
	if st, ok := tr.Status(call.ID()); !ok || st.State != runstate.ToolCallExecuting {
		t.Errorf("Status() = %s %v, want executing", st.State, ok)
	}
}

func TestTrackerConfig_Validate(t *testing.T) {
	if _, err := NewTracker(NewRegistry(), &TrackerConfig{MaxConcurrent: -1}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewTracker(MaxConcurrent=-1) error = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewTracker(nil, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewTracker(nil registry) error = %v, want ErrInvalidConfig", err)
	}
}

func TestTracker_OnFinish(t *testing.T) {
	var mu sync.Mutex
	var got []Result
	tr := newTestTracker(t, &TrackerConfig{OnFinish: func(r Result) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	}}, echoTool("echo"))

	call, err := tr.Schedule(context.Background(), "echo", json.RawMessage(`{"text":"x"}`))
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if _, err := call.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].ID != call.ID() || got[0].State != runstate.ToolCallSuccess {
		t.Errorf("OnFinish results = %+v", got)
	}
}
