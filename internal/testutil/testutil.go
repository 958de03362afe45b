// Package testutil provides test utilities for agentcore
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/youssefsiam38/agentcore/types"
)

// DatabaseURL returns DATABASE_URL or skips the test when it is unset.
func DatabaseURL(t *testing.T) string {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	return dbURL
}

// NewPool creates a pgx pool from DATABASE_URL and closes it when the test
// ends. The test is skipped when DATABASE_URL is not set.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dbURL := DatabaseURL(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("Failed to ping database: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// DropTable removes table when the test ends.
func DropTable(t *testing.T, pool *pgxpool.Pool, table string) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ident := pgx.Identifier{table}.Sanitize()
		if _, err := pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", ident)); err != nil {
			t.Logf("drop %s: %v", table, err)
		}
	})
}

// TableName returns a table name unique to the running test.
func TableName(t *testing.T, prefix string) string {
	name := strings.ToLower(strings.NewReplacer("/", "_", " ", "_", "-", "_").Replace(t.Name()))
	return fmt.Sprintf("%s_%s_%d", prefix, name, time.Now().UnixNano()%1_000_000)
}

// Reply returns a model function that always answers text and counts calls.
func Reply(text string, calls *atomic.Int32) types.ModelFunc {
	return func(ctx context.Context, _ []types.Message) (*types.Response, error) {
		if calls != nil {
			calls.Add(1)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &types.Response{
			Message:    types.NewTextMessage(types.RoleAssistant, text),
			StopReason: "end_turn",
			Usage:      &types.Usage{InputTokens: 10, OutputTokens: len(text)},
			Model:      "test-model",
		}, nil
	}
}

// Recorder is a model function that records every request it receives and
// answers from a script of handlers, repeating the last one.
type Recorder struct {
	mu       sync.Mutex
	requests [][]types.Message
	script   []types.ModelFunc
}

// NewRecorder creates a recorder answering with script in order.
func NewRecorder(script ...types.ModelFunc) *Recorder {
	return &Recorder{script: script}
}

// Model is the recorder's model function.
func (r *Recorder) Model(ctx context.Context, messages []types.Message) (*types.Response, error) {
	r.mu.Lock()
	r.requests = append(r.requests, types.CloneMessages(messages))
	idx := min(len(r.requests)-1, len(r.script)-1)
	r.mu.Unlock()

	if idx < 0 {
		return nil, fmt.Errorf("recorder: no script")
	}
	return r.script[idx](ctx, messages)
}

// Requests returns copies of the recorded requests.
func (r *Recorder) Requests() [][]types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]types.Message, len(r.requests))
	for i, req := range r.requests {
		out[i] = types.CloneMessages(req)
	}
	return out
}

// LogLine is one captured log call.
type LogLine struct {
	Level string
	Msg   string
	Args  []any
}

// Logger captures log lines for assertions.
type Logger struct {
	mu    sync.Mutex
	lines []LogLine
}

func (l *Logger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, LogLine{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.add("error", msg, args) }

// Lines returns the captured lines.
func (l *Logger) Lines() []LogLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogLine(nil), l.lines...)
}

// Has reports whether a line with level and msg was logged.
func (l *Logger) Has(level, msg string) bool {
	for _, line := range l.Lines() {
		if line.Level == level && line.Msg == msg {
			return true
		}
	}
	return false
}
