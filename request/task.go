package request

import "context"

// Kind tags how a task is dispatched.
type Kind int

const (
	// KindAsync tasks run on their own goroutine and receive the deadline ctx.
	KindAsync Kind = iota + 1

	// KindBlocking tasks run on the bounded blocking worker pool.
	KindBlocking
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAsync:
		return "async"
	case KindBlocking:
		return "blocking"
	default:
		return "unknown"
	}
}

// Task is a unit of work the manager can run. Build one with Async or
// Blocking; the zero value is invalid.
type Task struct {
	name     string
	kind     Kind
	async    func(ctx context.Context) (any, error)
	blocking func() (any, error)
}

// Async creates a task for work that can observe ctx.
func Async(name string, fn func(ctx context.Context) (any, error)) Task {
	return Task{name: name, kind: KindAsync, async: fn}
}

// Blocking creates a task for work that cannot be interrupted. It is handed
// to the blocking worker pool and abandoned if its deadline elapses.
func Blocking(name string, fn func() (any, error)) Task {
	return Task{name: name, kind: KindBlocking, blocking: fn}
}

// Name returns the task name.
func (t Task) Name() string { return t.name }

// Kind returns how the task is dispatched.
func (t Task) Kind() Kind { return t.kind }

func (t Task) valid() bool {
	switch t.kind {
	case KindAsync:
		return t.async != nil
	case KindBlocking:
		return t.blocking != nil
	default:
		return false
	}
}
