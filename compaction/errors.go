package compaction

import (
	"errors"
	"fmt"
)

// Sentinel errors for compaction operations.
var (
	// ErrInvalidConfig indicates invalid compaction configuration.
	ErrInvalidConfig = errors.New("invalid compaction configuration")

	// ErrCompressionTimeout indicates the summarization request timed out.
	ErrCompressionTimeout = errors.New("compression timed out")

	// ErrCompressionModel indicates the summarization request failed or
	// produced nothing.
	ErrCompressionModel = errors.New("compression model error")

	// ErrCompressionRejected indicates the compressed result fell outside
	// the accepted ratio band.
	ErrCompressionRejected = errors.New("compression rejected")

	// ErrEmptySummary indicates the model returned no summary text.
	ErrEmptySummary = errors.New("empty summary")
)

// CompactionError provides structured error context for compaction operations.
type CompactionError struct {
	// Op is the operation that failed (e.g., "Summarize", "CheckRatio")
	Op string

	// Kind is one of ErrCompressionTimeout, ErrCompressionModel or
	// ErrCompressionRejected.
	Kind error

	// Err is the underlying error
	Err error

	// Context holds additional key-value pairs for debugging
	Context map[string]any
}

// Error returns a formatted error message.
func (e *CompactionError) Error() string {
	msg := fmt.Sprintf("compaction %s failed", e.Op)
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the kind and the underlying error for errors.Is/errors.As.
func (e *CompactionError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewCompactionError creates a new CompactionError of the given kind.
func NewCompactionError(op string, kind, err error) *CompactionError {
	return &CompactionError{
		Op:      op,
		Kind:    kind,
		Err:     err,
		Context: make(map[string]any),
	}
}

// WithContext adds a key-value pair to the error context and returns the error for chaining.
func (e *CompactionError) WithContext(key string, value any) *CompactionError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
