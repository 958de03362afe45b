package agentcore

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the client configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrModelRequired is returned when no model function is configured
	ErrModelRequired = errors.New("model function is required")

	// ErrEmptyPrompt is returned when Chat is called with a blank prompt
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrEmptyResponse is returned when the model returns no response
	ErrEmptyResponse = errors.New("model returned no response")

	// ErrStructuredOutput is returned when a structured turn's reply is not
	// a JSON object matching the requested schema
	ErrStructuredOutput = errors.New("invalid structured output")

	// ErrNoArchive is returned by the archive accessors when no archive is
	// configured
	ErrNoArchive = errors.New("no archive configured")

	// ErrClientNotStarted is returned when calling Stop before Start()
	ErrClientNotStarted = errors.New("client not started")

	// ErrClientAlreadyStarted is returned when Start() is called twice
	ErrClientAlreadyStarted = errors.New("client already started")
)

// ClientError represents an error with additional context
type ClientError struct {
	Op      string         // Operation that failed
	Err     error          // Underlying error
	Context map[string]any // Additional context
}

// Error implements the error interface
func (e *ClientError) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v %v", e.Op, e.Err, e.Context)
}

// Unwrap returns the underlying error
func (e *ClientError) Unwrap() error {
	return e.Err
}

// WithContext adds additional context to the error
func (e *ClientError) WithContext(key string, value any) *ClientError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewClientError creates a new ClientError
func NewClientError(op string, err error) *ClientError {
	return &ClientError{
		Op:  op,
		Err: err,
	}
}
